package storage

import (
	"strings"
	"sync"
	"time"
)

// User roles recognised by the type filter
const (
	RoleUser     = "user"
	RoleAdmin    = "admin"
	RoleMerchant = "merchant"
)

// User is a wallet user profile
type User struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	Phone      string    `json:"phone,omitempty"`
	Role       string    `json:"role,omitempty"`
	Status     string    `json:"status,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// UserSchema describes how a UserStore indexes users
var UserSchema = Schema[*User]{
	ID:        func(u *User) string { return u.ID },
	Timestamp: func(u *User) time.Time { return u.CreatedAt },
	Type:      func(u *User) string { return u.Role },
	SearchFields: func(u *User) []string {
		return []string{u.Name, u.Email, u.Phone}
	},
	KnownTypes: []string{RoleUser, RoleAdmin, RoleMerchant},
}

// UserStore is an EntityStore of users with email and external ID lookups.
// The secondary maps follow the record set through store hooks, so they
// only hold keys of users currently stored.
type UserStore struct {
	*EntityStore[*User]

	mutex      sync.RWMutex
	byEmail    map[string]string
	byExternal map[string]string
}

// NewUserStore creates a user store
func NewUserStore(config EntityStoreConfig) (*UserStore, error) {
	if config.Name == "" {
		config.Name = "users"
	}
	store, err := NewEntityStore(UserSchema, config)
	if err != nil {
		return nil, err
	}
	s := &UserStore{
		EntityStore: store,
		byEmail:     make(map[string]string),
		byExternal:  make(map[string]string),
	}
	store.SetHooks(StoreHooks[*User]{
		OnAdd:    s.remember,
		OnRemove: s.forget,
		OnClear:  s.reset,
	})
	return s, nil
}

// GetByEmail returns the user with email, compared case-insensitively
func (s *UserStore) GetByEmail(email string) (*User, bool) {
	key := emailKey(email)
	if key == "" {
		return nil, false
	}
	s.mutex.RLock()
	id, ok := s.byEmail[key]
	s.mutex.RUnlock()
	if !ok {
		return nil, false
	}

	user, ok := s.GetByID(id)
	if !ok || emailKey(user.Email) != key {
		return nil, false
	}
	return user, true
}

// GetByExternalID returns the user with the given external identifier
func (s *UserStore) GetByExternalID(externalID string) (*User, bool) {
	s.mutex.RLock()
	id, ok := s.byExternal[externalID]
	s.mutex.RUnlock()
	if !ok {
		return nil, false
	}

	user, ok := s.GetByID(id)
	if !ok || user.ExternalID != externalID {
		return nil, false
	}
	return user, true
}

func (s *UserStore) reset() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	clear(s.byEmail)
	clear(s.byExternal)
}

func (s *UserStore) remember(user *User) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if key := emailKey(user.Email); key != "" {
		s.byEmail[key] = user.ID
	}
	if user.ExternalID != "" {
		s.byExternal[user.ExternalID] = user.ID
	}
}

// forget only drops keys still owned by user
func (s *UserStore) forget(user *User) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if key := emailKey(user.Email); key != "" && s.byEmail[key] == user.ID {
		delete(s.byEmail, key)
	}
	if user.ExternalID != "" && s.byExternal[user.ExternalID] == user.ID {
		delete(s.byExternal, user.ExternalID)
	}
}

// emailKey is the form emails are indexed and looked up under
func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
