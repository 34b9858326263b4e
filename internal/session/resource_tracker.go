package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"walletcache/internal/logging"
)

// Handle identifies a tracked resource
type Handle uint64

type trackedResource struct {
	name     string
	release  func() error
	acquired time.Time
}

// ResourceTracker holds release functions for transient resources living
// outside the caches, such as cancel funcs of in-flight bulk requests.
// Critical cleanup revokes all of them.
type ResourceTracker struct {
	log logging.Sink

	mutex     sync.Mutex
	next      Handle
	resources map[Handle]trackedResource
	revoked   uint64
}

// NewResourceTracker creates an empty tracker
func NewResourceTracker(log logging.Sink) *ResourceTracker {
	return &ResourceTracker{
		log:       logging.OrNop(log),
		resources: make(map[Handle]trackedResource),
	}
}

// Track registers release under name and returns a handle for Untrack
func (t *ResourceTracker) Track(name string, release func() error) Handle {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.next++
	t.resources[t.next] = trackedResource{name: name, release: release, acquired: time.Now()}
	return t.next
}

// Untrack forgets a resource its owner released normally
func (t *ResourceTracker) Untrack(h Handle) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if _, ok := t.resources[h]; !ok {
		return false
	}
	delete(t.resources, h)
	return true
}

// Len returns the number of tracked resources
func (t *ResourceTracker) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.resources)
}

// RevokeAll releases every tracked resource and returns how many were
// released. Release errors are joined; a panicking release is reported as an error.
func (t *ResourceTracker) RevokeAll(ctx context.Context) (int, error) {
	t.mutex.Lock()
	resources := t.resources
	t.resources = make(map[Handle]trackedResource)
	t.revoked += uint64(len(resources))
	t.mutex.Unlock()

	var errs []error
	for _, res := range resources {
		if err := release(res); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", res.name, err))
		}
	}

	err := errors.Join(errs...)
	if len(resources) > 0 {
		fields := logging.Fields{"revoked": len(resources)}
		if err != nil {
			t.log.Error(ctx, logging.ComponentSession, logging.ActionCleanup, "Some tracked resources failed to release", err, fields)
		} else {
			t.log.Info(ctx, logging.ComponentSession, logging.ActionCleanup, "Tracked resources revoked", fields)
		}
	}
	return len(resources), err
}

// Revoked returns the total number of resources revoked
func (t *ResourceTracker) Revoked() uint64 {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.revoked
}

func release(res trackedResource) (err error) {
	if res.release == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return res.release()
}
