package configwatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletcache/pkg/config"
)

func TestNew_MissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "absent.yaml"), nil, nil)
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWriteAndStopsOnRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  id: first\n"), 0644))

	var (
		mu  sync.Mutex
		ids []string
	)
	w, err := New(path, func(_ context.Context, cfg *config.Config) error {
		mu.Lock()
		ids = append(ids, cfg.Session.ID)
		mu.Unlock()
		return nil
	}, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	// invalid content is ignored
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 0\n"), 0644))
	require.NoError(t, os.WriteFile(path, []byte("session:\n  id: second\n"), 0644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, id := range ids {
			if id == "second" {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.NotContains(t, ids, "first")
	mu.Unlock()

	require.NoError(t, os.Remove(path))
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, ErrFileRemoved))
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after removal")
	}
}

func TestWatcher_StopsOnContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "walletcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  id: x\n"), 0644))

	w, err := New(path, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
}

func TestWatcher_SurvivesAtomicSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "walletcache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("session:\n  id: first\n"), 0644))

	reloads := make(chan string, 16)
	w, err := New(path, func(_ context.Context, cfg *config.Config) error {
		reloads <- cfg.Session.ID
		return nil
	}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	waitFor := func(id string) {
		t.Helper()
		deadline := time.After(2 * time.Second)
		for {
			select {
			case got := <-reloads:
				if got == id {
					return
				}
			case err := <-done:
				t.Fatalf("watcher stopped early: %v", err)
			case <-deadline:
				t.Fatalf("no reload with session id %q", id)
			}
		}
	}

	// editors write a sibling file and rename it over the original
	tmp := filepath.Join(dir, ".walletcache.yaml.swp")
	require.NoError(t, os.WriteFile(tmp, []byte("session:\n  id: renamed\n"), 0644))
	require.NoError(t, os.Rename(tmp, path))
	waitFor("renamed")

	require.NoError(t, os.WriteFile(path, []byte("session:\n  id: after\n"), 0644))
	waitFor("after")

	// other files in the directory are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("session:\n  id: other\n"), 0644))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
	for {
		select {
		case id := <-reloads:
			assert.NotEqual(t, "other", id)
		default:
			return
		}
	}
}
