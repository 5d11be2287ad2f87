package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu     sync.Mutex
	saved  []string
	saves  int
	failOn int
}

func (m *memoryStore) Load(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.saved...), nil
}

func (m *memoryStore) Save(_ context.Context, endpoints []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failOn > 0 && m.saves == m.failOn {
		return errors.New("disk full")
	}
	m.saved = append([]string(nil), endpoints...)
	return nil
}

func (m *memoryStore) snapshot() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.saved...)
}

func openRegistry(t *testing.T, store *memoryStore) *Registry {
	t.Helper()
	reg, err := Open(context.Background(), store, nil)
	require.NoError(t, err)
	return reg
}

func TestRegisterIsIdempotent(t *testing.T) {
	store := &memoryStore{}
	reg := openRegistry(t, store)
	ctx := context.Background()

	require.True(t, reg.Register(ctx, "token-a"))
	require.True(t, reg.Register(ctx, "token-a"))
	require.Equal(t, []string{"token-a"}, reg.List(ctx))
	require.Equal(t, 1, store.saves)
	require.Equal(t, []string{"token-a"}, store.snapshot())
}

func TestRegisterRejectsEmpty(t *testing.T) {
	store := &memoryStore{}
	reg := openRegistry(t, store)
	require.False(t, reg.Register(context.Background(), ""))
	require.False(t, reg.Register(context.Background(), "   "))
	require.Zero(t, store.saves)
}

func TestUnregister(t *testing.T) {
	store := &memoryStore{saved: []string{"a", "b"}}
	reg := openRegistry(t, store)
	ctx := context.Background()

	require.True(t, reg.Unregister(ctx, "a"))
	require.False(t, reg.Unregister(ctx, "a"))
	require.False(t, reg.Unregister(ctx, ""))
	require.Equal(t, []string{"b"}, reg.List(ctx))
	require.Equal(t, []string{"b"}, store.snapshot())
}

func TestPruneKeepsOthers(t *testing.T) {
	store := &memoryStore{saved: []string{"a", "b", "c"}}
	reg := openRegistry(t, store)
	ctx := context.Background()

	require.Equal(t, 2, reg.Prune(ctx, []string{"a", "c", "unknown"}))
	require.Equal(t, []string{"b"}, reg.List(ctx))
	require.Equal(t, []string{"b"}, store.snapshot())
	require.Equal(t, 1, store.saves)
	require.Zero(t, reg.Prune(ctx, []string{"zzz"}))
}

func TestSaveFailureRollsBack(t *testing.T) {
	store := &memoryStore{failOn: 2}
	reg := openRegistry(t, store)
	ctx := context.Background()

	require.True(t, reg.Register(ctx, "a"))
	require.False(t, reg.Register(ctx, "b"))
	require.Equal(t, []string{"a"}, reg.List(ctx))
	require.True(t, reg.Register(ctx, "b"))
	require.Equal(t, []string{"a", "b"}, reg.List(ctx))
}

func TestOpenDeduplicatesLoadedSet(t *testing.T) {
	reg := openRegistry(t, &memoryStore{saved: []string{"a", "", "a", "b"}})
	require.Equal(t, []string{"a", "b"}, reg.List(context.Background()))
}

func TestConcurrentMutationsAreNotLost(t *testing.T) {
	store := &memoryStore{}
	reg := openRegistry(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			reg.Register(ctx, fmt.Sprintf("token-%d", i))
		}(i)
	}
	wg.Wait()
	require.Len(t, reg.List(ctx), 50)
	require.Len(t, store.snapshot(), 50)
}

func TestOpenRequiresStore(t *testing.T) {
	_, err := Open(context.Background(), nil, nil)
	require.Error(t, err)
}
