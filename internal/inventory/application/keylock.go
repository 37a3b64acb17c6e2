package application

import (
	"context"
	"sync"

	inventory "poultry-core/internal/inventory/domain"
)

// KeyLocker grants exclusive ownership of a set of stock keys. Callers pass
// keys already in the global acquisition order; implementations must honor
// the context deadline and report expiry as LockTimeoutError.
type KeyLocker interface {
	Acquire(ctx context.Context, keys []string) (release func(), err error)
}

// KeyMutex is the in-process KeyLocker. One channel of capacity one per key;
// suitable for single-node deployments and tests.
type KeyMutex struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

// NewKeyMutex constructs a KeyMutex.
func NewKeyMutex() *KeyMutex {
	return &KeyMutex{locks: make(map[string]chan struct{})}
}

// Acquire takes every key in the given order, releasing everything already
// held if the context expires mid-way.
func (m *KeyMutex) Acquire(ctx context.Context, keys []string) (func(), error) {
	acquired := make([]chan struct{}, 0, len(keys))
	releaseAll := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i]
		}
	}
	for _, key := range keys {
		ch := m.lockChan(key)
		select {
		case ch <- struct{}{}:
			acquired = append(acquired, ch)
		case <-ctx.Done():
			releaseAll()
			return nil, &inventory.LockTimeoutError{Key: key}
		}
	}
	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

func (m *KeyMutex) lockChan(key string) chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[key] = ch
	}
	return ch
}
