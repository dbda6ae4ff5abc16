package service

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

type refMutex struct {
	sync.Mutex
	waiters int
}

// WalletLocker implements ports.WalletLocker with a reference-counted mutex
// per wallet id. Entries are dropped once nobody holds or waits for them.
type WalletLocker struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

// NewWalletLocker creates an empty locker.
func NewWalletLocker() *WalletLocker {
	return &WalletLocker{locks: make(map[uuid.UUID]*refMutex)}
}

// Lock acquires every distinct id in ascending byte order, so two callers
// locking {A, B} and {B, A} cannot deadlock. The returned func releases all
// of them and must be called exactly once.
func (l *WalletLocker) Lock(ids ...uuid.UUID) func() {
	ordered := slices.Clone(ids)
	slices.SortFunc(ordered, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	ordered = slices.Compact(ordered)

	for _, id := range ordered {
		l.acquire(id)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			for i := len(ordered) - 1; i >= 0; i-- {
				l.release(ordered[i])
			}
		})
	}
}

func (l *WalletLocker) acquire(id uuid.UUID) {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &refMutex{}
		l.locks[id] = m
	}
	m.waiters++
	l.mu.Unlock()

	m.Lock()
}

func (l *WalletLocker) release(id uuid.UUID) {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		l.mu.Unlock()
		panic(fmt.Sprintf("unlock of unlocked wallet %s", id))
	}
	m.waiters--
	if m.waiters == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()

	m.Unlock()
}

// size reports the number of tracked ids.
func (l *WalletLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
