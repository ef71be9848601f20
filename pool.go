package nwc

import (
	"log/slog"
	"sync"
	"time"
)

// SessionPool caches sessions by connection URI so repeated callers skip URI
// parsing and key derivation. The pool is an explicit object owned by the
// caller; there is no package-level instance.

const (
	defaultPoolIdleTimeout     = 10 * time.Minute
	defaultPoolCleanupInterval = 5 * time.Minute
)

type poolEntry struct {
	session    *Session
	mu         sync.Mutex
	lastActive time.Time
}

func (e *poolEntry) touch() {
	e.mu.Lock()
	e.lastActive = time.Now()
	e.mu.Unlock()
}

func (e *poolEntry) idleFor(timeout time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Since(e.lastActive) > timeout
}

// SessionPool holds derived sessions and evicts idle ones in the background.
type SessionPool struct {
	mu          sync.RWMutex
	entries     map[string]*poolEntry
	idleTimeout time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
	log         *slog.Logger
}

// NewSessionPool creates a pool. idleTimeout <= 0 uses the default of ten
// minutes. Close must be called to stop the eviction goroutine.
func NewSessionPool(idleTimeout time.Duration) *SessionPool {
	if idleTimeout <= 0 {
		idleTimeout = defaultPoolIdleTimeout
	}
	p := &SessionPool{
		entries:     make(map[string]*poolEntry),
		idleTimeout: idleTimeout,
		stop:        make(chan struct{}),
		log:         slog.Default(),
	}
	go p.reap()
	return p
}

func (p *SessionPool) reap() {
	ticker := time.NewTicker(defaultPoolCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.evictIdle()
		case <-p.stop:
			return
		}
	}
}

func (p *SessionPool) evictIdle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for uri, entry := range p.entries {
		if entry.idleFor(p.idleTimeout) {
			delete(p.entries, uri)
		}
	}
	p.log.Debug("session pool cleanup", "active", len(p.entries))
}

// Get returns the cached session for uri, deriving a new one on first use.
func (p *SessionPool) Get(uri string) (*Session, error) {
	p.mu.RLock()
	entry, ok := p.entries[uri]
	p.mu.RUnlock()
	if ok {
		entry.touch()
		return entry.session, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another caller may have derived it while we waited for the lock.
	if entry, ok := p.entries[uri]; ok {
		entry.touch()
		return entry.session, nil
	}

	session, err := NewSession(uri)
	if err != nil {
		return nil, err
	}
	p.entries[uri] = &poolEntry{session: session, lastActive: time.Now()}
	p.log.Debug("session pool add", "wallet", session.WalletPubKey(), "size", len(p.entries))
	return session, nil
}

// Remove drops the cached session for uri, if any.
func (p *SessionPool) Remove(uri string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, uri)
}

// Len reports how many sessions are cached.
func (p *SessionPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Close stops the eviction goroutine and drops all cached sessions.
func (p *SessionPool) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.mu.Lock()
	p.entries = make(map[string]*poolEntry)
	p.mu.Unlock()
}
