package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/face-registry/internal/constants"
)

// MemoryStore keeps tokens in process memory; they are lost on restart.
type MemoryStore struct {
	ttl    time.Duration
	digits int
	tokens map[string]Token
	mu     sync.RWMutex
	now    func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewMemoryStore creates an empty store. A ttl of 0 keeps tokens valid until revoked.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:    ttl,
		digits: constants.TokenDigits,
		tokens: make(map[string]Token),
		now:    time.Now,
		stop:   make(chan struct{}),
	}
}

// Issue creates a new token
func (s *MemoryStore) Issue(ctx context.Context) (Token, error) {
	tok, err := newToken(s.digits, s.ttl, s.now())
	if err != nil {
		return Token{}, err
	}

	s.mu.Lock()
	s.tokens[tok.Value] = tok
	s.mu.Unlock()

	return tok, nil
}

// Validate checks whether a token is live
func (s *MemoryStore) Validate(ctx context.Context, value string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tok, ok := s.tokens[value]
	if !ok {
		return false, nil
	}
	return !tok.Expired(s.now()), nil
}

// Revoke removes a token
func (s *MemoryStore) Revoke(ctx context.Context, value string) error {
	s.mu.Lock()
	delete(s.tokens, value)
	s.mu.Unlock()
	return nil
}

// Expire removes every expired token
func (s *MemoryStore) Expire(ctx context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for value, tok := range s.tokens {
		if tok.Expired(now) {
			delete(s.tokens, value)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of stored tokens, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tokens)
}

// StartJanitor runs Expire every interval until Stop is called.
func (s *MemoryStore) StartJanitor(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_, _ = s.Expire(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the janitor, if running, and waits for it to exit.
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}
