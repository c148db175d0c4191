// Package lock serializes mutating transactions per account.
package lock

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"forwardlock/internal/model"
)

// Locker grants exclusive, expiring locks. Acquire returns
// model.ErrMutationInFlight when the key is held. The returned release func is
// safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// AccountKey is the lock key for mutations sent from account.
func AccountKey(chainID int64, account common.Address) string {
	var b strings.Builder
	b.WriteString("mutation:")
	b.WriteString(strings.ToLower(account.Hex()))
	if chainID != 0 {
		b.WriteString("@")
		b.WriteString(strconv.FormatInt(chainID, 10))
	}
	return b.String()
}

type entry struct {
	token   string
	expires time.Time
}

// LocalLocker is an in-process Locker.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]entry
	now  func() time.Time
}

// NewLocalLocker creates an in-process locker.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]entry), now: time.Now}
}

// Acquire implements Locker.
func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && (cur.expires.IsZero() || now.Before(cur.expires)) {
		return nil, model.ErrMutationInFlight
	}

	token := uuid.New().String()
	e := entry{token: token}
	if ttl > 0 {
		e.expires = now.Add(ttl)
	}
	l.held[key] = e

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if cur, ok := l.held[key]; ok && cur.token == token {
				delete(l.held, key)
			}
			l.mu.Unlock()
		})
	}, nil
}
