package engine

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"ammEngine/internal/model"
)

// Locker hands out balance locks over sets of account keys. Two live locks
// never share an account key; an overlapping acquisition fails instead of
// blocking, leaving retry policy to the caller.
type Locker struct {
	mu   sync.Mutex
	held map[string]string // account key -> lock id
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]string)}
}

// Acquire claims every account key in one atomic step. Keys are deduplicated
// and sorted so lock contents are deterministic regardless of caller order.
func (l *Locker) Acquire(actionType, actionID, identifier string, accountKeys []string) (*model.BalanceLock, error) {
	keys := sortedUnique(accountKeys)
	if len(keys) == 0 {
		return nil, fmt.Errorf("balance lock needs at least one account key")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range keys {
		if holder, ok := l.held[key]; ok {
			return nil, fmt.Errorf("account %s already locked by %s", key, holder)
		}
	}

	lock := model.NewBalanceLock(uuid.NewString(), actionType, actionID, identifier, keys)
	for _, key := range keys {
		l.held[key] = lock.LockID
	}
	return lock, nil
}

// Release transitions the lock to RELEASED and frees its account keys.
// Releasing an already released lock is a no-op.
func (l *Locker) Release(lock *model.BalanceLock) {
	if lock == nil || !lock.Release().Applied() {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, key := range lock.AccountKeys {
		if l.held[key] == lock.LockID {
			delete(l.held, key)
		}
	}
}

func sortedUnique(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
