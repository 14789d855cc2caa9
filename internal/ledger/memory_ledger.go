package ledger

import (
	"context"
	"sync"
)

// MemoryLedger keeps the identity mapping in a mutex-guarded map. Used for
// tests and local runs; durability requires DatabaseLedger.
type MemoryLedger struct {
	mutex   sync.Mutex
	byExtID map[string]string
}

// NewMemoryLedger constructs an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byExtID: make(map[string]string)}
}

// Resolve returns the existing user id or allocates one under the lock, so
// concurrent first-time resolutions observe a single winner.
func (store *MemoryLedger) Resolve(ctx context.Context, providerID int, uniqueID string) (string, error) {
	externalID := ExternalID(providerID, uniqueID)

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if userID, ok := store.byExtID[externalID]; ok {
		return userID, nil
	}
	userID, idErr := newUserID()
	if idErr != nil {
		return "", idErr
	}
	store.byExtID[externalID] = userID
	return userID, nil
}

// Len reports the number of ledger rows, for tests.
func (store *MemoryLedger) Len() int {
	store.mutex.Lock()
	defer store.mutex.Unlock()
	return len(store.byExtID)
}
