// Package ledger maps federated external identities to durable internal user
// ids, allocating each user id exactly once per external identity.
package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Ledger resolves an external identity to the internal user id, creating the
// mapping on first login. The mapping is never updated or deleted.
type Ledger interface {
	Resolve(ctx context.Context, providerID int, uniqueID string) (string, error)
}

// ExternalID is the composite key persisted for an external identity.
func ExternalID(providerID int, uniqueID string) string {
	return fmt.Sprintf("%d:%s", providerID, uniqueID)
}

// newUserID returns a fresh 16-hex-character user id. At 64 random bits the
// collision probability is negligible for this population.
func newUserID() (string, error) {
	buffer := make([]byte, 8)
	if _, err := rand.Read(buffer); err != nil {
		return "", fmt.Errorf("ledger.new_user_id: %w", err)
	}
	return hex.EncodeToString(buffer), nil
}
