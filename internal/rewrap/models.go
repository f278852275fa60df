package rewrap

import (
	"context"
	"time"
)

// WrappedKey is a grantee's copy of a record's data key. It is keyed by
// (RecordID, GranteeID); a later write for the same pair replaces it.
type WrappedKey struct {
	RecordID   string    `json:"recordId"`
	GranteeID  string    `json:"granteeId"`
	OwnerID    string    `json:"ownerId"`
	GrantID    string    `json:"grantId"`
	WrappedDEK []byte    `json:"wrappedDEK"`
	IV         []byte    `json:"iv"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// KeyStore persists grantee keys.
type KeyStore interface {
	Upsert(ctx context.Context, key WrappedKey) error
	Get(ctx context.Context, recordID, granteeID string) (*WrappedKey, error)
}
