// Package ledger mirrors consent transitions to an external append-only
// ledger. The mirror is best effort: callers log and absorb its failures.
package ledger

import (
	"context"
)

// Transaction names accepted by the ledger.
const (
	TxCreateRecord  = "CreateRecord"
	TxRequestAccess = "RequestAccess"
	TxGrantAccess   = "GrantAccess"
	TxRevokeAccess  = "RevokeAccess"
	TxLogAccess     = "LogAccess"
)

// Transaction is a named ledger call with positional string arguments.
// RefID carries the engine's own identifier for the transition (request or
// grant ID) and is not part of the ledger arguments.
type Transaction struct {
	Name  string
	Args  []string
	RefID string
}

// CreateRecord args: recordId, ownerId, storagePointer, ciphertextHash, policyId.
func CreateRecord(recordID, ownerID, pointer, ciphertextHash, policyID string) Transaction {
	return Transaction{Name: TxCreateRecord, Args: []string{recordID, ownerID, pointer, ciphertextHash, policyID}, RefID: recordID}
}

// RequestAccess args: recordId, requesterId, purpose.
func RequestAccess(recordID, requesterID, purpose, requestID string) Transaction {
	return Transaction{Name: TxRequestAccess, Args: []string{recordID, requesterID, purpose}, RefID: requestID}
}

// GrantAccess args: recordId, granteeId, purpose, expiry (RFC 3339).
func GrantAccess(recordID, granteeID, purpose, expiry, grantID string) Transaction {
	return Transaction{Name: TxGrantAccess, Args: []string{recordID, granteeID, purpose, expiry}, RefID: grantID}
}

// RevokeAccess args: recordId, granteeId.
func RevokeAccess(recordID, granteeID, grantID string) Transaction {
	return Transaction{Name: TxRevokeAccess, Args: []string{recordID, granteeID}, RefID: grantID}
}

// LogAccess args: recordId, granteeId, action, metadataHash.
func LogAccess(recordID, granteeID, action, metadataHash string) Transaction {
	return Transaction{Name: TxLogAccess, Args: []string{recordID, granteeID, action, metadataHash}, RefID: recordID}
}

// RecordID returns the first positional argument, which every transaction
// keys on.
func (t Transaction) RecordID() string {
	if len(t.Args) == 0 {
		return ""
	}
	return t.Args[0]
}

// Client submits transactions. Implementations are selected once at startup.
type Client interface {
	Submit(ctx context.Context, txn Transaction) error
	Name() string
}

// Noop accepts every transaction and does nothing. It is the client used
// when no ledger is configured.
type Noop struct{}

func (Noop) Submit(context.Context, Transaction) error { return nil }

func (Noop) Name() string { return "noop" }
