package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventHeader is the Kafka header carrying the event name.
const EventHeader = "event"

// Event names emitted by the ledger.
const (
	EventRecordCreated   = "RecordCreated"
	EventAccessRequested = "AccessRequested"
	EventAccessGranted   = "AccessGranted"
	EventAccessRevoked   = "AccessRevoked"
	EventAccessLogged    = "AccessLogged"
)

// Event is the payload of a ledger event. Fields that an event does not
// carry are empty.
type Event struct {
	Name      string `json:"-"`
	RecordID  string `json:"recordId"`
	OwnerID   string `json:"ownerId,omitempty"`
	GranteeID string `json:"granteeId,omitempty"`
	Purpose   string `json:"purpose,omitempty"`
	RequestID string `json:"requestId,omitempty"`
	GrantID   string `json:"grantId,omitempty"`
	Expiry    string `json:"expiry,omitempty"`
	Action    string `json:"action,omitempty"`
	Metadata  string `json:"metadataHash,omitempty"`
	Timestamp string `json:"timestamp"`
}

var errUnknownTransaction = errors.New("unknown ledger transaction")

// EventFor derives the event the ledger emits once txn is committed.
func EventFor(txn Transaction, now time.Time) (Event, error) {
	arg := func(i int) string {
		if i < len(txn.Args) {
			return txn.Args[i]
		}
		return ""
	}
	ev := Event{RecordID: arg(0), Timestamp: now.UTC().Format(time.RFC3339Nano)}
	switch txn.Name {
	case TxCreateRecord:
		ev.Name = EventRecordCreated
		ev.OwnerID = arg(1)
	case TxRequestAccess:
		ev.Name = EventAccessRequested
		ev.GranteeID = arg(1)
		ev.Purpose = arg(2)
		ev.RequestID = txn.RefID
	case TxGrantAccess:
		ev.Name = EventAccessGranted
		ev.GranteeID = arg(1)
		ev.Purpose = arg(2)
		ev.Expiry = arg(3)
		ev.GrantID = txn.RefID
	case TxRevokeAccess:
		ev.Name = EventAccessRevoked
		ev.GranteeID = arg(1)
		ev.GrantID = txn.RefID
	case TxLogAccess:
		ev.Name = EventAccessLogged
		ev.GranteeID = arg(1)
		ev.Action = arg(2)
		ev.Metadata = arg(3)
	default:
		return Event{}, fmt.Errorf("%w: %q", errUnknownTransaction, txn.Name)
	}
	return ev, nil
}

// DecodeEvent parses an event payload under the given name.
func DecodeEvent(name string, payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode %s event: %w", name, err)
	}
	ev.Name = name
	return ev, nil
}
