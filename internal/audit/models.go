package audit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Action is the closed set of audited actions.
type Action string

const (
	ActionCreate        Action = "create"
	ActionView          Action = "view"
	ActionDownload      Action = "download"
	ActionRequestAccess Action = "request_access"
	ActionGrantAccess   Action = "grant_access"
	ActionRevokeAccess  Action = "revoke_access"
	ActionDenyAccess    Action = "deny_access"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionView, ActionDownload, ActionRequestAccess, ActionGrantAccess,
		ActionRevokeAccess, ActionDenyAccess, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Entry is one immutable audit record.
type Entry struct {
	LogID     string         `json:"logId"`
	RecordID  string         `json:"recordId"`
	ActorID   string         `json:"actorId"`
	Action    Action         `json:"action"`
	TargetID  string         `json:"targetId,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	IPAddress string         `json:"ipAddress,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Store is append-only. List methods return newest first, capped at limit.
type Store interface {
	Append(ctx context.Context, e Entry) error
	ListByRecord(ctx context.Context, recordID string, limit int) ([]Entry, error)
	ListByActor(ctx context.Context, actorID string, limit int) ([]Entry, error)
	ListRecent(ctx context.Context, limit int) ([]Entry, error)
}

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// ClampLimit normalizes a caller supplied page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// NewLogID returns log_<unix millis>_<uuid>. The millisecond prefix keeps ids
// roughly time ordered; the uuid makes them unique.
func NewLogID(now time.Time) string {
	return "log_" + strconv.FormatInt(now.UnixMilli(), 10) + "_" + uuid.NewString()
}
