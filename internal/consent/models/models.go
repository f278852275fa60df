package models

import (
	"time"
)

// RecordStatus is the lifecycle state of an encrypted record.
type RecordStatus string

const (
	RecordActive   RecordStatus = "active"
	RecordArchived RecordStatus = "archived"
	RecordRevoked  RecordStatus = "revoked"
)

// RequestStatus is the lifecycle state of an access request. Pending is the
// only non-terminal state.
type RequestStatus string

const (
	RequestPending   RequestStatus = "pending"
	RequestApproved  RequestStatus = "approved"
	RequestDenied    RequestStatus = "denied"
	RequestCancelled RequestStatus = "cancelled"
)

func (s RequestStatus) IsTerminal() bool {
	return s != RequestPending
}

// GrantStatus is the stored state of an access grant. Expiry is also derived
// from ExpiryDate at read time; see AccessGrant.Usable.
type GrantStatus string

const (
	GrantActive  GrantStatus = "active"
	GrantRevoked GrantStatus = "revoked"
	GrantExpired GrantStatus = "expired"
)

const (
	DefaultExpiryDays = 30
	MaxExpiryDays     = 3650
)

// Record is an encrypted medical record owned by one organization.
type Record struct {
	RecordID       string       `json:"recordId"`
	OwnerID        string       `json:"ownerId"`
	PatientID      string       `json:"patientId,omitempty"`
	StoragePointer string       `json:"storagePointer"`
	CiphertextHash string       `json:"ciphertextHash"`
	WrappedDEK     []byte       `json:"wrappedDEK"`
	IV             []byte       `json:"iv"`
	PolicyID       string       `json:"policyId"`
	Status         RecordStatus `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// AccessRequest is one organization asking another for access to a record.
type AccessRequest struct {
	RequestID       string        `json:"requestId"`
	RecordID        string        `json:"recordId"`
	OwnerID         string        `json:"ownerId"`
	RequesterID     string        `json:"requesterId"`
	Purpose         string        `json:"purpose"`
	Status          RequestStatus `json:"status"`
	ExpiryDays      int           `json:"expiryDays"`
	RequestedAt     time.Time     `json:"requestedAt"`
	RespondedAt     *time.Time    `json:"respondedAt,omitempty"`
	ResponseMessage string        `json:"responseMessage,omitempty"`
}

// AccessGrant carries the record's data key re-wrapped to the grantee.
type AccessGrant struct {
	GrantID              string      `json:"grantId"`
	RecordID             string      `json:"recordId"`
	OwnerID              string      `json:"ownerId"`
	GranteeID            string      `json:"granteeId"`
	Purpose              string      `json:"purpose"`
	WrappedDEKForGrantee []byte      `json:"wrappedDEKForGrantee"`
	Status               GrantStatus `json:"status"`
	ExpiryDate           time.Time   `json:"expiryDate"`
	GrantedAt            time.Time   `json:"grantedAt"`
	RevokedAt            *time.Time  `json:"revokedAt,omitempty"`
	AccessCount          int64       `json:"accessCount"`
	LastAccessedAt       *time.Time  `json:"lastAccessedAt,omitempty"`
}

// Usable reports whether the grant may release key material at now. The
// stored status alone is never trusted: an active grant past its expiry date
// is not usable even before the sweep writes the expiry back.
func (g *AccessGrant) Usable(now time.Time) bool {
	return g.Status == GrantActive && g.ExpiryDate.After(now)
}

// EffectiveStatus returns the status a reader should see at now.
func (g *AccessGrant) EffectiveStatus(now time.Time) GrantStatus {
	if g.Status == GrantActive && !g.ExpiryDate.After(now) {
		return GrantExpired
	}
	return g.Status
}

// GranteeKey is the resolved key material handed to a grantee.
type GranteeKey struct {
	GrantID    string    `json:"grantId"`
	RecordID   string    `json:"recordId"`
	GranteeID  string    `json:"granteeId"`
	WrappedDEK []byte    `json:"wrappedDEK"`
	IV         []byte    `json:"iv"`
	ExpiryDate time.Time `json:"expiryDate"`
}

// SharedRecord is a record visible to a grantee through a usable grant.
type SharedRecord struct {
	Record *Record      `json:"record"`
	Grant  *AccessGrant `json:"grant"`
}

// ExpiryFromDays resolves an expiry-days input to an absolute date. Zero
// selects DefaultExpiryDays.
func ExpiryFromDays(now time.Time, days int) time.Time {
	if days == 0 {
		days = DefaultExpiryDays
	}
	return now.AddDate(0, 0, days)
}

// ValidExpiryDays reports whether days is acceptable as request input.
func ValidExpiryDays(days int) bool {
	return days >= 0 && days <= MaxExpiryDays
}
