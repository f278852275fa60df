// Package models holds the organization directory entities.
package models

import (
	"net/mail"
	"time"

	dErrors "medblock/pkg/domain-errors"
)

type Type string

const (
	TypeHospital  Type = "hospital"
	TypeClinic    Type = "clinic"
	TypeResearch  Type = "research"
	TypeInsurance Type = "insurance"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeHospital, TypeClinic, TypeResearch, TypeInsurance:
		return true
	}
	return false
}

type Status string

const (
	StatusActive    Status = "active"
	StatusInactive  Status = "inactive"
	StatusSuspended Status = "suspended"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

const maxNameLength = 128

// Organization is a participant that can own records and receive grants.
//
// Invariants:
//   - OrgID and Email are non-empty
//   - Name is non-empty and at most 128 characters
//   - Only active organizations may request or receive access
type Organization struct {
	OrgID     string    `json:"orgId"`
	Name      string    `json:"name"`
	Type      Type      `json:"type"`
	Email     string    `json:"email"`
	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewOrganization validates the fields and returns an active organization.
// An empty type defaults to hospital.
func NewOrganization(orgID, name string, typ Type, email string, now time.Time) (*Organization, error) {
	if typ == "" {
		typ = TypeHospital
	}
	switch {
	case orgID == "":
		return nil, dErrors.New(dErrors.CodeValidation, "orgId is required")
	case name == "":
		return nil, dErrors.New(dErrors.CodeValidation, "organization name cannot be empty")
	case len(name) > maxNameLength:
		return nil, dErrors.New(dErrors.CodeValidation, "organization name must be 128 characters or less")
	case !typ.IsValid():
		return nil, dErrors.New(dErrors.CodeValidation, "unknown organization type")
	case email == "":
		return nil, dErrors.New(dErrors.CodeValidation, "organization email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, "organization email is invalid")
	}
	return &Organization{
		OrgID:     orgID,
		Name:      name,
		Type:      typ,
		Email:     email,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (o *Organization) IsActive() bool {
	return o.Status == StatusActive
}

// Summary is the public directory view of an organization.
type Summary struct {
	OrgID string `json:"orgId"`
	Name  string `json:"name"`
	Type  Type   `json:"type"`
	Email string `json:"email"`
}

func (o *Organization) Summary() Summary {
	return Summary{OrgID: o.OrgID, Name: o.Name, Type: o.Type, Email: o.Email}
}
