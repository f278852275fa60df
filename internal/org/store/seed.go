package store

import (
	"context"
	"errors"
	"time"

	"medblock/internal/org/models"
	"medblock/pkg/platform/sentinel"
)

type creator interface {
	Create(ctx context.Context, org *models.Organization) error
}

// DefaultOrganizations is the directory a fresh deployment starts with.
var DefaultOrganizations = []struct {
	OrgID string
	Name  string
	Email string
}{
	{OrgID: "hospital-a", Name: "Hospital A - Medical Center", Email: "admin@hospitala.com"},
	{OrgID: "hospital-b", Name: "Hospital B - Regional Clinic", Email: "admin@hospitalb.com"},
	{OrgID: "org1", Name: "Organization 1", Email: "admin@org1.com"},
}

// SeedDefaults creates the default organizations. Ids that already exist
// are left alone, so it is safe to run on every start. It returns how many
// organizations were created.
func SeedDefaults(ctx context.Context, s creator, now time.Time) (int, error) {
	created := 0
	for _, d := range DefaultOrganizations {
		org, err := models.NewOrganization(d.OrgID, d.Name, models.TypeHospital, d.Email, now)
		if err != nil {
			return created, err
		}
		err = s.Create(ctx, org)
		if errors.Is(err, sentinel.ErrConflict) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
