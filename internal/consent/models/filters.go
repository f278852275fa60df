package models

// RequestFilter narrows request listings. Empty fields match everything.
type RequestFilter struct {
	RecordID    string
	OwnerID     string
	RequesterID string
	Statuses    []RequestStatus
}

func (f RequestFilter) Matches(r *AccessRequest) bool {
	if f.RecordID != "" && r.RecordID != f.RecordID {
		return false
	}
	if f.OwnerID != "" && r.OwnerID != f.OwnerID {
		return false
	}
	if f.RequesterID != "" && r.RequesterID != f.RequesterID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

// GrantFilter narrows grant listings by stored status. Empty fields match
// everything.
type GrantFilter struct {
	RecordID  string
	OwnerID   string
	GranteeID string
	Statuses  []GrantStatus
}

func (f GrantFilter) Matches(g *AccessGrant) bool {
	if f.RecordID != "" && g.RecordID != f.RecordID {
		return false
	}
	if f.OwnerID != "" && g.OwnerID != f.OwnerID {
		return false
	}
	if f.GranteeID != "" && g.GranteeID != f.GranteeID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if g.Status == s {
			return true
		}
	}
	return false
}
