package models

import (
	"encoding/json"
	"time"
)

// Role determines what a member may do within a project.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// CanEdit reports whether the role allows plan mutation.
func (r Role) CanEdit() bool {
	return r == RoleAdmin || r == RoleEditor
}

// Member associates a user with a role on a project.
type Member struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

// Project is the root plan document: an ordered list of phases owned by one
// user and shared with members.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	Members   []Member  `json:"members,omitempty"`
	Phases    []*Phase  `json:"phases"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RoleOf returns the caller's role on the project. The owner is always an
// admin, even when not listed in Members.
func (p *Project) RoleOf(userID string) (Role, bool) {
	if userID == "" {
		return "", false
	}
	if userID == p.OwnerID {
		return RoleAdmin, true
	}
	for _, m := range p.Members {
		if m.UserID == userID {
			return m.Role, true
		}
	}
	return "", false
}

// Clone returns a deep copy of the project via a JSON round-trip. The plan
// document is required to survive serialization unchanged, so this is both
// the snapshot mechanism and a cheap structural integrity check.
func (p *Project) Clone() *Project {
	data, err := json.Marshal(p)
	if err != nil {
		return nil
	}
	out := &Project{}
	if err := json.Unmarshal(data, out); err != nil {
		return nil
	}
	return out
}
