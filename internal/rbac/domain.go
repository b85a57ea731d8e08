package rbac

import "time"

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Permission represents an atomic capability, keyed "<resource>.<action>".
type Permission struct {
	ID          int64
	Key         string
	Description string
}

// Grant resolves everything the access guards need to know about a subject.
// Absence of rows is a valid empty grant, not an error.
type Grant struct {
	Roles       []string
	Permissions []string
	StoreIDs    []int64
}
