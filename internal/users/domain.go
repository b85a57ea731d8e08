package users

import "time"

// User is a directory entry. Credentials live with the identity provider;
// this table only mirrors profile data the admin surfaces need.
type User struct {
	ID        string
	Email     string
	FullName  string
	Phone     string
	CreatedAt time.Time
}
