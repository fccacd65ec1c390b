// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account. Salt and Verifier come from the device; the server
// never sees the password or the master key.
type User struct {
	ID        string
	UserName  string
	Salt      []byte
	Verifier  []byte
	CreatedAt time.Time
}
