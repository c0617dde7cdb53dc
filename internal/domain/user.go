package domain

import "time"

// User owns media and jobs. The access code is an opaque lookup key.
type User struct {
	ID         string
	AccessCode string
	Name       string
	CreatedAt  time.Time
}
