package domain

import "time"

// User is a resource owner who can authenticate with username and password.
type User struct {
	ID           string // ULID primary key
	Username     string
	PasswordHash string // Argon2id PHC format
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
