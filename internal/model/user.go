package model

import "time"

// User is an identity record from the `users` table. A row is created
// verified once the email OTP is confirmed; Username and PasswordHash stay
// empty until credentials are set (or a federated login assigns them).
type User struct {
	ID            string    // users.id (UUID)
	Email         string    // users.email, unique, lower case
	Username      string    // users.username, unique when set
	PasswordHash  string    // users.password_hash (bcrypt)
	EmailVerified bool      // users.email_verified
	Role          string    // users.role
	CreatedAt     time.Time // users.created_at
	UpdatedAt     time.Time // users.updated_at
}

// HasCredentials reports whether the user can sign in with a password.
func (u User) HasCredentials() bool {
	return u.Username != "" && u.PasswordHash != ""
}
