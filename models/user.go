package models

// User is a login account. Users are configured at startup, not stored in the database.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Disabled     bool   `json:"disabled"`
}

// NewUser creates a new active User with an already hashed password
func NewUser(username, passwordHash string) *User {
	return &User{
		Username:     username,
		PasswordHash: passwordHash,
	}
}

// IsActive returns true if the user may log in
func (u *User) IsActive() bool {
	return !u.Disabled
}
