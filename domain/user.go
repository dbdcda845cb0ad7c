package domain

import (
	"errors"
	"unicode/utf8"
)

// Role controls which forwarding actions a user may take.
type Role string

const (
	RoleOwner     Role = "Owner"
	RoleInspector Role = "Inspector"
	RoleNone      Role = "No Role"
)

// MinPasswordLength is the shortest password accepted for web sign-in.
const MinPasswordLength = 6

var (
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
	ErrPasswordMismatch = errors.New("passwords do not match")
)

// User is a participant known to the tracker. ID is the identity provider's
// user id.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	NickName     string `json:"nickName,omitempty"`
	Role         Role   `json:"role,omitempty"`
	PasswordHash string `json:"-"`
}

// DisplayName is the short name used in forwarding and holder summaries.
func (u User) DisplayName() string {
	if u.NickName != "" {
		return u.NickName
	}
	return u.Name
}

// NewUser materializes a freshly signed-in identity. New users wait for an
// administrator to grant them a role.
func NewUser(id, displayName string) User {
	return User{ID: id, Name: displayName, Role: RoleNone}
}

// FindUser returns the user with the given id.
func FindUser(users []User, id string) (User, bool) {
	for _, u := range users {
		if u.ID == id {
			return u, true
		}
	}
	return User{}, false
}

// Inspectors keeps the users holding the Inspector role, in input order.
func Inspectors(users []User) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		if u.Role == RoleInspector {
			out = append(out, u)
		}
	}
	return out
}

// ValidatePassword checks a new password and its confirmation.
func ValidatePassword(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}
