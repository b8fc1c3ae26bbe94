// Package customer holds user profiles and seller group membership.
package customer

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/go-faster/errors"
)

// NameMaxLen is the storage limit for first and last names.
const NameMaxLen = 150

// ErrNotFound is returned when a user does not exist.
var ErrNotFound = errors.New("user not found")

// User is a customer or seller account.
type User struct {
	ID        int64
	Username  string
	Email     string
	FirstName string
	LastName  string
}

// FullName joins first and last name, or returns "" when both are empty.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Greeting is the name used to address the user in notifications.
func (u User) Greeting() string {
	if n := u.FullName(); n != "" {
		return n
	}
	if u.Username != "" {
		return u.Username
	}
	return "Customer"
}

// SplitFullName splits on the first space into first and last name, trimming
// both and truncating each to NameMaxLen runes.
func SplitFullName(full string) (first, last string) {
	first, last, _ = strings.Cut(strings.TrimSpace(full), " ")
	return truncate(strings.TrimSpace(first)), truncate(strings.TrimSpace(last))
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= NameMaxLen {
		return s
	}
	return string([]rune(s)[:NameMaxLen])
}

// Repository provides access to user profiles.
type Repository interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	UpdateName(ctx context.Context, id int64, first, last string) error
}

// GroupRepository manages group membership.
type GroupRepository interface {
	// EnsureGroup creates the group if missing and reports whether it did.
	EnsureGroup(ctx context.Context, name string) (created bool, err error)
	// AddMember adds the user to the group. It is idempotent and returns
	// ErrNotFound when the username does not exist.
	AddMember(ctx context.Context, group, username string) error
}
