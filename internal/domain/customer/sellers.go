package customer

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// MissingUsersError lists usernames that could not be added to a group.
type MissingUsersError struct {
	Usernames []string
}

func (e *MissingUsersError) Error() string {
	return fmt.Sprintf("user(s) not found: %s", strings.Join(e.Usernames, ", "))
}

// EnsureGroupMembers ensures the group exists and adds every username to it.
// All present users are added even when some are missing; the missing ones
// are reported together as a *MissingUsersError.
func EnsureGroupMembers(ctx context.Context, groups GroupRepository, group string, usernames []string) error {
	if group == "" {
		return errors.New("group name is required")
	}
	if _, err := groups.EnsureGroup(ctx, group); err != nil {
		return errors.Wrapf(err, "ensure group %q", group)
	}

	var missing []string
	for _, username := range usernames {
		err := groups.AddMember(ctx, group, username)
		switch {
		case errors.Is(err, ErrNotFound):
			missing = append(missing, username)
		case err != nil:
			return errors.Wrapf(err, "add %q to %q", username, group)
		}
	}

	if len(missing) > 0 {
		return &MissingUsersError{Usernames: missing}
	}
	return nil
}
