package domain

import (
	"dm-lab/errors"
	"strings"
)

// User is the read-only view of an account the chat relies on.
type User struct {
	ID        string
	Username  string
	FullName  string
	AvatarURL string
	IsActive  bool
}

// ValidateUserID rejects ids that cannot be used as part of a storage key.
func ValidateUserID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.Validation("user id is required")
	}
	if strings.ContainsAny(id, ": \t\n") {
		return errors.Validation("user id %q contains forbidden characters", id)
	}
	return nil
}
