package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/receiptdesk/receiptdesk/internal/password"
)

// ErrAdminPasswordRequired is returned when an admin has to be seeded but no password is configured.
var ErrAdminPasswordRequired = errors.New("admin password is required to seed the initial admin account")

// EnsureAdmin creates the initial admin account unless an admin already exists.
// It reports whether an account was created.
func EnsureAdmin(ctx context.Context, db UserDB, username, plainPassword string) (bool, error) {
	exists, err := db.AdminExists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check for admin account: %w", err)
	}
	if exists {
		return false, nil
	}
	if plainPassword == "" {
		return false, ErrAdminPasswordRequired
	}

	hash, err := password.Hash(plainPassword)
	if err != nil {
		return false, err
	}
	if _, err := db.CreateUser(ctx, username, hash, RoleAdmin); err != nil {
		return false, fmt.Errorf("failed to create admin account: %w", err)
	}
	log.Info("Created initial admin account", "username", username)
	return true, nil
}
