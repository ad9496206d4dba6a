// Package access decides whether a session identity may use a resource.
package access

import (
	"context"
	"fmt"

	"github.com/receiptdesk/receiptdesk/internal/apperr"
	"github.com/receiptdesk/receiptdesk/internal/database"
)

const (
	MsgAuthenticationRequired = "Authentication required"
	MsgAdminRequired          = "Admin access required"
	MsgAccessDenied           = "Access denied"
)

// Identity is the authenticated user attached to a request.
type Identity struct {
	UserID   uint
	Username string
	Role     database.Role
}

// IsAdmin reports whether the identity has the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == database.RoleAdmin
}

// Policy is the minimum requirement an endpoint places on the caller.
type Policy int

const (
	// Authenticated allows any logged-in user.
	Authenticated Policy = iota
	// AdminOnly allows admins only.
	AdminOnly
)

func (p Policy) String() string {
	if p == AdminOnly {
		return "admin"
	}
	return "authenticated"
}

// OwnerCheck reports whether a non-admin identity owns the requested resource.
type OwnerCheck func(ctx context.Context, id *Identity) (bool, error)

// Authorize returns nil if id satisfies policy and, for non-admins, ownerCheck.
// Denials are returned as *apperr.Error.
func Authorize(ctx context.Context, id *Identity, policy Policy, ownerCheck OwnerCheck) error {
	if id == nil {
		return apperr.Authentication(MsgAuthenticationRequired)
	}
	if policy == AdminOnly && !id.IsAdmin() {
		// admin-only endpoints answer 401 rather than 403
		return apperr.Authentication(MsgAdminRequired)
	}
	if ownerCheck == nil || id.IsAdmin() {
		return nil
	}

	ok, err := ownerCheck(ctx, id)
	if err != nil {
		return apperr.Internal(fmt.Errorf("owner check failed: %w", err))
	}
	if !ok {
		return apperr.Authorization(MsgAccessDenied)
	}
	return nil
}

// ReceiptOwner allows access to filename if it belongs to a record assigned to the caller.
func ReceiptOwner(db database.RecordDB, filename string) OwnerCheck {
	return func(ctx context.Context, id *Identity) (bool, error) {
		return db.UserHasReceipt(ctx, id.UserID, filename)
	}
}
