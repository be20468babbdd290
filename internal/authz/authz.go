// Package authz is the authorization gate: a static table from role to the
// operations that role may perform.
package authz

import (
	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/models"
)

type Operation string

const (
	ReadInventory  Operation = "read_inventory"
	WriteInventory Operation = "write_inventory"
	TransferItems  Operation = "transfer_items"
	ManageUsers    Operation = "manage_users"
	ViewAudit      Operation = "view_audit"
)

var permissions = map[models.UserRole]map[Operation]bool{
	models.RoleAdmin: {
		ReadInventory:  true,
		WriteInventory: true,
		TransferItems:  true,
		ManageUsers:    true,
		ViewAudit:      true,
	},
	models.RoleManager: {
		ReadInventory:  true,
		WriteInventory: true,
		TransferItems:  true,
		ViewAudit:      true,
	},
	models.RoleViewer: {
		ReadInventory: true,
	},
}

// Actor is the authenticated caller as supplied by the auth layer.
type Actor struct {
	UserID   uint
	UserName string
	Role     models.UserRole
}

func Allowed(role models.UserRole, op Operation) bool {
	return permissions[role][op]
}

// Check returns an Unauthorized error when role may not perform op.
func Check(role models.UserRole, op Operation) error {
	if Allowed(role, op) {
		return nil
	}
	return apperr.New(apperr.ErrUnauthorized, string(op), "operation not permitted for role", apperr.Fields{
		"role":      string(role),
		"operation": string(op),
	})
}

func (a Actor) Can(op Operation) error {
	return Check(a.Role, op)
}
