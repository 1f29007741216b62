package models

// Role represents the job function of the acting user.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleFleetManager Role = "fleet_manager"
	RoleSupervisor   Role = "supervisor"
	RoleInspector    Role = "inspector"
	RoleDriver       Role = "driver"
)

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleAdmin, RoleFleetManager, RoleSupervisor, RoleInspector, RoleDriver:
		return true
	default:
		return false
	}
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	BranchID string `json:"branch_id,omitempty"`
	Exp      int64  `json:"exp"`
}
