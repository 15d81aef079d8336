package model

// Role controls which ledger operations a user may perform.
type Role string

const (
	RoleRegular   Role = "regular"
	RoleCashier   Role = "cashier"
	RoleManager   Role = "manager"
	RoleSuperuser Role = "superuser"
)

type User struct {
	ID         int64  `json:"id"`
	Utorid     string `json:"utorid"`
	Role       Role   `json:"role"`
	Balance    uint   `json:"balance"`
	Verified   bool   `json:"verified"`
	Suspicious bool   `json:"suspicious"`
	Activated  bool   `json:"activated"`
}

// IsClerk reports whether the user may record purchases and process redemptions.
func (u *User) IsClerk() bool {
	return u.Role == RoleCashier || u.IsManager()
}

// IsManager reports whether the user has manager-level privileges.
func (u *User) IsManager() bool {
	return u.Role == RoleManager || u.Role == RoleSuperuser
}
