package models

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
	RoleKitchen  Role = "kitchen"
	RoleDriver   Role = "driver"
	// RoleSystem is used for transitions driven by the service itself,
	// e.g. payment verification and gateway webhooks.
	RoleSystem Role = "system"
)

func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCustomer, RoleAdmin, RoleKitchen, RoleDriver:
		return Role(s), true
	}
	return "", false
}

// Actor is the caller of an operation. Every operation checks the actor it
// is given; there is no ambient current user.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

var SystemActor = Actor{ID: "system", Role: RoleSystem}

func (a Actor) Is(r Role) bool { return a.Role == r }

func (a Actor) IsStaff() bool { return a.Role == RoleAdmin || a.Role == RoleKitchen }
