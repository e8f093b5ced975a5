package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin   = "admin"
	RoleSupport = "support" // read-only staff
	RoleClient  = "client"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsStaff(role string) bool { return role == RoleAdmin || role == RoleSupport }
