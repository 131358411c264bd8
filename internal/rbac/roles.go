package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts and
// of the appointment visibility rules in internal/records.
const (
	RolePatient   = "patient"
	RoleCaregiver = "caregiver"
	RoleDoctor    = "doctor"
	RoleAdmin     = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

func IsKnownRole(role string) bool {
	switch role {
	case RolePatient, RoleCaregiver, RoleDoctor, RoleAdmin:
		return true
	}
	return false
}
