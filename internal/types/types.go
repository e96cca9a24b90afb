// README: Common identifiers and actor roles shared across modules.
package types

type ID string

// Role mirrors the member roles of the identity service. The core never
// stores members; it only authorizes operations against the role carried
// in the caller's token.
type Role string

const (
	RoleClient  Role = "client"
	RoleCompany Role = "company"
	RoleDriver  Role = "driver"
	RoleChief   Role = "chief"
	RoleAdmin   Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleCompany, RoleDriver, RoleChief, RoleAdmin:
		return true
	}
	return false
}

// CanOwnRequests reports whether the role may create and manage
// sending requests (individual clients and company accounts).
func (r Role) CanOwnRequests() bool {
	return r == RoleClient || r == RoleCompany
}

// Actor is the authenticated caller of a core operation.
type Actor struct {
	ID   ID
	Role Role
}
