package flows

import "github.com/MrEthical07/examauth/permission"

// Deps groups the dependency set of every flow. The root engine builds it once.
type Deps struct {
	Refresh      RefreshDeps
	Logout       LogoutDeps
	Authenticate AuthenticateDeps
}

// Account is the part of a credential record the flows need.
type Account struct {
	UserID string
	Role   permission.Role
	Active bool
}
