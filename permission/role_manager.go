package permission

import (
	"errors"
	"fmt"
	"sync"
)

// RoleManager resolves a [Role] to its permission mask.
//
// RoleManager instances are configured during initialization, frozen, and then
// treated as immutable.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[Role]Mask64
	frozen bool
}

// NewRoleManager returns a RoleManager backed by registry.
func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[Role]Mask64),
	}
}

// DefaultRoleManager returns a frozen RoleManager with the platform role grants.
func DefaultRoleManager() *RoleManager {
	rm := NewRoleManager(DefaultRegistry())
	grants := map[Role][]string{
		RoleStudent: {PermExamTake, PermResultsViewOwn},
		RoleTeacher: {PermResultsViewOwn, PermExamCreate, PermExamSchedule, PermExamGrade, PermResultsViewAll},
		RoleAdmin: {
			PermResultsViewOwn, PermExamCreate, PermExamSchedule, PermExamGrade,
			PermResultsViewAll, PermUsersManage, PermSettingsManage, PermAuditRead,
		},
	}
	for _, role := range Roles() {
		if err := rm.RegisterRole(role, grants[role]); err != nil {
			panic("permission: " + err.Error())
		}
	}
	rm.Freeze()
	return rm
}

// RegisterRole binds role to the named permissions. Every name must already
// exist in the registry.
func (rm *RoleManager) RegisterRole(role Role, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if !role.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownRole, string(role))
	}
	if _, exists := rm.roles[role]; exists {
		return errors.New("role already registered")
	}

	var mask Mask64
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return errors.New("permission not registered: " + perm)
		}
		mask.Set(bit)
	}

	rm.roles[role] = mask
	return nil
}

// Mask returns the permission mask bound to role.
func (rm *RoleManager) Mask(role Role) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	mask, ok := rm.roles[role]
	return mask, ok
}

// Permissions returns the permission names granted to role.
func (rm *RoleManager) Permissions(role Role) ([]string, bool) {
	mask, ok := rm.Mask(role)
	if !ok {
		return nil, false
	}
	return rm.registry.Names(mask), true
}

// Allows reports whether role holds the named permission.
func (rm *RoleManager) Allows(role Role, perm string) bool {
	mask, ok := rm.Mask(role)
	if !ok {
		return false
	}
	bit, ok := rm.registry.Bit(perm)
	if !ok {
		return false
	}
	return mask.Has(bit)
}

// Validate fails when any enumerated role lacks a registration.
func (rm *RoleManager) Validate() error {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, role := range Roles() {
		if _, ok := rm.roles[role]; !ok {
			return fmt.Errorf("role %q has no permission set", role)
		}
	}
	return nil
}

// Freeze prevents further role registrations.
func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

// Count returns the number of registered roles.
func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
