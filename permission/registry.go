package permission

import (
	"errors"
	"sync"
)

// Platform permissions. Bit positions are assigned by [DefaultRegistry] in this order.
const (
	PermExamTake       = "exam.take"
	PermResultsViewOwn = "results.view_own"
	PermExamCreate     = "exam.create"
	PermExamSchedule   = "exam.schedule"
	PermExamGrade      = "exam.grade"
	PermResultsViewAll = "results.view_all"
	PermUsersManage    = "users.manage"
	PermSettingsManage = "settings.manage"
	PermAuditRead      = "audit.read"
)

// Registry maps permission names to bit positions within a [Mask64].
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry returns an empty, unfrozen registry.
func NewRegistry() *Registry {
	return &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
}

// DefaultRegistry returns a frozen registry holding every platform permission.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, name := range []string{
		PermExamTake,
		PermResultsViewOwn,
		PermExamCreate,
		PermExamSchedule,
		PermExamGrade,
		PermResultsViewAll,
		PermUsersManage,
		PermSettingsManage,
		PermAuditRead,
	} {
		if _, err := r.Register(name); err != nil {
			panic("permission: " + err.Error())
		}
	}
	r.Freeze()
	return r
}

// Register assigns the next available bit to the named permission.
// Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return -1, errors.New("registry frozen")
	}
	if name == "" {
		return -1, errors.New("permission name cannot be empty")
	}
	if _, exists := r.nameToBit[name]; exists {
		return -1, errors.New("permission already registered")
	}

	nextBit := len(r.nameToBit)
	if nextBit >= 64 {
		return -1, errors.New("permission limit exceeded")
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name
	return nextBit, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Names expands mask into permission names in bit order.
func (r *Registry) Names(mask Mask64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.bitToName))
	for bit := 0; bit < 64; bit++ {
		if !mask.Has(bit) {
			continue
		}
		if name, ok := r.bitToName[bit]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}
