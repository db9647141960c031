package permission

import (
	"errors"
	"fmt"
	"strings"
)

// Role is a closed enumeration of platform roles.
type Role string

const (
	// RoleStudent sits exams and views their own results.
	RoleStudent Role = "student"
	// RoleTeacher authors, schedules and grades exams.
	RoleTeacher Role = "teacher"
	// RoleAdmin manages users and platform settings.
	RoleAdmin Role = "admin"
)

// ErrUnknownRole is returned when a role string is not part of the enumeration.
var ErrUnknownRole = errors.New("unknown role")

// Roles returns every defined role in ascending privilege order.
func Roles() []Role {
	return []Role{RoleStudent, RoleTeacher, RoleAdmin}
}

// ParseRole converts s to a Role. Matching ignores surrounding whitespace and case.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleStudent:
		return RoleStudent, nil
	case RoleTeacher:
		return RoleTeacher, nil
	case RoleAdmin:
		return RoleAdmin, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Valid reports whether r is part of the enumeration.
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return true
	}
	return false
}

func (r Role) String() string { return string(r) }

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, string(r))
	}
	return []byte(r), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown roles fail to decode.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
