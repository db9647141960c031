package permission

import (
	"errors"
	"testing"
)

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"student":  RoleStudent,
		" Teacher": RoleTeacher,
		"ADMIN":    RoleAdmin,
	}
	for in, want := range cases {
		got, err := ParseRole(in)
		if err != nil {
			t.Fatalf("ParseRole(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseRole(%q) = %q, want %q", in, got, want)
		}
	}

	for _, in := range []string{"", "root", "superadmin", "studen"} {
		if _, err := ParseRole(in); !errors.Is(err, ErrUnknownRole) {
			t.Fatalf("ParseRole(%q) error = %v, want ErrUnknownRole", in, err)
		}
	}
}

func TestRoleTextRoundTrip(t *testing.T) {
	var r Role
	if err := r.UnmarshalText([]byte("teacher")); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if r != RoleTeacher {
		t.Fatalf("got %q", r)
	}
	if err := r.UnmarshalText([]byte("owner")); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if _, err := Role("owner").MarshalText(); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected marshal of unknown role to fail, got %v", err)
	}
}

func TestDefaultRoleManagerGrants(t *testing.T) {
	rm := DefaultRoleManager()
	if err := rm.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if rm.Count() != 3 {
		t.Fatalf("expected 3 roles, got %d", rm.Count())
	}

	if !rm.Allows(RoleStudent, PermExamTake) {
		t.Fatal("student must be allowed to take exams")
	}
	if rm.Allows(RoleStudent, PermExamGrade) {
		t.Fatal("student must not grade exams")
	}
	if !rm.Allows(RoleTeacher, PermExamGrade) {
		t.Fatal("teacher must grade exams")
	}
	if rm.Allows(RoleTeacher, PermUsersManage) {
		t.Fatal("teacher must not manage users")
	}
	if !rm.Allows(RoleAdmin, PermUsersManage) {
		t.Fatal("admin must manage users")
	}
	if rm.Allows(Role("owner"), PermExamTake) {
		t.Fatal("unknown role must not be granted anything")
	}

	perms, ok := rm.Permissions(RoleStudent)
	if !ok || len(perms) != 2 || perms[0] != PermExamTake || perms[1] != PermResultsViewOwn {
		t.Fatalf("unexpected student permissions: %v", perms)
	}
}

func TestRoleManagerFrozen(t *testing.T) {
	rm := DefaultRoleManager()
	if err := rm.RegisterRole(RoleStudent, nil); err == nil {
		t.Fatal("expected frozen role manager to reject registration")
	}

	fresh := NewRoleManager(DefaultRegistry())
	if err := fresh.RegisterRole(Role("owner"), nil); !errors.Is(err, ErrUnknownRole) {
		t.Fatalf("expected ErrUnknownRole, got %v", err)
	}
	if err := fresh.RegisterRole(RoleStudent, []string{"exam.delete"}); err == nil {
		t.Fatal("expected unregistered permission to fail")
	}
	if err := fresh.Validate(); err == nil {
		t.Fatal("expected Validate to report missing roles")
	}
}

func TestRegistryLimits(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < 64; i++ {
		if _, err := r.Register("p" + string(rune('A'+i%26)) + string(rune('a'+i/26))); err != nil {
			t.Fatalf("register %d: %v", i, err)
		}
	}
	if _, err := r.Register("overflow"); err == nil {
		t.Fatal("expected 65th permission to fail")
	}
	if _, err := r.Register("pAa"); err == nil {
		t.Fatal("expected duplicate to fail")
	}
	r.Freeze()
	if _, err := NewRegistry().Register(""); err == nil {
		t.Fatal("expected empty name to fail")
	}
}
