package flows

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"

	"github.com/MrEthical07/examauth/jwt"
	"github.com/MrEthical07/examauth/permission"
	"github.com/MrEthical07/examauth/session"
)

var errStore = errors.New("store down")

type memStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	err      error
	created  []*session.Session
	corrupt  int
}

func newMemStore(sessions ...*session.Session) *memStore {
	s := &memStore{sessions: make(map[string]*session.Session)}
	for _, sess := range sessions {
		s.sessions[sess.RefreshTokenID] = sess
	}
	return s
}

func (s *memStore) Consume(_ context.Context, id string) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	sess, ok := s.sessions[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	delete(s.sessions, id)
	return sess, nil
}

func (s *memStore) Create(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.RefreshTokenID] = sess
	s.created = append(s.created, sess)
	return nil
}

func (s *memStore) DeleteAllForUser(_ context.Context, userID string) ([]*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	var out []*session.Session
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			out = append(out, sess)
			delete(s.sessions, id)
		}
	}
	if s.corrupt > 0 {
		return out, &session.CorruptError{UserID: userID, Skipped: s.corrupt, Err: errors.New("unknown encoding version")}
	}
	return out, nil
}

func claimsFor(userID, jti string, kind jwt.Kind) *jwt.Claims {
	return &jwt.Claims{
		Role: permission.RoleStudent,
		Type: kind,
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   userID,
			ID:        jti,
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
}

func parseAs(claims *jwt.Claims) func(string) (*jwt.Claims, error) {
	return func(string) (*jwt.Claims, error) { return claims, nil }
}

type revokeLog struct {
	mu   sync.Mutex
	jtis []string
	err  error
}

func (r *revokeLog) revoke(_ context.Context, jti string, _ time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	r.jtis = append(r.jtis, jti)
	return true, nil
}

func refreshDeps(store *memStore, claims *jwt.Claims, acct *Account, revoked *revokeLog) RefreshDeps {
	return RefreshDeps{
		ParseRefresh: parseAs(claims),
		SessionStore: store,
		LoadAccount: func(context.Context, string) (*Account, error) {
			if acct == nil {
				return nil, errStore
			}
			return acct, nil
		},
		Issue: func(s jwt.Subject) (jwt.Pair, error) {
			return jwt.Pair{
				Access:  jwt.Token{Value: "a2", ID: "access-2", ExpiresAt: time.Now().Add(15 * time.Minute)},
				Refresh: jwt.Token{Value: "r2", ID: "refresh-2", ExpiresAt: time.Now().Add(time.Hour)},
			}, nil
		},
		NewSession: func(_ context.Context, prev *session.Session, pair jwt.Pair) *session.Session {
			return &session.Session{
				SessionID:      "s2",
				UserID:         prev.UserID,
				RefreshTokenID: pair.Refresh.ID,
				AccessTokenID:  pair.Access.ID,
			}
		},
		RevokeAccess: func(ctx context.Context, jti string, exp time.Time) error {
			_, err := revoked.revoke(ctx, jti, exp)
			return err
		},
	}
}

func TestRunRefreshRotates(t *testing.T) {
	store := newMemStore(&session.Session{SessionID: "s1", UserID: "u1", RefreshTokenID: "refresh-1", AccessTokenID: "access-1"})
	revoked := &revokeLog{}
	deps := refreshDeps(store, claimsFor("u1", "refresh-1", jwt.KindRefresh), &Account{UserID: "u1", Role: permission.RoleStudent, Active: true}, revoked)

	res := RunRefresh(context.Background(), "r1", deps)
	if res.Failure != RefreshFailureNone {
		t.Fatalf("unexpected failure %v: %v", res.Failure, res.Err)
	}
	if res.Session.RefreshTokenID != "refresh-2" || res.Previous.SessionID != "s1" {
		t.Fatalf("unexpected sessions %+v %+v", res.Previous, res.Session)
	}
	if len(revoked.jtis) != 1 || revoked.jtis[0] != "access-1" {
		t.Fatalf("superseded access token not revoked: %v", revoked.jtis)
	}

	res = RunRefresh(context.Background(), "r1", deps)
	if res.Failure != RefreshFailureSessionNotFound {
		t.Fatalf("expected replay rejection, got %v", res.Failure)
	}
}

func TestRunRefreshFailureKinds(t *testing.T) {
	active := &Account{UserID: "u1", Role: permission.RoleStudent, Active: true}
	sess := func() *session.Session {
		return &session.Session{SessionID: "s1", UserID: "u1", RefreshTokenID: "refresh-1"}
	}

	cases := []struct {
		name string
		deps func() RefreshDeps
		want RefreshFailureKind
	}{
		{"decode", func() RefreshDeps {
			d := refreshDeps(newMemStore(sess()), nil, active, &revokeLog{})
			d.ParseRefresh = func(string) (*jwt.Claims, error) { return nil, jwt.ErrTokenMalformed }
			return d
		}, RefreshFailureDecode},
		{"rate limited", func() RefreshDeps {
			d := refreshDeps(newMemStore(sess()), claimsFor("u1", "refresh-1", jwt.KindRefresh), active, &revokeLog{})
			d.CheckRate = func(context.Context, string) error { return errors.New("slow down") }
			return d
		}, RefreshFailureRateLimited},
		{"store", func() RefreshDeps {
			store := newMemStore(sess())
			store.err = errStore
			return refreshDeps(store, claimsFor("u1", "refresh-1", jwt.KindRefresh), active, &revokeLog{})
		}, RefreshFailureStore},
		{"owner mismatch", func() RefreshDeps {
			return refreshDeps(newMemStore(sess()), claimsFor("u2", "refresh-1", jwt.KindRefresh), active, &revokeLog{})
		}, RefreshFailureSessionMismatch},
		{"account lookup", func() RefreshDeps {
			return refreshDeps(newMemStore(sess()), claimsFor("u1", "refresh-1", jwt.KindRefresh), nil, &revokeLog{})
		}, RefreshFailureAccountLookup},
		{"account gone", func() RefreshDeps {
			d := refreshDeps(newMemStore(sess()), claimsFor("u1", "refresh-1", jwt.KindRefresh), nil, &revokeLog{})
			d.AccountNotFound = errStore
			return d
		}, RefreshFailureAccountInactive},
		{"inactive", func() RefreshDeps {
			return refreshDeps(newMemStore(sess()), claimsFor("u1", "refresh-1", jwt.KindRefresh), &Account{UserID: "u1", Role: permission.RoleStudent}, &revokeLog{})
		}, RefreshFailureAccountInactive},
		{"unknown role", func() RefreshDeps {
			return refreshDeps(newMemStore(sess()), claimsFor("u1", "refresh-1", jwt.KindRefresh), &Account{UserID: "u1", Role: "proctor", Active: true}, &revokeLog{})
		}, RefreshFailureAccountInactive},
		{"issue", func() RefreshDeps {
			d := refreshDeps(newMemStore(sess()), claimsFor("u1", "refresh-1", jwt.KindRefresh), active, &revokeLog{})
			d.Issue = func(jwt.Subject) (jwt.Pair, error) { return jwt.Pair{}, errors.New("no key") }
			return d
		}, RefreshFailureIssue},
	}
	for _, tc := range cases {
		res := RunRefresh(context.Background(), "token", tc.deps())
		if res.Failure != tc.want {
			t.Fatalf("%s: expected failure %v, got %v (%v)", tc.name, tc.want, res.Failure, res.Err)
		}
	}
}

func TestRunRefreshRevokeFailureIsOnlyWarned(t *testing.T) {
	store := newMemStore(&session.Session{SessionID: "s1", UserID: "u1", RefreshTokenID: "refresh-1", AccessTokenID: "access-1"})
	deps := refreshDeps(store, claimsFor("u1", "refresh-1", jwt.KindRefresh), &Account{UserID: "u1", Role: permission.RoleTeacher, Active: true}, &revokeLog{err: errStore})
	var warned string
	deps.Warn = func(msg string, err error) { warned = msg }

	res := RunRefresh(context.Background(), "r1", deps)
	if res.Failure != RefreshFailureNone {
		t.Fatalf("revoke failure must not fail refresh, got %v", res.Failure)
	}
	if warned == "" {
		t.Fatal("expected warning")
	}
}

func TestRunLogout(t *testing.T) {
	store := newMemStore(&session.Session{SessionID: "s1", UserID: "u1", RefreshTokenID: "refresh-1", AccessTokenID: "access-1"})
	revoked := &revokeLog{}
	deps := LogoutDeps{ParseRefresh: parseAs(claimsFor("u1", "refresh-1", jwt.KindRefresh)), SessionStore: store, RevokeAccess: revoked.revoke}

	if res := RunLogout(context.Background(), "r1", "u2", deps); res.Failure != LogoutFailureMismatch {
		t.Fatalf("expected mismatch, got %v", res.Failure)
	}
	res := RunLogout(context.Background(), "r1", "u1", deps)
	if res.Failure != LogoutFailureNone || res.Session == nil || !res.Revoked {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(revoked.jtis) != 1 || revoked.jtis[0] != "access-1" {
		t.Fatalf("expected access-1 revoked, got %v", revoked.jtis)
	}

	res = RunLogout(context.Background(), "r1", "u1", deps)
	if res.Failure != LogoutFailureNone || res.Session != nil {
		t.Fatalf("repeat logout must be a quiet success, got %+v", res)
	}
}

func TestRunLogoutFailures(t *testing.T) {
	store := newMemStore(&session.Session{SessionID: "s1", UserID: "u1", RefreshTokenID: "refresh-1", AccessTokenID: "access-1"})
	deps := LogoutDeps{
		ParseRefresh: parseAs(claimsFor("u1", "refresh-1", jwt.KindRefresh)),
		SessionStore: store,
		RevokeAccess: (&revokeLog{err: errStore}).revoke,
	}
	if res := RunLogout(context.Background(), "r1", "u1", deps); res.Failure != LogoutFailureRevoke {
		t.Fatalf("expected revoke failure, got %v", res.Failure)
	}

	store.err = errStore
	if res := RunLogout(context.Background(), "r1", "u1", deps); res.Failure != LogoutFailureStore {
		t.Fatalf("expected store failure, got %v", res.Failure)
	}

	deps.ParseRefresh = func(string) (*jwt.Claims, error) { return nil, jwt.ErrTokenInvalid }
	if res := RunLogout(context.Background(), "r1", "u1", deps); res.Failure != LogoutFailureDecode {
		t.Fatalf("expected decode failure, got %v", res.Failure)
	}
}

func TestRunLogoutAll(t *testing.T) {
	store := newMemStore(
		&session.Session{SessionID: "s1", UserID: "u1", RefreshTokenID: "r1", AccessTokenID: "a1"},
		&session.Session{SessionID: "s2", UserID: "u1", RefreshTokenID: "r2", AccessTokenID: "a2"},
		&session.Session{SessionID: "s3", UserID: "u2", RefreshTokenID: "r3", AccessTokenID: "a3"},
	)
	revoked := &revokeLog{}
	res := RunLogoutAll(context.Background(), "u1", LogoutDeps{SessionStore: store, RevokeAccess: revoked.revoke})
	if res.Failure != LogoutFailureNone || res.Deleted != 2 || res.Revoked != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := store.sessions["r3"]; !ok {
		t.Fatal("other user's session must survive")
	}

	store = newMemStore(&session.Session{SessionID: "s1", UserID: "u1", RefreshTokenID: "r1", AccessTokenID: "a1"})
	res = RunLogoutAll(context.Background(), "u1", LogoutDeps{SessionStore: store, RevokeAccess: (&revokeLog{err: errStore}).revoke})
	if res.Failure != LogoutFailureRevoke || res.Deleted != 1 || !errors.Is(res.Err, errStore) {
		t.Fatalf("expected joined revoke failure, got %+v", res)
	}
}

func TestRunLogoutAllCountsUnreadableSessions(t *testing.T) {
	store := newMemStore(&session.Session{SessionID: "s1", UserID: "u1", RefreshTokenID: "r1", AccessTokenID: "a1"})
	store.corrupt = 2
	revoked := &revokeLog{}

	res := RunLogoutAll(context.Background(), "u1", LogoutDeps{SessionStore: store, RevokeAccess: revoked.revoke})
	if res.Failure != LogoutFailureNone {
		t.Fatalf("unreadable records must not fail logout-all, got %+v", res)
	}
	if res.Deleted != 3 || res.Revoked != 1 || res.Unreadable != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestStripBearer(t *testing.T) {
	for in, want := range map[string]string{
		"Bearer abc":   "abc",
		"bearer abc":   "abc",
		"BEARER  abc ": "abc",
		"abc":          "abc",
		"Bearer":       "Bearer",
		"  abc  ":      "abc",
	} {
		if got := StripBearer(in); got != want {
			t.Fatalf("StripBearer(%q) = %q, want %q", in, got, want)
		}
	}
}

func authDeps(revoked map[string]bool, revokeErr error, active bool, activeErr error) (AuthenticateDeps, *[]string) {
	var calls []string
	return AuthenticateDeps{
		ExtractID: func(token string) string {
			if token == "malformed" {
				return ""
			}
			return "jti-" + token
		},
		IsRevoked: func(_ context.Context, jti string) (bool, error) {
			calls = append(calls, "revoked")
			return revoked[jti], revokeErr
		},
		ParseAccess: func(token string) (*jwt.Claims, error) {
			calls = append(calls, "parse")
			if token == "bad-signature" {
				return nil, jwt.ErrTokenInvalid
			}
			return claimsFor("u1", "jti-"+token, jwt.KindAccess), nil
		},
		AccountActive: func(context.Context, string) (bool, error) {
			calls = append(calls, "active")
			return active, activeErr
		},
	}, &calls
}

func TestRunAuthenticateOrderAndOutcomes(t *testing.T) {
	deps, calls := authDeps(nil, nil, true, nil)
	res := RunAuthenticate(context.Background(), "Bearer tok", deps)
	if res.Failure != AuthenticateFailureNone || res.Claims.Subject != "u1" || res.TokenID != "jti-tok" {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(*calls) != 3 || (*calls)[0] != "revoked" || (*calls)[1] != "parse" || (*calls)[2] != "active" {
		t.Fatalf("unexpected call order %v", *calls)
	}

	cases := []struct {
		name  string
		token string
		deps  AuthenticateDeps
		want  AuthenticateFailureKind
	}{
		{"malformed", "malformed", first(authDeps(nil, nil, true, nil)), AuthenticateFailureMalformed},
		{"blacklist down", "tok", first(authDeps(nil, errStore, true, nil)), AuthenticateFailureRevocationUnavailable},
		{"revoked", "tok", first(authDeps(map[string]bool{"jti-tok": true}, nil, true, nil)), AuthenticateFailureRevoked},
		{"signature", "bad-signature", first(authDeps(nil, nil, true, nil)), AuthenticateFailureToken},
		{"account down", "tok", first(authDeps(nil, nil, true, errStore)), AuthenticateFailureAccountUnavailable},
		{"inactive", "tok", first(authDeps(nil, nil, false, nil)), AuthenticateFailureAccountInactive},
	}
	for _, tc := range cases {
		if res := RunAuthenticate(context.Background(), tc.token, tc.deps); res.Failure != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, res.Failure)
		}
	}
}

func TestRunAuthenticateSkipsSignatureWhenBlacklistDown(t *testing.T) {
	deps, calls := authDeps(nil, errStore, true, nil)
	_ = RunAuthenticate(context.Background(), "tok", deps)
	if len(*calls) != 1 {
		t.Fatalf("expected only the blacklist lookup, got %v", *calls)
	}
}

func first(d AuthenticateDeps, _ *[]string) AuthenticateDeps { return d }

func TestServiceInitialized(t *testing.T) {
	if (Service{}).Initialized() {
		t.Fatal("zero service must not be initialized")
	}
	deps, _ := authDeps(nil, nil, true, nil)
	svc := New(Deps{
		Refresh:      RefreshDeps{ParseRefresh: parseAs(nil)},
		Authenticate: deps,
	})
	if !svc.Initialized() {
		t.Fatal("wired service must be initialized")
	}
}
