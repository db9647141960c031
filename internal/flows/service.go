package flows

import "context"

// Service is the flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired.
func (s Service) Initialized() bool {
	return s.deps.Authenticate.ParseAccess != nil && s.deps.Refresh.ParseRefresh != nil
}

func (s Service) Refresh(ctx context.Context, refreshToken string) RefreshResult {
	return RunRefresh(ctx, refreshToken, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, refreshToken, userID string) LogoutResult {
	return RunLogout(ctx, refreshToken, userID, s.deps.Logout)
}

func (s Service) LogoutAll(ctx context.Context, userID string) LogoutAllResult {
	return RunLogoutAll(ctx, userID, s.deps.Logout)
}

func (s Service) Authenticate(ctx context.Context, bearer string) AuthenticateResult {
	return RunAuthenticate(ctx, bearer, s.deps.Authenticate)
}
