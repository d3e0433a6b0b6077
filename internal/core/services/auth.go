package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/core/ports"
)

type authService struct {
	host   ports.HostStore
	remote ports.RemoteGateway
	logger *zap.Logger
}

// NewAuthService returns the per-request auth handshake.
func NewAuthService(host ports.HostStore, remote ports.RemoteGateway, logger *zap.Logger) ports.AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &authService{host: host, remote: remote, logger: logger}
}

// Authenticate exchanges the user identity and stored key for a remote
// session. The redirectoutside setting alone selects the endpoint variant:
// the v2 endpoint must answer with a redirect URL, the plain endpoint with a
// session user id. A well-formed response missing its required field is a
// hard ErrTokenResponse, never a silent empty embed.
func (s *authService) Authenticate(ctx context.Context, user domain.Account, apiKey string, opts ports.AuthOptions) (*domain.RemoteSession, error) {
	redirectOutside := s.boolSetting(ctx, cfgRedirectOutside, false)
	createTutor := s.boolSetting(ctx, cfgCreateTutorCap, true)

	resp, err := s.remote.Authenticate(ctx, domain.AuthRequest{
		Email:                     user.Email,
		APIKey:                    apiKey,
		FirstName:                 user.FirstName,
		LastName:                  user.LastName,
		MoodleUserID:              user.ID,
		CreateTutorWithCapability: createTutor,
		CourseID:                  opts.CourseID,
		Plugin:                    opts.Plugin,
	}, redirectOutside)
	if err != nil {
		return nil, err
	}

	if redirectOutside {
		if resp.URL == "" {
			return nil, domain.ErrTokenResponse
		}
		return &domain.RemoteSession{Mode: domain.ModeRedirect, RedirectURL: resp.URL}, nil
	}
	if resp.UserID == "" {
		return nil, domain.ErrTokenResponse
	}
	return &domain.RemoteSession{
		Mode:     domain.ModeEmbed,
		UserID:   resp.UserID,
		CourseID: opts.CourseID,
		Plugin:   opts.Plugin,
	}, nil
}

// boolSetting reads a plugin setting stored as "true"/"false", falling back
// to the install default when unset.
func (s *authService) boolSetting(ctx context.Context, name string, def bool) bool {
	value, err := s.host.GetPluginConfig(ctx, name)
	if err != nil || value == "" {
		return def
	}
	return value == "true" || value == "1"
}
