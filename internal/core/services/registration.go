package services

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/core/ports"
)

// Plugin configuration keys.
const (
	cfgAPIKey          = domain.ConfigKeyAPIKey
	cfgCorolairLogin   = "corolairlogin"
	cfgSidePanel       = "sidepanel"
	cfgCreateTutorCap  = "createtutorwithcapability"
	cfgRedirectOutside = "redirectoutside"
	cfgEnableCustomCSS = "enablecustomcss"
	cfgCustomCSS       = "customcss"
	cfgVersion         = "version"
)

// Global configuration keys.
const (
	cfgEnableWebServices   = "enablewebservices"
	cfgWebServiceProtocols = "webserviceprotocols"
	cfgCustomMenuItems     = "custommenuitems"
)

type registrationService struct {
	host   ports.HostStore
	remote ports.RemoteGateway
	logger *zap.Logger
}

// NewRegistrationService returns the install/repair workflow.
func NewRegistrationService(host ports.HostStore, remote ports.RemoteGateway, logger *zap.Logger) ports.RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &registrationService{host: host, remote: remote, logger: logger}
}

// RegisterOrRepair runs the full setup sequence: transport flags, scaffold,
// token, role, then the remote register exchange. Each step is idempotent on
// re-invocation. A failure leaves earlier steps applied so the session
// bootstrap can retry the exchange with the already-minted token.
func (s *registrationService) RegisterOrRepair(ctx context.Context, admin domain.Account, siteURL, siteName string) error {
	if err := rejectLoopback(siteURL); err != nil {
		return err
	}
	if err := s.enableTransports(ctx); err != nil {
		return err
	}

	// A stale scaffold is removed in full (tokens, function bindings, service
	// record) before recreation, so two consecutive runs never leave
	// duplicates or orphan tokens.
	if existing, err := s.host.GetService(ctx, domain.ServiceShortname); err != nil {
		return err
	} else if existing != nil {
		s.logger.Info("removing stale external service", zap.Int64("service_id", existing.ID))
		if err := s.host.DeleteService(ctx, existing.ID); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrServiceCreation, err)
		}
	}

	now := time.Now()
	serviceID, err := s.host.CreateService(ctx, &domain.ExternalService{
		Name:          domain.ServiceName,
		Shortname:     domain.ServiceShortname,
		Enabled:       true,
		UploadFiles:   true,
		DownloadFiles: true,
		TimeCreated:   now,
		TimeModified:  now,
	})
	if err != nil || serviceID == 0 {
		return fmt.Errorf("%w: %v", domain.ErrServiceCreation, err)
	}
	for _, fn := range domain.ServiceFunctions {
		if err := s.host.AddServiceFunction(ctx, serviceID, fn); err != nil {
			return fmt.Errorf("%w: %s: %v", domain.ErrCapabilityAssign, fn, err)
		}
	}

	systemCtx, err := s.host.SystemContextID(ctx)
	if err != nil {
		return err
	}

	token := &domain.ServiceToken{
		Token:        domain.NewTokenValue(),
		PrivateToken: domain.NewPrivateToken(),
		UserID:       admin.ID,
		CreatorID:    admin.ID,
		ContextID:    systemCtx,
		ServiceID:    serviceID,
		ValidUntil:   0,
		TimeCreated:  now,
	}
	if _, err := s.host.CreateToken(ctx, token); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTokenCreation, err)
	}

	if err := s.ensureRole(ctx, admin.ID, systemCtx); err != nil {
		return err
	}

	apiKey, err := s.remote.Register(ctx, domain.RegisterRequest{
		URL:             siteURL,
		WebserviceToken: token.Token,
		Email:           admin.Email,
		FirstName:       admin.FirstName,
		LastName:        admin.LastName,
		SiteName:        siteName,
	})
	if err != nil {
		return err
	}

	if err := s.host.SetPluginConfig(ctx, cfgAPIKey, apiKey); err != nil {
		return err
	}
	if err := s.host.SetPluginConfig(ctx, cfgCorolairLogin, admin.Email); err != nil {
		return err
	}
	s.logger.Info("site registered with corolair", zap.String("site", siteURL))
	return nil
}

// MintToken creates a fresh token on the existing scaffold and clears the
// stored key, forcing the next session bootstrap to re-register with it.
func (s *registrationService) MintToken(ctx context.Context, userID int64) (*domain.ServiceToken, error) {
	svc, err := s.host.GetService(ctx, domain.ServiceShortname)
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, domain.ErrScaffoldMissing
	}
	systemCtx, err := s.host.SystemContextID(ctx)
	if err != nil {
		return nil, err
	}
	token := &domain.ServiceToken{
		Token:        domain.NewTokenValue(),
		PrivateToken: domain.NewPrivateToken(),
		UserID:       userID,
		CreatorID:    userID,
		ContextID:    systemCtx,
		ServiceID:    svc.ID,
		ValidUntil:   0,
		TimeCreated:  time.Now(),
	}
	if _, err := s.host.CreateToken(ctx, token); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTokenCreation, err)
	}
	if err := s.host.SetPluginConfig(ctx, cfgAPIKey, ""); err != nil {
		return nil, err
	}
	return token, nil
}

// Uninstall tears down the role, the scaffold and the plugin configuration,
// then notifies the remote side. The deregistration call is best-effort: the
// caller never waits for or inspects its result.
func (s *registrationService) Uninstall(ctx context.Context, siteURL string) error {
	if role, err := s.host.GetRole(ctx, domain.RoleShortname); err != nil {
		return err
	} else if role != nil {
		if err := s.host.DeleteRole(ctx, role.ID); err != nil {
			return err
		}
	}
	if svc, err := s.host.GetService(ctx, domain.ServiceShortname); err != nil {
		return err
	} else if svc != nil {
		if err := s.host.DeleteService(ctx, svc.ID); err != nil {
			return err
		}
	}

	// Read the key before the config rows disappear; it identifies the
	// organization on the remote side.
	apiKey, err := s.host.GetPluginConfig(ctx, cfgAPIKey)
	if err != nil {
		return err
	}
	if err := s.host.DeletePluginConfig(ctx); err != nil {
		return err
	}

	s.remote.Deregister(ctx, siteURL, apiKey)
	return nil
}

func (s *registrationService) ensureRole(ctx context.Context, adminID, systemCtx int64) error {
	role, err := s.host.GetRole(ctx, domain.RoleShortname)
	if err != nil {
		return err
	}
	var roleID int64
	if role != nil {
		roleID = role.ID
	} else {
		roleID, err = s.host.CreateRole(ctx, &domain.ManagerRole{
			Name:        domain.RoleName,
			Shortname:   domain.RoleShortname,
			Description: "Can manage Corolair tutors in their courses.",
		})
		if err != nil || roleID == 0 {
			return fmt.Errorf("%w: %v", domain.ErrRoleCreation, err)
		}
		for _, level := range []domain.ContextLevel{domain.ContextSystem, domain.ContextCourse} {
			if err := s.host.AddRoleContextLevel(ctx, roleID, level); err != nil {
				return fmt.Errorf("%w: %v", domain.ErrRoleCreation, err)
			}
		}
		if err := s.host.GrantCapability(ctx, roleID, systemCtx, domain.CapabilityCreateTutor); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrCapabilityAssign, err)
		}
	}
	if err := s.host.AssignRole(ctx, roleID, adminID, systemCtx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCapabilityAssign, err)
	}
	return nil
}

// enableTransports flips the global web-services flag on and appends the REST
// transport to the enabled protocol list if it is not already there.
func (s *registrationService) enableTransports(ctx context.Context) error {
	enabled, err := s.host.GetGlobalConfig(ctx, cfgEnableWebServices)
	if err != nil {
		return err
	}
	if enabled != "1" {
		if err := s.host.SetGlobalConfig(ctx, cfgEnableWebServices, "1"); err != nil {
			return err
		}
	}

	protocols, err := s.host.GetGlobalConfig(ctx, cfgWebServiceProtocols)
	if err != nil {
		return err
	}
	switch {
	case protocols == "":
		return s.host.SetGlobalConfig(ctx, cfgWebServiceProtocols, "rest")
	case !strings.Contains(protocols, "rest"):
		return s.host.SetGlobalConfig(ctx, cfgWebServiceProtocols, protocols+",rest")
	}
	return nil
}

func rejectLoopback(siteURL string) error {
	u, err := url.Parse(siteURL)
	if err != nil {
		return fmt.Errorf("invalid site url %q: %w", siteURL, err)
	}
	switch strings.ToLower(u.Hostname()) {
	case "localhost", "127.0.0.1", "::1":
		return domain.ErrLocalhostNotSupported
	}
	return nil
}
