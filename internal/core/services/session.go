package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/core/ports"
	"github.com/corolair/moodle-bridge/internal/infrastructure/metrics"
)

type sessionService struct {
	host   ports.HostStore
	remote ports.RemoteGateway
	logger *zap.Logger
}

// NewSessionService returns the per-request credential bootstrap.
func NewSessionService(host ports.HostStore, remote ports.RemoteGateway, logger *zap.Logger) ports.SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &sessionService{host: host, remote: remote, logger: logger}
}

// EnsureSession returns the stored key without any network call when it is
// usable. A stale or absent key triggers exactly one register retry reusing
// the existing scaffold token; no new token is ever minted here. When the
// retry succeeds the caller must ask the user to reload rather than continue
// mid-request. Anything else yields a troubleshoot report.
func (s *sessionService) EnsureSession(ctx context.Context, admin domain.Account, siteURL, siteName string) (*ports.EnsureResult, error) {
	key, err := s.host.GetPluginConfig(ctx, cfgAPIKey)
	if err != nil {
		return nil, err
	}
	if !domain.KeyAbsent(key) {
		return &ports.EnsureResult{APIKey: key}, nil
	}

	// A store failure here is not "no scaffold": report it instead of
	// producing a troubleshoot snapshot that blames the install.
	svc, err := s.host.GetService(ctx, domain.ServiceShortname)
	if err != nil {
		return nil, err
	}
	if svc != nil {
		token, err := s.host.GetTokenByService(ctx, svc.ID)
		if err != nil {
			return nil, err
		}
		if token != nil {
			metrics.RegistrationRetries.Inc()
			apiKey, err := s.remote.Register(ctx, domain.RegisterRequest{
				URL:             siteURL,
				WebserviceToken: token.Token,
				Email:           admin.Email,
				FirstName:       admin.FirstName,
				LastName:        admin.LastName,
				SiteName:        siteName,
			})
			if err == nil {
				if err := s.host.SetPluginConfig(ctx, cfgAPIKey, apiKey); err != nil {
					return nil, err
				}
				if err := s.host.SetPluginConfig(ctx, cfgCorolairLogin, admin.Email); err != nil {
					return nil, err
				}
				s.logger.Info("stale credential repaired", zap.String("site", siteURL))
				return &ports.EnsureResult{APIKey: apiKey, ReloadRequired: true}, nil
			}
			s.logger.Warn("registration retry failed", zap.Error(err))
		}
	}

	report, err := s.Troubleshoot(ctx, admin, siteURL, siteName)
	if err != nil {
		return nil, err
	}
	return &ports.EnsureResult{Troubleshoot: report}, nil
}

// Troubleshoot snapshots the install state without touching the network.
func (s *sessionService) Troubleshoot(ctx context.Context, admin domain.Account, siteURL, siteName string) (*domain.TroubleshootReport, error) {
	report := &domain.TroubleshootReport{
		SiteURL:        siteURL,
		SiteName:       siteName,
		AdminEmail:     admin.Email,
		AdminFirstName: admin.FirstName,
		AdminLastName:  admin.LastName,
	}

	if enabled, err := s.host.GetGlobalConfig(ctx, cfgEnableWebServices); err == nil {
		report.WebServicesEnabled = enabled == "1"
	}
	if protocols, err := s.host.GetGlobalConfig(ctx, cfgWebServiceProtocols); err == nil {
		report.RESTEnabled = strings.Contains(protocols, "rest")
	}

	svc, err := s.host.GetService(ctx, domain.ServiceShortname)
	if err != nil {
		return report, nil
	}
	if svc != nil {
		report.ServiceExists = true
		if token, err := s.host.GetTokenByService(ctx, svc.ID); err == nil && token != nil {
			report.TokenExists = true
			report.TokenValue = token.Token
		}
	}
	return report, nil
}
