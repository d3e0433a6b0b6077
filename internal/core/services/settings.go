package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/core/ports"
)

// SettingsService reads and writes the plugin configuration surface.
type SettingsService struct {
	host   ports.HostStore
	logger *zap.Logger
}

func NewSettingsService(host ports.HostStore, logger *zap.Logger) *SettingsService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SettingsService{host: host, logger: logger}
}

// Get returns the current settings with install defaults applied.
func (s *SettingsService) Get(ctx context.Context) (*domain.Settings, error) {
	out := &domain.Settings{
		SidePanel:                 true,
		CreateTutorWithCapability: true,
	}
	read := func(name string) (string, bool) {
		v, err := s.host.GetPluginConfig(ctx, name)
		return v, err == nil && v != ""
	}
	if v, ok := read(cfgSidePanel); ok {
		out.SidePanel = v == "true"
	}
	if v, ok := read(cfgCreateTutorCap); ok {
		out.CreateTutorWithCapability = v == "true"
	}
	if v, ok := read(cfgRedirectOutside); ok {
		out.RedirectOutside = v == "true"
	}
	if v, ok := read(cfgEnableCustomCSS); ok {
		out.EnableCustomCSS = v == "1" || v == "true"
	}
	out.CustomCSS, _ = s.host.GetPluginConfig(ctx, cfgCustomCSS)
	out.APIKey, _ = s.host.GetPluginConfig(ctx, cfgAPIKey)
	out.CorolairLogin, _ = s.host.GetPluginConfig(ctx, cfgCorolairLogin)
	return out, nil
}

// Update persists the admin-editable settings. The custom stylesheet is
// stored as submitted; sanitization happens at injection time.
func (s *SettingsService) Update(ctx context.Context, in domain.Settings) error {
	set := func(name, value string) error {
		return s.host.SetPluginConfig(ctx, name, value)
	}
	if err := set(cfgSidePanel, boolString(in.SidePanel)); err != nil {
		return err
	}
	if err := set(cfgCreateTutorCap, boolString(in.CreateTutorWithCapability)); err != nil {
		return err
	}
	if err := set(cfgRedirectOutside, boolString(in.RedirectOutside)); err != nil {
		return err
	}
	if err := set(cfgEnableCustomCSS, checkboxString(in.EnableCustomCSS)); err != nil {
		return err
	}
	return set(cfgCustomCSS, in.CustomCSS)
}

// InjectedCSS returns the sanitized stylesheet to inject, or "" when custom
// CSS is disabled or empty.
func (s *SettingsService) InjectedCSS(ctx context.Context) string {
	enabled, err := s.host.GetPluginConfig(ctx, cfgEnableCustomCSS)
	if err != nil || (enabled != "1" && enabled != "true") {
		return ""
	}
	css, err := s.host.GetPluginConfig(ctx, cfgCustomCSS)
	if err != nil || css == "" {
		return ""
	}
	return domain.SanitizeCSS(css)
}

// ResetCSS restores the default trainer stylesheet.
func (s *SettingsService) ResetCSS(ctx context.Context) error {
	return s.host.SetPluginConfig(ctx, cfgCustomCSS, domain.DefaultTrainerCSS)
}

func boolString(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

func checkboxString(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
