package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/core/ports"
)

// legacyMenuItem is the custom menu entry installed by early plugin versions
// and retired in favor of the navigation hook.
const legacyMenuItem = "Corolair|/local/corolair/trainer.php"

// migration is one idempotent upgrade step, tagged with the plugin version
// that introduced it. Steps run in order and each is safe to re-run.
type migration struct {
	version int64
	name    string
	apply   func(ctx context.Context) error
}

// UpgradeService applies version migrations and records the reached version.
type UpgradeService struct {
	host       ports.HostStore
	remote     ports.RemoteGateway
	logger     *zap.Logger
	migrations []migration
}

func NewUpgradeService(host ports.HostStore, remote ports.RemoteGateway, logger *zap.Logger) *UpgradeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &UpgradeService{host: host, remote: remote, logger: logger}
	s.migrations = []migration{
		{2024091600, "remove legacy custom menu item", s.removeLegacyMenuItem},
		{2024100701, "notify remote service of update", s.notifyUpdate},
		{2024101100, "backfill service function allow-list", s.backfillFunctions},
		{2025031200, "seed default trainer stylesheet", s.seedDefaultCSS},
	}
	return s
}

// Apply runs every migration newer than oldVersion, in order. The first
// failing step aborts the remainder; already-applied steps are kept.
func (s *UpgradeService) Apply(ctx context.Context, oldVersion int64) error {
	for _, m := range s.migrations {
		if oldVersion >= m.version {
			continue
		}
		s.logger.Info("applying migration", zap.Int64("version", m.version), zap.String("name", m.name))
		if err := m.apply(ctx); err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.version, m.name, err)
		}
		if err := s.host.SetPluginConfig(ctx, cfgVersion, strconv.FormatInt(m.version, 10)); err != nil {
			return err
		}
	}
	return nil
}

// CurrentVersion reads the recorded plugin version, zero when unset.
func (s *UpgradeService) CurrentVersion(ctx context.Context) int64 {
	v, err := s.host.GetPluginConfig(ctx, cfgVersion)
	if err != nil {
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}

func (s *UpgradeService) removeLegacyMenuItem(ctx context.Context) error {
	items, err := s.host.GetGlobalConfig(ctx, cfgCustomMenuItems)
	if err != nil {
		return err
	}
	if !strings.Contains(items, legacyMenuItem) {
		return nil
	}
	return s.host.SetGlobalConfig(ctx, cfgCustomMenuItems, strings.ReplaceAll(items, legacyMenuItem, ""))
}

func (s *UpgradeService) notifyUpdate(ctx context.Context) error {
	key, err := s.host.GetPluginConfig(ctx, cfgAPIKey)
	if err != nil {
		return err
	}
	if domain.KeyAbsent(key) {
		return domain.ErrNoAPIKey
	}
	return s.remote.NotifyUpdate(ctx, key)
}

func (s *UpgradeService) backfillFunctions(ctx context.Context) error {
	svc, err := s.host.GetService(ctx, domain.ServiceShortname)
	if err != nil || svc == nil {
		return err
	}
	bound, err := s.host.ListServiceFunctions(ctx, svc.ID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(bound))
	for _, fn := range bound {
		have[fn] = true
	}
	for _, fn := range []string{
		"core_course_get_categories",
		"core_enrol_get_enrolled_users_with_capability",
	} {
		if have[fn] {
			continue
		}
		if err := s.host.AddServiceFunction(ctx, svc.ID, fn); err != nil {
			return err
		}
	}
	return nil
}

func (s *UpgradeService) seedDefaultCSS(ctx context.Context) error {
	if err := s.host.SetPluginConfig(ctx, cfgCustomCSS, domain.DefaultTrainerCSS); err != nil {
		return err
	}
	return s.host.SetPluginConfig(ctx, cfgEnableCustomCSS, "0")
}
