package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/core/ports"
	"github.com/corolair/moodle-bridge/internal/infrastructure/metrics"
)

type privacyService struct {
	host   ports.HostStore
	remote ports.RemoteGateway
	logger *zap.Logger
}

// NewPrivacyService returns the privacy proxy. It runs inside host-wide
// compliance sweeps, so every operation fails safe: no key means no outbound
// call and an empty result, and a remote failure degrades the same way.
func NewPrivacyService(host ports.HostStore, remote ports.RemoteGateway, logger *zap.Logger) ports.PrivacyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &privacyService{host: host, remote: remote, logger: logger}
}

// apiKey returns the stored key, or "" when absent or sentinel.
func (s *privacyService) apiKey(ctx context.Context) string {
	key, err := s.host.GetPluginConfig(ctx, cfgAPIKey)
	if err != nil || domain.KeyAbsent(key) {
		return ""
	}
	return key
}

// ContextsForUser resolves the remote context enumeration to local context
// ids. Unresolvable entries are skipped, never fatal.
func (s *privacyService) ContextsForUser(ctx context.Context, userID int64) ([]int64, error) {
	key := s.apiKey(ctx)
	if key == "" {
		return nil, nil
	}
	list, err := s.remote.UserContexts(ctx, key, userID)
	if err != nil {
		s.degrade("contexts_for_user", err)
		return nil, nil
	}
	metrics.PrivacyOperations.WithLabelValues("contexts_for_user", "ok").Inc()

	var contextIDs []int64
	for _, entry := range list {
		switch entry.ContextIdentifier {
		case domain.PrivacyContextCourse:
			for _, instanceID := range entry.Payload {
				id, err := s.host.FindContextID(ctx, domain.ContextCourse, instanceID)
				if err != nil || id == 0 {
					continue
				}
				contextIDs = append(contextIDs, id)
			}
		case domain.PrivacyContextSystem:
			id, err := s.host.SystemContextID(ctx)
			if err != nil {
				continue
			}
			contextIDs = append(contextIDs, id)
		}
	}
	return contextIDs, nil
}

// ExportUserData fetches the remote export and writes every item under the
// system context, using the item's subcontext as the path.
func (s *privacyService) ExportUserData(ctx context.Context, userID int64, w ports.ExportWriter) error {
	key := s.apiKey(ctx)
	if key == "" {
		return nil
	}
	items, err := s.remote.UserExport(ctx, key, userID)
	if err != nil {
		s.degrade("export_user_data", err)
		return nil
	}
	metrics.PrivacyOperations.WithLabelValues("export_user_data", "ok").Inc()

	systemCtx, err := s.host.SystemContextID(ctx)
	if err != nil {
		return nil
	}
	for _, item := range items {
		if err := w.Write(ctx, systemCtx, item.Subcontext, item.Payload); err != nil {
			s.logger.Warn("export write failed", zap.Error(err))
		}
	}
	return nil
}

// UsersInContext returns the remote user ids for a course or system context.
// Any other context level is unsupported and short-circuits with no call.
func (s *privacyService) UsersInContext(ctx context.Context, level domain.ContextLevel) ([]int64, error) {
	if level != domain.ContextCourse && level != domain.ContextSystem {
		return nil, nil
	}
	key := s.apiKey(ctx)
	if key == "" {
		return nil, nil
	}
	ids, err := s.remote.UsersInContext(ctx, key, level)
	if err != nil {
		s.degrade("users_in_context", err)
		return nil, nil
	}
	metrics.PrivacyOperations.WithLabelValues("users_in_context", "ok").Inc()
	return ids, nil
}

// DeleteForContext fires a single delete for the whole context level. Status
// only; no response body is parsed.
func (s *privacyService) DeleteForContext(ctx context.Context, level domain.ContextLevel) error {
	if level != domain.ContextCourse && level != domain.ContextSystem {
		return nil
	}
	key := s.apiKey(ctx)
	if key == "" {
		return nil
	}
	if err := s.remote.DeleteContextData(ctx, key, level); err != nil {
		s.degrade("delete_for_context", err)
		return nil
	}
	metrics.PrivacyOperations.WithLabelValues("delete_for_context", "ok").Inc()
	return nil
}

// DeleteForUsers issues one delete per user id, sequentially. A failure on
// one id never aborts the remaining ids.
func (s *privacyService) DeleteForUsers(ctx context.Context, userIDs []int64) error {
	key := s.apiKey(ctx)
	if key == "" {
		return nil
	}
	for _, id := range userIDs {
		if err := s.remote.DeleteUserData(ctx, key, id); err != nil {
			s.degrade("delete_for_users", err)
			continue
		}
		metrics.PrivacyOperations.WithLabelValues("delete_for_users", "ok").Inc()
	}
	return nil
}

func (s *privacyService) degrade(op string, err error) {
	metrics.PrivacyOperations.WithLabelValues(op, "degraded").Inc()
	s.logger.Warn("privacy operation degraded to no-op", zap.String("op", op), zap.Error(err))
}
