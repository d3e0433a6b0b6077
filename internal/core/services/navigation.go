package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/core/ports"
)

// NavigationService computes the course navigation mutation and, on course
// pages, the embed script options.
type NavigationService struct {
	host    ports.HostStore
	siteURL string
	logger  *zap.Logger
}

func NewNavigationService(host ports.HostStore, siteURL string, logger *zap.Logger) *NavigationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NavigationService{host: host, siteURL: siteURL, logger: logger}
}

// CourseNavigation decides whether the Corolair node is shown for userID in
// courseID, and whether the current page gets the inline embed. The node is
// gated purely on the capability; the embed additionally requires a real key
// and a course-view or activity-module page.
func (s *NavigationService) CourseNavigation(ctx context.Context, userID, courseID int64, pageURL string) (*domain.NavInjection, error) {
	allowed, err := s.host.HasCapability(ctx, userID, domain.CapabilityCreateTutor)
	if err != nil {
		return nil, err
	}
	inj := &domain.NavInjection{ShowNode: allowed}
	if allowed {
		inj.NodeURL = fmt.Sprintf("/trainer?corolairsourcecourse=%d", courseID)
	}

	key, err := s.host.GetPluginConfig(ctx, cfgAPIKey)
	if err != nil || domain.KeyAbsent(key) {
		return inj, nil
	}

	// Both checks anchor on the site URL so a foreign page that merely
	// contains a course path never gets the embed.
	courseView := strings.HasPrefix(pageURL, s.siteURL+fmt.Sprintf("/course/view.php?id=%d", courseID))
	modPage := strings.HasPrefix(pageURL, s.siteURL+"/mod/")
	if !courseView && !modPage {
		return inj, nil
	}

	user, err := s.host.GetUser(ctx, userID)
	if err != nil || user == nil {
		return inj, nil
	}
	role, err := s.host.UserRoleInCourse(ctx, userID, courseID)
	if err != nil {
		role = ""
	}

	sidePanel := true
	if v, err := s.host.GetPluginConfig(ctx, cfgSidePanel); err == nil && v != "" {
		sidePanel = v == "true"
	}

	inj.Embed = true
	inj.SidePanel = sidePanel
	// The welcome message only animates on the course view itself.
	inj.Animate = courseView
	inj.Options = map[string]any{
		"courseId":  courseID,
		"url":       s.siteURL,
		"moodleId":  userID,
		"email":     user.Email,
		"firstName": user.FirstName,
		"lastName":  user.LastName,
		"role":      role,
		"apiKey":    key,
	}
	return inj, nil
}
