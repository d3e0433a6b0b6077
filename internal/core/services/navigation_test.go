package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/testutil"
)

const navSite = "https://moodle.example.edu"

func navHost() *testutil.MockHostStore {
	host := testutil.NewMockHostStore()
	host.PluginConfig["apikey"] = "key-live"
	host.Users[42] = &domain.Account{ID: 42, Email: "student@example.edu", FirstName: "Stu", LastName: "Dent"}
	host.CourseRoles[42] = map[int64]string{12: "editingteacher"}
	return host
}

func TestCourseNavigation_NodeFollowsCapability(t *testing.T) {
	host := navHost()
	svc := NewNavigationService(host, navSite, zap.NewNop())
	ctx := context.Background()

	inj, err := svc.CourseNavigation(ctx, 42, 12, navSite+"/course/view.php?id=12")
	require.NoError(t, err)
	assert.False(t, inj.ShowNode)
	assert.Empty(t, inj.NodeURL)

	host.GrantUserCapability(42, domain.CapabilityCreateTutor)
	inj, err = svc.CourseNavigation(ctx, 42, 12, navSite+"/course/view.php?id=12")
	require.NoError(t, err)
	assert.True(t, inj.ShowNode)
	assert.Contains(t, inj.NodeURL, "corolairsourcecourse=12")
}

func TestCourseNavigation_EmbedOnCourseView(t *testing.T) {
	host := navHost()
	svc := NewNavigationService(host, navSite, zap.NewNop())

	inj, err := svc.CourseNavigation(context.Background(), 42, 12, navSite+"/course/view.php?id=12")
	require.NoError(t, err)
	require.True(t, inj.Embed)
	assert.True(t, inj.Animate)
	assert.True(t, inj.SidePanel)
	assert.Equal(t, int64(12), inj.Options["courseId"])
	assert.Equal(t, navSite, inj.Options["url"])
	assert.Equal(t, "student@example.edu", inj.Options["email"])
	assert.Equal(t, "editingteacher", inj.Options["role"])
	assert.Equal(t, "key-live", inj.Options["apiKey"])
}

func TestCourseNavigation_EmbedOnModulePageWithoutAnimation(t *testing.T) {
	host := navHost()
	svc := NewNavigationService(host, navSite, zap.NewNop())

	inj, err := svc.CourseNavigation(context.Background(), 42, 12, navSite+"/mod/quiz/view.php?id=77")
	require.NoError(t, err)
	assert.True(t, inj.Embed)
	assert.False(t, inj.Animate)
}

func TestCourseNavigation_NoEmbedCases(t *testing.T) {
	t.Run("key absent", func(t *testing.T) {
		host := navHost()
		host.PluginConfig["apikey"] = domain.NoKeySentinel
		svc := NewNavigationService(host, navSite, zap.NewNop())

		inj, err := svc.CourseNavigation(context.Background(), 42, 12, navSite+"/course/view.php?id=12")
		require.NoError(t, err)
		assert.False(t, inj.Embed)
	})

	t.Run("foreign host with course path", func(t *testing.T) {
		host := navHost()
		svc := NewNavigationService(host, navSite, zap.NewNop())

		inj, err := svc.CourseNavigation(context.Background(), 42, 12, "https://phish.example.com/course/view.php?id=12")
		require.NoError(t, err)
		assert.False(t, inj.Embed)
	})

	t.Run("foreign host with mod path", func(t *testing.T) {
		host := navHost()
		svc := NewNavigationService(host, navSite, zap.NewNop())

		inj, err := svc.CourseNavigation(context.Background(), 42, 12, "https://phish.example.com/mod/quiz/view.php?id=77")
		require.NoError(t, err)
		assert.False(t, inj.Embed)
	})

	t.Run("unrelated page", func(t *testing.T) {
		host := navHost()
		svc := NewNavigationService(host, navSite, zap.NewNop())

		inj, err := svc.CourseNavigation(context.Background(), 42, 12, navSite+"/grade/report/index.php?id=12")
		require.NoError(t, err)
		assert.False(t, inj.Embed)
	})

	t.Run("different course id on view page", func(t *testing.T) {
		host := navHost()
		svc := NewNavigationService(host, navSite, zap.NewNop())

		inj, err := svc.CourseNavigation(context.Background(), 42, 12, navSite+"/course/view.php?id=99")
		require.NoError(t, err)
		assert.False(t, inj.Embed)
	})
}

func TestCourseNavigation_SidePanelSetting(t *testing.T) {
	host := navHost()
	host.PluginConfig["sidepanel"] = "false"
	svc := NewNavigationService(host, navSite, zap.NewNop())

	inj, err := svc.CourseNavigation(context.Background(), 42, 12, navSite+"/course/view.php?id=12")
	require.NoError(t, err)
	require.True(t, inj.Embed)
	assert.False(t, inj.SidePanel)
}
