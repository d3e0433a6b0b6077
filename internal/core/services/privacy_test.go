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

// Every privacy operation must make zero outbound calls and return empty
// results when no usable key is stored.
func TestPrivacy_NoKeyIsFullNoOp(t *testing.T) {
	for _, key := range append([]string{""}, domain.NoKeySentinels()...) {
		host := testutil.NewMockHostStore()
		if key != "" {
			host.PluginConfig["apikey"] = key
		}
		remote := &testutil.MockRemoteGateway{
			ContextsResponse: []domain.PrivacyContext{{ContextIdentifier: domain.PrivacyContextSystem}},
			UsersResponse:    []int64{1, 2},
		}
		svc := NewPrivacyService(host, remote, zap.NewNop())
		ctx := context.Background()

		ids, err := svc.ContextsForUser(ctx, 42)
		require.NoError(t, err)
		assert.Empty(t, ids)

		w := &testutil.MockExportWriter{}
		require.NoError(t, svc.ExportUserData(ctx, 42, w))
		assert.Empty(t, w.Writes)

		users, err := svc.UsersInContext(ctx, domain.ContextCourse)
		require.NoError(t, err)
		assert.Empty(t, users)

		require.NoError(t, svc.DeleteForContext(ctx, domain.ContextCourse))
		require.NoError(t, svc.DeleteForUsers(ctx, []int64{1, 2, 3}))

		assert.Zero(t, remote.OutboundCalls(), "key=%q", key)
	}
}

func TestContextsForUser_ResolvesAndSkips(t *testing.T) {
	host := testutil.NewMockHostStore()
	host.PluginConfig["apikey"] = "key-live"
	courseCtx := host.AddContext(domain.ContextCourse, 12)
	remote := &testutil.MockRemoteGateway{
		ContextsResponse: []domain.PrivacyContext{
			{ContextIdentifier: domain.PrivacyContextCourse, Payload: []int64{12, 99}},
			{ContextIdentifier: domain.PrivacyContextSystem},
		},
	}
	svc := NewPrivacyService(host, remote, zap.NewNop())

	ids, err := svc.ContextsForUser(context.Background(), 42)
	require.NoError(t, err)

	// Course 12 resolves, course 99 has no context row and is skipped,
	// the system entry maps to the system context id.
	assert.Equal(t, []int64{courseCtx, 1}, ids)
}

func TestContextsForUser_RemoteFailureDegrades(t *testing.T) {
	host := testutil.NewMockHostStore()
	host.PluginConfig["apikey"] = "key-live"
	remote := &testutil.MockRemoteGateway{ContextsErr: domain.ErrRemoteUnreachable}
	svc := NewPrivacyService(host, remote, zap.NewNop())

	ids, err := svc.ContextsForUser(context.Background(), 42)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestExportUserData_WritesUnderSystemContext(t *testing.T) {
	host := testutil.NewMockHostStore()
	host.PluginConfig["apikey"] = "key-live"
	remote := &testutil.MockRemoteGateway{
		ExportResponse: []domain.ExportItem{
			{Payload: map[string]any{"tutor": "algebra"}, Subcontext: []string{"Corolair", "Tutors"}},
			{Payload: map[string]any{"messages": float64(3)}, Subcontext: []string{"Corolair", "Conversations"}},
		},
	}
	svc := NewPrivacyService(host, remote, zap.NewNop())

	w := &testutil.MockExportWriter{}
	require.NoError(t, svc.ExportUserData(context.Background(), 42, w))

	require.Len(t, w.Writes, 2)
	for _, write := range w.Writes {
		assert.Equal(t, int64(1), write.ContextID)
	}
	assert.Equal(t, []string{"Corolair", "Tutors"}, w.Writes[0].Subcontext)
}

func TestUsersInContext_LevelGate(t *testing.T) {
	host := testutil.NewMockHostStore()
	host.PluginConfig["apikey"] = "key-live"
	remote := &testutil.MockRemoteGateway{UsersResponse: []int64{5, 6}}
	svc := NewPrivacyService(host, remote, zap.NewNop())
	ctx := context.Background()

	users, err := svc.UsersInContext(ctx, domain.ContextCourse)
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, users)

	// A block or module context is unsupported: no call, no result.
	users, err = svc.UsersInContext(ctx, domain.ContextLevel(80))
	require.NoError(t, err)
	assert.Empty(t, users)
	assert.Equal(t, 1, remote.UsersCalls)
}

func TestDeleteForContext_UnsupportedLevelSkips(t *testing.T) {
	host := testutil.NewMockHostStore()
	host.PluginConfig["apikey"] = "key-live"
	remote := &testutil.MockRemoteGateway{}
	svc := NewPrivacyService(host, remote, zap.NewNop())

	require.NoError(t, svc.DeleteForContext(context.Background(), domain.ContextLevel(70)))
	assert.Zero(t, remote.DeleteContextOps)

	require.NoError(t, svc.DeleteForContext(context.Background(), domain.ContextSystem))
	assert.Equal(t, 1, remote.DeleteContextOps)
}

func TestDeleteForUsers_ContinuesPastFailures(t *testing.T) {
	host := testutil.NewMockHostStore()
	host.PluginConfig["apikey"] = "key-live"
	remote := &testutil.MockRemoteGateway{
		DeleteUserErrs: map[int64]error{2: domain.ErrRemoteUnreachable},
	}
	svc := NewPrivacyService(host, remote, zap.NewNop())

	require.NoError(t, svc.DeleteForUsers(context.Background(), []int64{1, 2, 3}))

	// The failure on id 2 did not stop ids 1 and 3.
	assert.Equal(t, 3, remote.DeleteUserCalls)
	assert.Equal(t, []int64{1, 3}, remote.DeletedUserIDs)
}
