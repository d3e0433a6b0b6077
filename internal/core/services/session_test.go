package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/testutil"
)

func seedScaffold(t *testing.T, host *testutil.MockHostStore) string {
	t.Helper()
	serviceID, err := host.CreateService(context.Background(), &domain.ExternalService{
		Name:      domain.ServiceName,
		Shortname: domain.ServiceShortname,
		Enabled:   true,
	})
	require.NoError(t, err)
	token := &domain.ServiceToken{
		Token:       domain.NewTokenValue(),
		ServiceID:   serviceID,
		UserID:      testAdmin.ID,
		TimeCreated: time.Now(),
	}
	_, err = host.CreateToken(context.Background(), token)
	require.NoError(t, err)
	return token.Token
}

func TestEnsureSession_StoredKeyShortCircuits(t *testing.T) {
	host := testutil.NewMockHostStore()
	host.PluginConfig["apikey"] = "key-live"
	remote := &testutil.MockRemoteGateway{}
	svc := NewSessionService(host, remote, zap.NewNop())

	res, err := svc.EnsureSession(context.Background(), testAdmin, "https://moodle.example.edu", "Example U")
	require.NoError(t, err)
	assert.Equal(t, "key-live", res.APIKey)
	assert.False(t, res.ReloadRequired)
	assert.Nil(t, res.Troubleshoot)
	assert.Zero(t, remote.OutboundCalls())
}

func TestEnsureSession_SentinelTriggersSingleRetry(t *testing.T) {
	for _, sentinel := range domain.NoKeySentinels() {
		host := testutil.NewMockHostStore()
		host.PluginConfig["apikey"] = sentinel
		tokenValue := seedScaffold(t, host)
		remote := &testutil.MockRemoteGateway{RegisterKey: "key-repaired"}
		svc := NewSessionService(host, remote, zap.NewNop())

		res, err := svc.EnsureSession(context.Background(), testAdmin, "https://moodle.example.edu", "Example U")
		require.NoError(t, err, sentinel)

		// Exactly one register call, reusing the existing token.
		require.Equal(t, 1, remote.RegisterCalls, sentinel)
		assert.Equal(t, tokenValue, remote.RegisterRequests[0].WebserviceToken, sentinel)
		assert.Equal(t, "key-repaired", res.APIKey, sentinel)
		assert.True(t, res.ReloadRequired, sentinel)
		assert.Equal(t, "key-repaired", host.PluginConfig["apikey"], sentinel)

		// No new token was minted during repair.
		for id := range host.Services {
			assert.Len(t, host.Tokens[id], 1, sentinel)
		}
	}
}

func TestEnsureSession_RetryFailureYieldsTroubleshoot(t *testing.T) {
	host := testutil.NewMockHostStore()
	host.GlobalConfig["enablewebservices"] = "1"
	host.GlobalConfig["webserviceprotocols"] = "rest"
	tokenValue := seedScaffold(t, host)
	remote := &testutil.MockRemoteGateway{RegisterErr: domain.ErrRemoteUnreachable}
	svc := NewSessionService(host, remote, zap.NewNop())

	res, err := svc.EnsureSession(context.Background(), testAdmin, "https://moodle.example.edu", "Example U")
	require.NoError(t, err)

	// One attempt, not a loop.
	assert.Equal(t, 1, remote.RegisterCalls)
	assert.Empty(t, res.APIKey)
	require.NotNil(t, res.Troubleshoot)
	assert.True(t, res.Troubleshoot.WebServicesEnabled)
	assert.True(t, res.Troubleshoot.RESTEnabled)
	assert.True(t, res.Troubleshoot.ServiceExists)
	assert.True(t, res.Troubleshoot.TokenExists)
	assert.Equal(t, tokenValue, res.Troubleshoot.TokenValue)
}

func TestEnsureSession_NoScaffoldSkipsNetwork(t *testing.T) {
	host := testutil.NewMockHostStore()
	remote := &testutil.MockRemoteGateway{}
	svc := NewSessionService(host, remote, zap.NewNop())

	res, err := svc.EnsureSession(context.Background(), testAdmin, "https://moodle.example.edu", "Example U")
	require.NoError(t, err)
	assert.Zero(t, remote.OutboundCalls())
	require.NotNil(t, res.Troubleshoot)
	assert.False(t, res.Troubleshoot.ServiceExists)
	assert.False(t, res.Troubleshoot.TokenExists)
}

func TestEnsureSession_StoreFailureIsNotTroubleshoot(t *testing.T) {
	// A transient database error must surface as an error, not as a
	// troubleshoot report claiming the scaffold is missing.
	host := testutil.NewMockHostStore()
	host.GetServiceErr = errors.New("connection reset")
	remote := &testutil.MockRemoteGateway{}
	svc := NewSessionService(host, remote, zap.NewNop())

	res, err := svc.EnsureSession(context.Background(), testAdmin, "https://moodle.example.edu", "Example U")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Zero(t, remote.OutboundCalls())

	host = testutil.NewMockHostStore()
	seedScaffold(t, host)
	host.GetTokenErr = errors.New("connection reset")
	svc = NewSessionService(host, remote, zap.NewNop())

	res, err = svc.EnsureSession(context.Background(), testAdmin, "https://moodle.example.edu", "Example U")
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Zero(t, remote.OutboundCalls())
}

func TestTroubleshoot_Snapshot(t *testing.T) {
	host := testutil.NewMockHostStore()
	host.GlobalConfig["enablewebservices"] = "0"
	host.GlobalConfig["webserviceprotocols"] = "soap"
	remote := &testutil.MockRemoteGateway{}
	svc := NewSessionService(host, remote, zap.NewNop())

	report, err := svc.Troubleshoot(context.Background(), testAdmin, "https://moodle.example.edu", "Example U")
	require.NoError(t, err)
	assert.False(t, report.WebServicesEnabled)
	assert.False(t, report.RESTEnabled)
	assert.False(t, report.ServiceExists)
	assert.Equal(t, testAdmin.Email, report.AdminEmail)
	assert.Equal(t, "https://moodle.example.edu", report.SiteURL)
	assert.Zero(t, remote.OutboundCalls())
}
