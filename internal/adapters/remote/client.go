// Package remote implements the outbound HTTP gateway to the Corolair backend.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/core/domain"
	"github.com/corolair/moodle-bridge/internal/core/ports"
	"github.com/corolair/moodle-bridge/internal/infrastructure/metrics"
)

const integrationPrefix = "/moodle-integration"

// deregisterTimeout bounds the best-effort deregistration call. The plugin
// never waits on this during uninstall, so the budget is deliberately tiny.
const deregisterTimeout = 100 * time.Millisecond

// Client talks to the Corolair moodle-integration API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// NewClient returns a gateway rooted at baseURL, e.g.
// https://services.corolair.com.
func NewClient(baseURL string, logger *zap.Logger) ports.RemoteGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// Register exchanges the site scaffold for an organization API key.
func (c *Client) Register(ctx context.Context, req domain.RegisterRequest) (string, error) {
	var resp struct {
		APIKey string `json:"apiKey"`
	}
	if err := c.postJSON(ctx, "register", integrationPrefix+"/plugin/organization/register", req, &resp); err != nil {
		return "", err
	}
	if resp.APIKey == "" {
		return "", domain.ErrAPIKeyMissing
	}
	return resp.APIKey, nil
}

// Deregister tells the backend the site is gone. Best-effort with a very
// short timeout; the outcome is never reported to the caller.
func (c *Client) Deregister(ctx context.Context, siteURL, apiKey string) {
	body, _ := json.Marshal(map[string]string{"url": siteURL, "apiKey": apiKey})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+integrationPrefix+"/plugin/organization/deregister", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	short := &http.Client{Timeout: deregisterTimeout}
	resp, err := short.Do(req)
	if err != nil {
		metrics.RemoteRequests.WithLabelValues("deregister", "error").Inc()
		c.logger.Debug("deregister call did not complete", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	metrics.RemoteRequests.WithLabelValues("deregister", "ok").Inc()
}

// Authenticate performs the auth handshake. redirectOutside selects the v2
// endpoint, which answers with a redirect URL instead of a session user id.
func (c *Client) Authenticate(ctx context.Context, req domain.AuthRequest, redirectOutside bool) (*domain.AuthResponse, error) {
	path := integrationPrefix + "/auth"
	endpoint := "auth"
	if redirectOutside {
		path += "/v2"
		endpoint = "auth_v2"
	}
	var resp domain.AuthResponse
	if err := c.postJSON(ctx, endpoint, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CreateTutor creates a course-scoped tutor instance.
func (c *Client) CreateTutor(ctx context.Context, req domain.TutorInstanceRequest) (*domain.TutorInstance, error) {
	var resp domain.TutorInstance
	if err := c.postJSON(ctx, "create_tutor", integrationPrefix+"/courses/instances/tutor", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// NotifyUpdate tells the backend the plugin version changed.
func (c *Client) NotifyUpdate(ctx context.Context, apiKey string) error {
	return c.postJSON(ctx, "update", integrationPrefix+"/update",
		map[string]string{"apiKey": apiKey}, nil)
}

// UserContexts enumerates the remote contexts holding data for userID.
func (c *Client) UserContexts(ctx context.Context, apiKey string, userID int64) ([]domain.PrivacyContext, error) {
	var out []domain.PrivacyContext
	path := fmt.Sprintf("%s/privacy/users/%d/contexts", integrationPrefix, userID)
	if err := c.do(ctx, "privacy_contexts", http.MethodGet, path, keyQuery(apiKey), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UserExport fetches the full remote data export for userID.
func (c *Client) UserExport(ctx context.Context, apiKey string, userID int64) ([]domain.ExportItem, error) {
	var out []domain.ExportItem
	path := fmt.Sprintf("%s/privacy/users/%d/export", integrationPrefix, userID)
	if err := c.do(ctx, "privacy_export", http.MethodGet, path, keyQuery(apiKey), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// UsersInContext lists remote user ids with data at the given context level.
func (c *Client) UsersInContext(ctx context.Context, apiKey string, level domain.ContextLevel) ([]int64, error) {
	var out struct {
		UserIDs []int64 `json:"userIds"`
	}
	q := keyQuery(apiKey)
	q.Set("contextlevel", levelName(level))
	path := integrationPrefix + "/privacy/contexts/users"
	if err := c.do(ctx, "privacy_users", http.MethodGet, path, q, nil, &out); err != nil {
		return nil, err
	}
	return out.UserIDs, nil
}

// DeleteContextData wipes remote data for a whole context level. Status only;
// the response body is never parsed.
func (c *Client) DeleteContextData(ctx context.Context, apiKey string, level domain.ContextLevel) error {
	q := keyQuery(apiKey)
	q.Set("contextlevel", levelName(level))
	return c.do(ctx, "privacy_delete_context", http.MethodDelete, integrationPrefix+"/privacy/contexts/delete", q, nil, nil)
}

// DeleteUserData wipes remote data for one user.
func (c *Client) DeleteUserData(ctx context.Context, apiKey string, userID int64) error {
	path := fmt.Sprintf("%s/privacy/users/%d/delete", integrationPrefix, userID)
	return c.do(ctx, "privacy_delete_user", http.MethodDelete, path, keyQuery(apiKey), nil, nil)
}

func (c *Client) postJSON(ctx context.Context, endpoint, path string, body, out any) error {
	return c.do(ctx, endpoint, http.MethodPost, path, nil, body, out)
}

// do runs one request and decodes the JSON reply into out when non-nil. Any
// transport failure or non-2xx status maps to domain.ErrRemoteUnreachable.
func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RemoteRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RemoteRequests.WithLabelValues(endpoint, "error").Inc()
		return fmt.Errorf("%w: %v", domain.ErrRemoteUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RemoteRequests.WithLabelValues(endpoint, "error").Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("remote call failed",
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet))
		return fmt.Errorf("%w: %s returned %d", domain.ErrRemoteUnreachable, endpoint, resp.StatusCode)
	}
	metrics.RemoteRequests.WithLabelValues(endpoint, "ok").Inc()

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s reply: %v", domain.ErrRemoteUnreachable, endpoint, err)
	}
	return nil
}

func keyQuery(apiKey string) url.Values {
	q := url.Values{}
	q.Set("apiKey", apiKey)
	return q
}

func levelName(level domain.ContextLevel) string {
	if level == domain.ContextSystem {
		return "system"
	}
	return "course"
}
