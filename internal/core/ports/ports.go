package ports

import (
	"context"

	"github.com/corolair/moodle-bridge/internal/core/domain"
)

// HostStore is the bridge's window into the Moodle database: plugin and global
// configuration, the external service scaffold, roles and contexts. Every
// workflow receives it explicitly so tests can run against fakes.
type HostStore interface {
	// Plugin-scoped configuration (config_plugins, plugin "local_corolair").
	GetPluginConfig(ctx context.Context, name string) (string, error)
	SetPluginConfig(ctx context.Context, name, value string) error
	DeletePluginConfig(ctx context.Context) error

	// Site-wide configuration (config table).
	GetGlobalConfig(ctx context.Context, name string) (string, error)
	SetGlobalConfig(ctx context.Context, name, value string) error

	// External service scaffold. GetService returns nil when no service with
	// the shortname exists. DeleteService cascades tokens and function
	// bindings before removing the service record.
	GetService(ctx context.Context, shortname string) (*domain.ExternalService, error)
	CreateService(ctx context.Context, svc *domain.ExternalService) (int64, error)
	DeleteService(ctx context.Context, serviceID int64) error
	AddServiceFunction(ctx context.Context, serviceID int64, functionName string) error
	ListServiceFunctions(ctx context.Context, serviceID int64) ([]string, error)

	CreateToken(ctx context.Context, token *domain.ServiceToken) (int64, error)
	GetTokenByService(ctx context.Context, serviceID int64) (*domain.ServiceToken, error)
	ListTokensByService(ctx context.Context, serviceID int64) ([]domain.ServiceToken, error)

	// Roles and capabilities.
	GetRole(ctx context.Context, shortname string) (*domain.ManagerRole, error)
	CreateRole(ctx context.Context, role *domain.ManagerRole) (int64, error)
	DeleteRole(ctx context.Context, roleID int64) error
	AddRoleContextLevel(ctx context.Context, roleID int64, level domain.ContextLevel) error
	GrantCapability(ctx context.Context, roleID, contextID int64, capability string) error
	AssignRole(ctx context.Context, roleID, userID, contextID int64) error

	// Contexts and users.
	SystemContextID(ctx context.Context) (int64, error)
	FindContextID(ctx context.Context, level domain.ContextLevel, instanceID int64) (int64, error)
	GetUser(ctx context.Context, userID int64) (*domain.Account, error)
	HasCapability(ctx context.Context, userID int64, capability string) (bool, error)
	UserRoleInCourse(ctx context.Context, userID, courseID int64) (string, error)

	Ping(ctx context.Context) error
}

// RemoteGateway is the outbound HTTP surface of the Corolair backend.
// Register, Authenticate and CreateTutor report transport failures as
// domain.ErrRemoteUnreachable; the privacy calls return their errors verbatim
// and the privacy service decides how to degrade. Deregister is best-effort
// and never reports anything.
type RemoteGateway interface {
	Register(ctx context.Context, req domain.RegisterRequest) (string, error)
	Deregister(ctx context.Context, siteURL, apiKey string)
	Authenticate(ctx context.Context, req domain.AuthRequest, redirectOutside bool) (*domain.AuthResponse, error)
	CreateTutor(ctx context.Context, req domain.TutorInstanceRequest) (*domain.TutorInstance, error)
	NotifyUpdate(ctx context.Context, apiKey string) error

	UserContexts(ctx context.Context, apiKey string, userID int64) ([]domain.PrivacyContext, error)
	UserExport(ctx context.Context, apiKey string, userID int64) ([]domain.ExportItem, error)
	UsersInContext(ctx context.Context, apiKey string, level domain.ContextLevel) ([]int64, error)
	DeleteContextData(ctx context.Context, apiKey string, level domain.ContextLevel) error
	DeleteUserData(ctx context.Context, apiKey string, userID int64) error
}

// ExportWriter receives privacy export payloads, keyed by host context id and
// a subcontext path. The host's privacy subsystem provides the real writer;
// tests and the HTTP surface provide collecting fakes.
type ExportWriter interface {
	Write(ctx context.Context, contextID int64, subcontext []string, payload map[string]any) error
}

// RegistrationService installs or repairs the local scaffold and exchanges it
// for an API key.
type RegistrationService interface {
	RegisterOrRepair(ctx context.Context, admin domain.Account, siteURL, siteName string) error
	MintToken(ctx context.Context, userID int64) (*domain.ServiceToken, error)
	Uninstall(ctx context.Context, siteURL string) error
}

// EnsureResult is the outcome of a session bootstrap: either a usable key
// (possibly freshly repaired, in which case the UI must ask for a reload), or
// a troubleshoot report.
type EnsureResult struct {
	APIKey         string
	ReloadRequired bool
	Troubleshoot   *domain.TroubleshootReport
}

// SessionService resolves the stored credential, retrying registration once
// when the key is stale.
type SessionService interface {
	EnsureSession(ctx context.Context, admin domain.Account, siteURL, siteName string) (*EnsureResult, error)
	Troubleshoot(ctx context.Context, admin domain.Account, siteURL, siteName string) (*domain.TroubleshootReport, error)
}

// AuthOptions carries the per-request context of an auth handshake.
type AuthOptions struct {
	CourseID int64
	Plugin   string
}

// AuthService performs the per-request auth handshake against the remote
// backend.
type AuthService interface {
	Authenticate(ctx context.Context, user domain.Account, apiKey string, opts AuthOptions) (*domain.RemoteSession, error)
}

// PrivacyService proxies the host privacy subsystem to the remote backend.
// Every operation is a safe no-op when no real key is stored, and degrades to
// empty rather than failing when the remote side errors.
type PrivacyService interface {
	ContextsForUser(ctx context.Context, userID int64) ([]int64, error)
	ExportUserData(ctx context.Context, userID int64, w ExportWriter) error
	UsersInContext(ctx context.Context, level domain.ContextLevel) ([]int64, error)
	DeleteForContext(ctx context.Context, level domain.ContextLevel) error
	DeleteForUsers(ctx context.Context, userIDs []int64) error
}
