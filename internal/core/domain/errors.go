package domain

import "errors"

// Error taxonomy for the bootstrap, auth and privacy flows. Install-time errors
// abort remaining steps but never roll back already-applied state; page-time
// errors are terminal for the request; privacy errors are swallowed upstream.
var (
	// ErrLocalhostNotSupported rejects registration of a non-routable site URL.
	ErrLocalhostNotSupported = errors.New("site url is a loopback address; the remote service cannot call back")
	// ErrServiceCreation means the external service record could not be created.
	ErrServiceCreation = errors.New("external service creation failed")
	// ErrCapabilityAssign means binding a function or capability failed.
	ErrCapabilityAssign = errors.New("capability assignment failed")
	// ErrTokenCreation means minting a web-service token failed.
	ErrTokenCreation = errors.New("token creation failed")
	// ErrRoleCreation means the manager role could not be created.
	ErrRoleCreation = errors.New("role creation failed")
	// ErrRemoteUnreachable is any transport-level or non-2xx failure talking to
	// the Corolair backend.
	ErrRemoteUnreachable = errors.New("corolair service unreachable")
	// ErrAPIKeyMissing means a register response parsed fine but carried no apiKey.
	ErrAPIKeyMissing = errors.New("register response missing apiKey")
	// ErrTokenResponse means an auth response is missing the field its mode requires.
	ErrTokenResponse = errors.New("auth response missing expected field")
	// ErrMissingCapability is an authorization denial for the current user.
	ErrMissingCapability = errors.New("user lacks required capability")
	// ErrNoAPIKey means no usable credential is stored. Fatal on direct page
	// access, a silent no-op in the privacy proxy.
	ErrNoAPIKey = errors.New("no corolair api key configured")
	// ErrScaffoldMissing means no service or token exists to retry registration with.
	ErrScaffoldMissing = errors.New("service scaffold or token missing")
)
