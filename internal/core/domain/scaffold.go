package domain

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// ContextLevel mirrors Moodle's context level constants.
type ContextLevel int

const (
	// ContextSystem is the site-wide context.
	ContextSystem ContextLevel = 10
	// ContextCourse is a per-course context.
	ContextCourse ContextLevel = 50
)

const (
	// ServiceShortname is the reserved shortname of the external service record.
	// At most one service with this shortname may exist.
	ServiceShortname = "corolair_rest"
	// ServiceName is the display name of the external service.
	ServiceName = "Corolair REST"
	// RoleShortname is the shortname of the manager role created at install.
	RoleShortname = "corolair"
	// RoleName is the display name of the manager role.
	RoleName = "Corolair Manager"
	// CapabilityCreateTutor gates every trainer-facing page and the course
	// navigation node.
	CapabilityCreateTutor = "local/corolair:createtutor"
	// CapabilitySiteConfig is the host admin capability required for
	// destructive settings operations.
	CapabilitySiteConfig = "moodle/site:config"
	// TokenName labels tokens minted for the scaffold.
	TokenName = "Corolair"
)

// ServiceFunctions is the fixed allow-list of host web-service functions bound
// to the scaffold. The names are a contract with the Corolair backend; do not
// edit casually.
var ServiceFunctions = []string{
	"core_user_get_users",
	"core_user_get_users_by_field",
	"core_course_get_courses",
	"core_course_get_contents",
	"mod_resource_get_resources_by_courses",
	"core_enrol_get_users_courses",
	"core_enrol_get_enrolled_users",
	"core_webservice_get_site_info",
	"core_enrol_get_enrolled_users_with_capability",
	"core_course_get_categories",
}

// ExternalService is the host-side service record the remote backend calls
// back into.
type ExternalService struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Shortname       string    `json:"shortname"`
	Enabled         bool      `json:"enabled"`
	RestrictedUsers bool      `json:"restricted_users"`
	UploadFiles     bool      `json:"upload_files"`
	DownloadFiles   bool      `json:"download_files"`
	TimeCreated     time.Time `json:"time_created"`
	TimeModified    time.Time `json:"time_modified"`
}

// ServiceToken is an access token bound to an external service.
// ValidUntil is zero for tokens that never expire.
type ServiceToken struct {
	ID           int64     `json:"id"`
	Token        string    `json:"token"`
	PrivateToken string    `json:"-"`
	UserID       int64     `json:"user_id"`
	CreatorID    int64     `json:"creator_id"`
	ContextID    int64     `json:"context_id"`
	ServiceID    int64     `json:"service_id"`
	ValidUntil   int64     `json:"valid_until"`
	TimeCreated  time.Time `json:"time_created"`
}

// ManagerRole is the custom role granted to the installing admin.
type ManagerRole struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Shortname   string `json:"shortname"`
	Description string `json:"description"`
}

// Account identifies a host user as sent to the remote backend.
type Account struct {
	ID        int64  `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
}

// NewTokenValue returns a random 32-hex-char web-service token.
func NewTokenValue() string {
	return randomHex(16)
}

// NewPrivateToken returns a random 64-char private token.
func NewPrivateToken() string {
	return randomHex(32)
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process has no entropy source at all.
		panic(err)
	}
	return hex.EncodeToString(buf)
}
