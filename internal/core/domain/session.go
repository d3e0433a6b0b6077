package domain

// SessionMode selects how the remote application is surfaced.
type SessionMode string

const (
	// ModeEmbed renders the remote session inline in an iframe.
	ModeEmbed SessionMode = "embed"
	// ModeRedirect opens the remote application in a new browsing context.
	ModeRedirect SessionMode = "redirect"
)

// RemoteSession is the ephemeral result of the auth handshake. Exactly one of
// UserID (embed mode) or RedirectURL (redirect mode) is set.
type RemoteSession struct {
	Mode        SessionMode `json:"mode"`
	UserID      string      `json:"userId,omitempty"`
	RedirectURL string      `json:"url,omitempty"`
	// CourseID and Plugin echo the request context, used purely for display.
	CourseID int64  `json:"courseId,omitempty"`
	Plugin   string `json:"plugin,omitempty"`
}

// AuthRequest is the JSON body of the auth handshake.
type AuthRequest struct {
	Email                     string `json:"email"`
	APIKey                    string `json:"apiKey"`
	FirstName                 string `json:"firstname"`
	LastName                  string `json:"lastname"`
	MoodleUserID              int64  `json:"moodleUserId"`
	CreateTutorWithCapability bool   `json:"createTutorWithCapability"`
	CourseID                  int64  `json:"courseId"`
	Plugin                    string `json:"plugin"`
}

// AuthResponse is the raw remote auth reply before mode validation.
type AuthResponse struct {
	UserID string `json:"userId"`
	URL    string `json:"url"`
}

// RegisterRequest is the JSON body of the organization register call.
type RegisterRequest struct {
	URL             string `json:"url"`
	WebserviceToken string `json:"webserviceToken"`
	Email           string `json:"email"`
	FirstName       string `json:"firstname"`
	LastName        string `json:"lastname"`
	SiteName        string `json:"siteName"`
}

// TutorInstanceRequest creates a course-scoped tutor on the remote side.
type TutorInstanceRequest struct {
	CourseID  int64  `json:"courseId"`
	URL       string `json:"url"`
	MoodleID  int64  `json:"moodleId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	APIKey    string `json:"apiKey"`
}

// TutorInstance is the remote reply to a tutor instance request.
type TutorInstance struct {
	TutorID       string `json:"tutorId"`
	ParticipantID string `json:"participantId"`
}

// TroubleshootReport is the diagnostic snapshot rendered when the session
// bootstrap or the auth handshake cannot reach a usable state. It carries
// enough to tell which install step failed, without further network calls.
type TroubleshootReport struct {
	SiteURL            string `json:"site_url"`
	SiteName           string `json:"site_name"`
	WebServicesEnabled bool   `json:"web_services_enabled"`
	RESTEnabled        bool   `json:"rest_enabled"`
	ServiceExists      bool   `json:"service_exists"`
	TokenExists        bool   `json:"token_exists"`
	AdminEmail         string `json:"admin_email"`
	AdminFirstName     string `json:"admin_first"`
	AdminLastName      string `json:"admin_last"`
	TokenValue         string `json:"token_value,omitempty"`
}

// NavInjection is the payload produced for the course navigation hook when the
// embed script should be rendered on the current page.
type NavInjection struct {
	ShowNode  bool           `json:"show_node"`
	NodeURL   string         `json:"node_url,omitempty"`
	Embed     bool           `json:"embed"`
	SidePanel bool           `json:"side_panel"`
	Animate   bool           `json:"animate"`
	Options   map[string]any `json:"options,omitempty"`
}
