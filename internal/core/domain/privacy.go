package domain

// Context level identifiers used on the privacy wire format.
const (
	PrivacyContextCourse = "CONTEXT_COURSE"
	PrivacyContextSystem = "CONTEXT_SYSTEM"
)

// PrivacyContext is one entry of the remote contexts-for-user reply. For
// CONTEXT_COURSE entries Payload enumerates course instance ids; for
// CONTEXT_SYSTEM it is empty.
type PrivacyContext struct {
	ContextIdentifier string  `json:"contextIdentifier"`
	Payload           []int64 `json:"payload"`
}

// ExportItem is one entry of the remote export reply: a data object and the
// subcontext path it is written under.
type ExportItem struct {
	Payload    map[string]any `json:"payload"`
	Subcontext []string       `json:"subcontext"`
}

// ExternalFields statically declares which personal fields are sent to the
// remote service, keyed by field name. Pure data, consumed by the host's
// privacy metadata registry.
func ExternalFields() map[string]string {
	return map[string]string{
		"userid":        "The Moodle user id forwarded on authentication.",
		"useremail":     "The user's email address.",
		"userfirstname": "The user's first name.",
		"userlastname":  "The user's last name.",
		"userrolename":  "The shortname of the user's role in the course.",
		"interaction":   "Records of the user's interactions with Corolair tutors.",
	}
}
