// Package domain contains the core business logic and entities for the Corolair bridge.
package domain

import "strings"

// The Moodle plugin historically stored a localized placeholder string instead of
// leaving the apikey setting empty. Any value starting with one of these prefixes
// means "no credential configured", regardless of the site's display language.
var noKeySentinels = []string{
	"No Corolair Api Key",
	"Aucune Clé API Corolair",
	"No hay clave API de Corolair",
}

var noLoginSentinels = []string{
	"No account attached",
	"Aucun compte rattaché",
	"No hay ninguna cuenta asociada",
}

// NoKeySentinel is the value written when the credential is cleared.
const NoKeySentinel = "No Corolair Api Key"

// ConfigKeyAPIKey is the plugin configuration name the credential is stored
// under. Every reader and writer of the key goes through this name.
const ConfigKeyAPIKey = "apikey"

// Credential is the plugin-scoped pair stored in the host configuration:
// the Corolair API key and the email of the admin who registered the site.
type Credential struct {
	APIKey     string `json:"api_key"`
	LoginEmail string `json:"login_email"`
}

// HasKey reports whether the credential carries a real API key.
func (c Credential) HasKey() bool {
	return !KeyAbsent(c.APIKey)
}

// KeyAbsent reports whether value is empty or one of the localized
// "no API key" placeholder strings.
func KeyAbsent(value string) bool {
	if value == "" {
		return true
	}
	for _, s := range noKeySentinels {
		if strings.HasPrefix(value, s) {
			return true
		}
	}
	return false
}

// LoginAbsent reports whether value is empty or a localized
// "no account attached" placeholder.
func LoginAbsent(value string) bool {
	if value == "" {
		return true
	}
	for _, s := range noLoginSentinels {
		if strings.HasPrefix(value, s) {
			return true
		}
	}
	return false
}

// NoKeySentinels returns the localized placeholder strings. Exposed for tests.
func NoKeySentinels() []string {
	out := make([]string, len(noKeySentinels))
	copy(out, noKeySentinels)
	return out
}
