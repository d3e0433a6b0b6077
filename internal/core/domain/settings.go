package domain

import (
	"regexp"
	"strings"
)

// Settings is the plugin configuration surface exposed to admins.
type Settings struct {
	SidePanel                 bool   `json:"sidepanel"`
	CreateTutorWithCapability bool   `json:"createtutorwithcapability"`
	RedirectOutside           bool   `json:"redirectoutside"`
	EnableCustomCSS           bool   `json:"enablecustomcss"`
	CustomCSS                 string `json:"customcss"`
	APIKey                    string `json:"apikey"`
	CorolairLogin             string `json:"corolairlogin"`
}

// cssAllowed keeps only characters that can appear in plain CSS rules. Anything
// else is stripped before the stylesheet is injected into a page.
var cssAllowed = regexp.MustCompile(`[^{}#.;:%\-\w\s(),!'"/]`)

// SanitizeCSS collapses newlines to spaces and strips characters outside the
// restricted CSS character set.
func SanitizeCSS(css string) string {
	css = strings.TrimSpace(css)
	css = strings.NewReplacer("\r", " ", "\n", " ").Replace(css)
	return cssAllowed.ReplaceAllString(css, "")
}

// DefaultTrainerCSS is the stylesheet restored by the reset operation. It makes
// the trainer iframe fill the page inside the host theme.
const DefaultTrainerCSS = `
#page-local-corolair-trainer #topofscroll {
    margin: 0 !important;
    padding: 0 !important;
    height: 100%;
    width: 100%;
    max-width: 100%;
}

#page-local-corolair-trainer #corolair-iframe {
    width: 100%;
    height: 100%;
    border: none;
}

#page-local-corolair-trainer #page {
    overflow: hidden !important;
    height: 100vh !important;
    box-sizing: border-box !important;
    width: 100vw !important;
    padding: 0 !important;
}

#page-local-corolair-trainer #page-content {
    padding: 0 !important;
    height: 100%;
}

#page-local-corolair-trainer #region-main-box {
    height: 100%;
}

#page-local-corolair-trainer #region-main {
    height: 100%;
}

#page-local-corolair-trainer div[role="main"] {
    height: 100%;
    padding: 0 !important;
}

#page-local-corolair-trainer #page-header {
    display: none;
}`
