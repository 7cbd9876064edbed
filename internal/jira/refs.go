package jira

import (
	"regexp"
	"strings"
)

var keyPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*-\d+$`)

// IsValidKey reports whether key has the PROJECT-NUMBER form.
func IsValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// NormalizeKey trims and upper-cases a user-supplied issue key.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// BrowseURL builds the human-readable browse URL for key.
// For example, ("https://company.atlassian.net/", "PROJ-123") returns
// "https://company.atlassian.net/browse/PROJ-123".
func BrowseURL(baseURL, key string) string {
	if baseURL == "" || key == "" {
		return ""
	}
	return strings.TrimSuffix(baseURL, "/") + "/browse/" + key
}

// ExtractKey extracts the Jira issue key from a browse URL.
// For example, "https://company.atlassian.net/browse/PROJ-123" returns "PROJ-123".
func ExtractKey(ref string) string {
	idx := strings.LastIndex(ref, "/browse/")
	if idx == -1 {
		return ""
	}
	key := ref[idx+len("/browse/"):]
	if i := strings.IndexAny(key, "?#/"); i >= 0 {
		key = key[:i]
	}
	return key
}
