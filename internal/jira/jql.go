package jira

import (
	"fmt"
	"strings"
)

// quote renders s as a double-quoted JQL string literal.
func quote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(s) + `"`
}

// ChildrenOfType selects the direct hierarchy children of parentKey with the given issue type.
func ChildrenOfType(parentKey, issueType string) string {
	return fmt.Sprintf("issuekey in childIssuesOf(%s) AND issuetype = %s", quote(parentKey), quote(issueType))
}

// WithFixVersion restricts jql to issues carrying the release marker.
func WithFixVersion(jql, marker string) string {
	return fmt.Sprintf("%s AND fixVersion = %s", jql, quote(marker))
}

// ActiveLeavesOf selects items linked to epicKey, and subtasks of those items,
// that are scheduled in a currently open sprint.
func ActiveLeavesOf(epicKey string) string {
	inner := fmt.Sprintf(`"Epic Link" = %s`, epicKey)
	return fmt.Sprintf(`(%s OR issue IN subtasksOf('%s')) AND sprint IN openSprints()`, inner, inner)
}

// ParentIssuesOf selects the parent of key.
func ParentIssuesOf(key string) string {
	return fmt.Sprintf("issue IN parentIssuesOf(%s)", quote(key))
}

// KeysIn selects the issues with the given keys.
func KeysIn(keys []string) string {
	return fmt.Sprintf("key in (%s)", strings.Join(keys, ","))
}
