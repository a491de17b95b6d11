package jobs

import (
	"strings"
)

// ParseRoute extracts the ID and action from a URL path like /api/sessions/{id}/{action}.
// apiPrefix should be like "/api/sessions/", idPrefix should be like "sess-".
// Returns the normalized ID and action, or ok=false if the path is invalid.
func ParseRoute(path, apiPrefix, idPrefix string) (id, action string, ok bool) {
	if !strings.HasPrefix(path, apiPrefix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimPrefix(path, apiPrefix), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}

	id = parts[0]
	if !strings.HasPrefix(id, idPrefix) {
		id = idPrefix + id
	}
	return id, parts[1], true
}
