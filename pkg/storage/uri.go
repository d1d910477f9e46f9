package storage

import "strings"

// Resource URIs are cached by clients; do not change the format.
const (
	ResourceScheme    = "image"
	ResourceNamespace = "remote-image-ai"
	resourcePrefix    = ResourceScheme + "://" + ResourceNamespace + "/image/"

	// ResourceTemplate is the MCP resource template for cached images.
	ResourceTemplate = resourcePrefix + "{id}"
)

// ResourceURI returns the canonical identifier for a record id
func ResourceURI(id string) string {
	return resourcePrefix + id
}

// ParseResourceURI accepts a canonical URI or a bare id and returns the id.
// ok is false for an empty id or a URI in another namespace.
func ParseResourceURI(handle string) (id string, ok bool) {
	handle = strings.TrimSpace(handle)
	if strings.HasPrefix(handle, resourcePrefix) {
		id = strings.TrimPrefix(handle, resourcePrefix)
		return id, id != "" && !strings.Contains(id, "/")
	}
	if strings.Contains(handle, "://") {
		return "", false
	}
	return handle, handle != ""
}
