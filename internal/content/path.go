package content

import (
	"net/url"
	"strings"
)

// ResolvePath decodes a raw URL path into a slash-separated path relative to
// the content root. ".." segments that would climb above the root yield
// ErrForbidden regardless of how they were percent-encoded. Empty paths and
// paths ending in "/" map to defaultDocument.
func ResolvePath(rawPath, defaultDocument string) (string, error) {
	decoded, err := url.PathUnescape(rawPath)
	if err != nil {
		return "", ErrForbidden
	}
	if strings.ContainsAny(decoded, "\x00\\") {
		return "", ErrForbidden
	}

	segments := make([]string, 0, strings.Count(decoded, "/")+1)
	for _, seg := range strings.Split(decoded, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(segments) == 0 {
				return "", ErrForbidden
			}
			segments = segments[:len(segments)-1]
		default:
			segments = append(segments, seg)
		}
	}

	if len(segments) == 0 || strings.HasSuffix(decoded, "/") {
		segments = append(segments, defaultDocument)
	}
	return strings.Join(segments, "/"), nil
}
