package xml

import (
	"net/http"
	"net/url"
	"strings"
)

// EncodePath joins slash-separated parts into an absolute path, escaping
// each segment. A trailing slash on the last part is kept.
func EncodePath(parts ...string) string {
	var segments []string
	for _, part := range parts {
		for _, s := range strings.Split(part, "/") {
			if s != "" {
				segments = append(segments, url.PathEscape(s))
			}
		}
	}
	p := "/" + strings.Join(segments, "/")
	if n := len(parts); n > 0 && strings.HasSuffix(parts[n-1], "/") && p != "/" {
		p += "/"
	}
	return p
}

// CopyMoveHeader returns the Destination and Overwrite headers of a MOVE or
// COPY. Without overwrite an existing destination answers 412.
func CopyMoveHeader(destination *url.URL, overwrite bool) http.Header {
	h := http.Header{}
	h.Set("Destination", destination.String())
	if overwrite {
		h.Set("Overwrite", "T")
	} else {
		h.Set("Overwrite", "F")
	}
	return h
}
