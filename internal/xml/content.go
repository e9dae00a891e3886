package xml

import (
	"mime"
	"strings"
	"unicode/utf8"
)

var textTypes = map[string]bool{
	"application/json":        true,
	"application/xml":         true,
	"application/javascript":  true,
	"application/x-yaml":      true,
	"application/yaml":        true,
	"application/x-sh":        true,
	"application/toml":        true,
	"application/sql":         true,
	"application/x-httpd-php": true,
	"application/ld+json":     true,
}

// IsText reports whether a body with the given content type should be handed
// out as text. The type must be textual and the bytes valid in the declared
// charset; anything else is treated as binary.
func IsText(contentType string, body []byte) bool {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if !isTextualType(mediaType) {
		return false
	}
	switch strings.ToLower(params["charset"]) {
	case "", "utf-8", "utf8":
		return utf8.Valid(body)
	case "us-ascii", "ascii":
		for _, b := range body {
			if b >= utf8.RuneSelf {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func isTextualType(mediaType string) bool {
	if strings.HasPrefix(mediaType, "text/") {
		return true
	}
	if textTypes[mediaType] {
		return true
	}
	return strings.HasSuffix(mediaType, "+json") || strings.HasSuffix(mediaType, "+xml")
}
