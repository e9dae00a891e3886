package caldav

import (
	"net/http"
	"net/url"

	"github.com/ncmcp/ncclient/ncerr"
)

func malformed(op, resource string, err error) error {
	return ncerr.Malformed(op, resource, err)
}

func unescape(p string) (string, error) {
	return url.PathUnescape(p)
}

// collectionExists reports a MKCALENDAR on an existing collection.
func collectionExists(resource string) error {
	return &ncerr.Error{
		Kind:     ncerr.KindConflict,
		Op:       "MKCALENDAR",
		Resource: resource,
		Status:   http.StatusMethodNotAllowed,
		Detail:   "calendar already exists",
	}
}
