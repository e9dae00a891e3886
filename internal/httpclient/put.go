package httpclient

import (
	"context"
	"net/http"
	"strings"
)

// Precondition selects the conditional headers of a write.
type Precondition struct {
	// IfMatch is the entity tag the resource must still carry.
	IfMatch string
	// IfNoneMatch makes the write create-only (If-None-Match: *).
	IfNoneMatch bool
}

// QuoteETag wraps a bare entity tag in double quotes.
func QuoteETag(etag string) string {
	if etag == "" || strings.HasPrefix(etag, `"`) || strings.HasPrefix(etag, `W/"`) {
		return etag
	}
	return `"` + etag + `"`
}

func (p Precondition) apply(h http.Header) {
	if p.IfMatch != "" {
		h.Set("If-Match", QuoteETag(p.IfMatch))
	}
	if p.IfNoneMatch {
		h.Set("If-None-Match", "*")
	}
}

func (c *httpClientWrapper) DoPUT(ctx context.Context, urlStr string, cond Precondition, contentType string, data []byte) (newEtag string, err error) {
	c.logger.Debug("starting PUT request",
		"url", urlStr,
		"etag", cond.IfMatch,
		"create_only", cond.IfNoneMatch,
		"data_length", len(data))

	header := http.Header{}
	cond.apply(header)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	if data == nil {
		data = []byte{}
	}

	resp, err := c.Execute(ctx, &Request{Method: http.MethodPut, Path: urlStr, Header: header, Body: data})
	if err != nil {
		return "", err
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	default:
		return "", unexpectedStatus(http.MethodPut, urlStr, resp)
	}

	newEtag = resp.ETag()
	c.logger.Debug("PUT request complete",
		"status", resp.StatusCode,
		"new_etag", newEtag)
	return newEtag, nil
}
