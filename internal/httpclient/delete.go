package httpclient

import (
	"context"
	"net/http"
)

// DoDELETE sends a DELETE request, with If-Match when etag is non-empty.
func (c *httpClientWrapper) DoDELETE(ctx context.Context, urlStr string, etag string) error {
	c.logger.Debug("starting DELETE request",
		"url", urlStr,
		"etag", etag)

	header := http.Header{}
	Precondition{IfMatch: etag}.apply(header)

	resp, err := c.Execute(ctx, &Request{Method: http.MethodDelete, Path: urlStr, Header: header})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return unexpectedStatus(http.MethodDelete, urlStr, resp)
	}

	c.logger.Debug("DELETE request complete", "status", resp.StatusCode)
	return nil
}
