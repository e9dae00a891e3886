package httpclient

import (
	"context"
	"net/http"
)

// DoREPORT executes a CalDAV/CardDAV REPORT request with a pre-built body.
func (c *httpClientWrapper) DoREPORT(ctx context.Context, urlStr string, depth int, body []byte) (*Response, error) {
	c.logger.Debug("starting REPORT request",
		"url", urlStr,
		"depth", depth,
		"body_length", len(body))

	header, err := depthHeader(depth)
	if err != nil {
		return nil, err
	}
	resp, err := c.Execute(ctx, &Request{Method: "REPORT", Path: urlStr, Header: header, Body: body})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusMultiStatus {
		return nil, unexpectedStatus("REPORT", urlStr, resp)
	}

	c.logger.Debug("REPORT request complete", "body_length", len(resp.Body))
	return resp, nil
}
