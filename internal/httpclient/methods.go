package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ncmcp/ncclient/ncerr"
)

func (c *httpClientWrapper) DoGET(ctx context.Context, urlStr string, header http.Header) (*Response, error) {
	c.logger.Debug("starting GET request", "url", urlStr)
	return c.Execute(ctx, &Request{Method: http.MethodGet, Path: urlStr, Header: header})
}

// DoMKCOL creates a collection. A 405 answer means the collection already
// exists and is returned as a response, not an error.
func (c *httpClientWrapper) DoMKCOL(ctx context.Context, urlStr string, body []byte) (*Response, error) {
	return c.doCreateCollection(ctx, "MKCOL", urlStr, body)
}

func (c *httpClientWrapper) DoMKCALENDAR(ctx context.Context, urlStr string, body []byte) (*Response, error) {
	return c.doCreateCollection(ctx, "MKCALENDAR", urlStr, body)
}

func (c *httpClientWrapper) doCreateCollection(ctx context.Context, method, urlStr string, body []byte) (*Response, error) {
	c.logger.Debug("starting "+method+" request", "url", urlStr)

	header := http.Header{}
	if len(body) > 0 {
		header.Set("Content-Type", "application/xml; charset=utf-8")
	}
	resp, err := c.Execute(ctx, &Request{Method: method, Path: urlStr, Header: header, Body: body})
	if err != nil {
		if ncerr.StatusOf(err) == http.StatusMethodNotAllowed && resp != nil {
			c.logger.Debug("collection already exists", "url", urlStr)
			return resp, nil
		}
		return nil, err
	}
	return resp, nil
}

func (c *httpClientWrapper) DoMOVE(ctx context.Context, urlStr string, header http.Header) (*Response, error) {
	c.logger.Debug("starting MOVE request", "url", urlStr, "destination", header.Get("Destination"))
	return c.Execute(ctx, &Request{Method: "MOVE", Path: urlStr, Header: header})
}

func (c *httpClientWrapper) DoCOPY(ctx context.Context, urlStr string, header http.Header) (*Response, error) {
	c.logger.Debug("starting COPY request", "url", urlStr, "destination", header.Get("Destination"))
	return c.Execute(ctx, &Request{Method: "COPY", Path: urlStr, Header: header})
}

// DoJSON calls an OCS or app REST endpoint. in is encoded as the request body
// when non-nil; the response body is decoded into out when non-nil.
func (c *httpClientWrapper) DoJSON(ctx context.Context, method, urlStr string, header http.Header, in, out any) (*Response, error) {
	h := http.Header{}
	for k, v := range header {
		h[k] = append([]string(nil), v...)
	}
	h.Set("OCS-APIRequest", "true")
	h.Set("Accept", "application/json")

	var body []byte
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = buf.Bytes()
		h.Set("Content-Type", "application/json")
	}

	c.logger.Debug("starting JSON request", "method", method, "url", urlStr)
	resp, err := c.Execute(ctx, &Request{Method: method, Path: urlStr, Header: h, Body: body})
	if err != nil {
		return resp, err
	}
	if out != nil && len(bytes.TrimSpace(resp.Body)) > 0 {
		if err := json.Unmarshal(resp.Body, out); err != nil {
			c.logger.Debug("failed to decode JSON response", "url", urlStr, "error", err)
			return resp, ncerr.Malformed(method, urlStr, err)
		}
	}
	return resp, nil
}

// unexpectedStatus reports a success-class status the caller cannot use,
// e.g. 200 where 207 Multi-Status was required.
func unexpectedStatus(method, urlStr string, resp *Response) error {
	return &ncerr.Error{
		Kind:     ncerr.KindRemote,
		Op:       method,
		Resource: urlStr,
		Status:   resp.StatusCode,
		Detail:   excerpt(resp.Body),
	}
}
