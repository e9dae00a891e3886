package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	davxml "github.com/ncmcp/ncclient/internal/xml"
	"github.com/ncmcp/ncclient/ncerr"
)

var validDepths = map[int]bool{0: true, 1: true}

func depthHeader(depth int) (http.Header, error) {
	if !validDepths[depth] {
		return nil, fmt.Errorf("unsupported depth %d: must be 0 or 1", depth)
	}
	h := http.Header{}
	h.Set("Depth", strconv.Itoa(depth))
	h.Set("Content-Type", "application/xml; charset=utf-8")
	return h, nil
}

// DoPROPFIND performs a PROPFIND request and requires a 207 Multi-Status
// answer.
func (c *httpClientWrapper) DoPROPFIND(ctx context.Context, urlStr string, depth int, body []byte) (*Response, error) {
	c.logger.Debug("starting PROPFIND request",
		"url", urlStr,
		"depth", depth)

	header, err := depthHeader(depth)
	if err != nil {
		return nil, err
	}
	resp, err := c.Execute(ctx, &Request{Method: "PROPFIND", Path: urlStr, Header: header, Body: body})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusMultiStatus {
		c.logger.Debug("unexpected response status",
			"status_code", resp.StatusCode)
		return nil, unexpectedStatus("PROPFIND", urlStr, resp)
	}

	c.logger.Debug("PROPFIND request complete", "body_length", len(resp.Body))
	return resp, nil
}

// FetchETag reads the current entity tag of one resource with a depth-0
// PROPFIND. Used when a write answers without an ETag header.
func (c *httpClientWrapper) FetchETag(ctx context.Context, urlStr string) (string, error) {
	body, err := davxml.BuildPropfind(davxml.PropGetETag)
	if err != nil {
		return "", err
	}
	resp, err := c.DoPROPFIND(ctx, urlStr, 0, body)
	if err != nil {
		return "", fmt.Errorf("failed to get etag: %w", err)
	}
	resources, err := davxml.ParseMultistatus(resp.Body, "")
	if err != nil {
		return "", ncerr.Malformed("PROPFIND", urlStr, err)
	}
	for _, r := range resources {
		if etag := r.ETag.OrEmpty(); etag != "" {
			return etag, nil
		}
	}
	return "", &ncerr.Error{Kind: ncerr.KindMalformed, Op: "PROPFIND", Resource: urlStr, Detail: "no etag found"}
}
