package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ncmcp/ncclient/ncerr"
)

// ocsEnvelope is the OCS v2 response wrapper.
type ocsEnvelope struct {
	OCS struct {
		Meta struct {
			Status     string `json:"status"`
			StatusCode int    `json:"statuscode"`
			Message    string `json:"message"`
		} `json:"meta"`
		Data json.RawMessage `json:"data"`
	} `json:"ocs"`
}

// DoOCS calls an OCS v2 endpoint and decodes ocs.data into out.
func DoOCS(ctx context.Context, c HttpClientWrapper, method, path string, in, out any) error {
	var env ocsEnvelope
	if _, err := c.DoJSON(ctx, method, path, nil, in, &env); err != nil {
		return err
	}
	if code := env.OCS.Meta.StatusCode; code >= http.StatusBadRequest {
		return &ncerr.Error{
			Kind:     ncerr.FromStatus(code),
			Op:       method,
			Resource: path,
			Status:   code,
			Detail:   env.OCS.Meta.Message,
		}
	}
	if out == nil || len(env.OCS.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.OCS.Data, out); err != nil {
		return ncerr.Malformed(method, path, fmt.Errorf("failed to decode ocs data: %w", err))
	}
	return nil
}
