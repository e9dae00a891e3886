// Package nextcloud bundles the per-app clients behind one configured
// entry point. Every Client owns its own transport, so clients for different
// accounts can be used side by side.
package nextcloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ncmcp/ncclient/caldav"
	"github.com/ncmcp/ncclient/carddav"
	"github.com/ncmcp/ncclient/deck"
	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/notes"
	"github.com/ncmcp/ncclient/tables"
	"github.com/ncmcp/ncclient/webdav"
)

const capabilitiesPath = "/ocs/v2.php/cloud/capabilities"

// DefaultTimeout applies when Config.HTTPClient is nil.
const DefaultTimeout = 30 * time.Second

type Config struct {
	// BaseURL is the server root, including any sub-directory prefix.
	BaseURL  string
	Username string
	Password string
	// HTTPClient is optional; its transport is wrapped with basic auth. It
	// must not carry a cookie jar.
	HTTPClient *http.Client
	Logger     *slog.Logger
	Retry      httpclient.RetryPolicy
	// RequestsPerSecond paces outbound requests; 0 disables it.
	RequestsPerSecond float64
	Burst             int
}

type Client struct {
	Notes    notes.Client
	Files    webdav.Client
	Calendar caldav.Client
	Contacts carddav.Client
	Tables   tables.Client
	Deck     deck.Client

	http   httpclient.HttpClientWrapper
	logger *slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("username and password are required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	var hc http.Client
	if cfg.HTTPClient != nil {
		hc = *cfg.HTTPClient
	} else {
		hc.Timeout = DefaultTimeout
	}
	hc.Transport = httpclient.NewBasicAuthTransport(cfg.Username, cfg.Password, hc.Transport, logger)

	wrapper, err := httpclient.NewHttpClientWrapper(&hc, *base, logger, httpclient.Options{
		Retry:             cfg.Retry,
		RequestsPerSecond: cfg.RequestsPerSecond,
		Burst:             cfg.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create http client: %w", err)
	}

	files := webdav.NewClient(wrapper, cfg.Username, logger)
	return &Client{
		Notes:    notes.NewClient(wrapper, files, logger),
		Files:    files,
		Calendar: caldav.NewClient(wrapper, cfg.Username, logger),
		Contacts: carddav.NewClient(wrapper, cfg.Username, logger),
		Tables:   tables.NewClient(wrapper, logger),
		Deck:     deck.NewClient(wrapper, logger),
		http:     wrapper,
		logger:   logger,
	}, nil
}

// Version is the server version reported with the capabilities.
type Version struct {
	Major   int    `json:"major"`
	Minor   int    `json:"minor"`
	Micro   int    `json:"micro"`
	String  string `json:"string"`
	Edition string `json:"edition"`
}

// Capabilities lists the server version and the per-app capability
// documents, kept undecoded.
type Capabilities struct {
	Version      Version                    `json:"version"`
	Capabilities map[string]json.RawMessage `json:"capabilities"`
}

// HasApp reports whether the server announced capabilities for app.
func (c *Capabilities) HasApp(app string) bool {
	_, ok := c.Capabilities[app]
	return ok
}

func (c *Client) Capabilities(ctx context.Context) (*Capabilities, error) {
	var caps Capabilities
	if err := httpclient.DoOCS(ctx, c.http, http.MethodGet, capabilitiesPath+"?format=json", nil, &caps); err != nil {
		return nil, fmt.Errorf("failed to get capabilities: %w", err)
	}
	c.logger.Debug("fetched capabilities", "version", caps.Version.String, "apps", len(caps.Capabilities))
	return &caps, nil
}

// SearchNotes ranks the user's notes against query.
func (c *Client) SearchNotes(ctx context.Context, query string) ([]notes.SearchHit, error) {
	return c.Notes.Search(ctx, query)
}

// Delete removes the object h points at. etag makes the delete conditional
// where the resource kind supports it.
func (c *Client) Delete(ctx context.Context, h Handle, etag string) error {
	if err := h.Validate(); err != nil {
		return err
	}
	switch h.Kind {
	case KindNote:
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid note id %q: %w", h.ID, err)
		}
		return c.Notes.Delete(ctx, id)
	case KindEvent:
		return c.Calendar.DeleteEvent(ctx, h.Container, h.ID, etag)
	case KindContact:
		return c.Contacts.DeleteContact(ctx, h.Container, h.ID, etag)
	case KindFile:
		return c.Files.Delete(ctx, strings.TrimSuffix(h.Container, "/")+"/"+h.ID)
	case KindTableRow:
		id, err := strconv.ParseInt(h.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid row id %q: %w", h.ID, err)
		}
		return c.Tables.DeleteRow(ctx, id)
	case KindCard:
		board, stack, _ := strings.Cut(h.Container, "/")
		ids, err := parseIDs(board, stack, h.ID)
		if err != nil {
			return err
		}
		return c.Deck.DeleteCard(ctx, ids[0], ids[1], ids[2])
	}
	return fmt.Errorf("unsupported resource kind %q", h.Kind)
}

func parseIDs(values ...string) ([]int64, error) {
	ids := make([]int64, len(values))
	for i, v := range values {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", v, err)
		}
		ids[i] = n
	}
	return ids, nil
}
