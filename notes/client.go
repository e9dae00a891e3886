// Package notes is a client for the Nextcloud Notes REST API.
package notes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/internal/mutation"
	"github.com/ncmcp/ncclient/ncerr"
	"github.com/ncmcp/ncclient/search"
	"github.com/ncmcp/ncclient/webdav"
	"github.com/samber/mo"
)

const (
	apiPath = "/index.php/apps/notes/api/v1"

	// AppendSeparator joins appended text to existing content.
	AppendSeparator = "\n---\n"

	// notesDir is the default Notes folder in the user's files.
	notesDir = "Notes"
)

// Client defines the Notes operations.
type Client interface {
	List(ctx context.Context) ([]Note, error)
	Get(ctx context.Context, id int64) (*Note, error)
	Create(ctx context.Context, title, content, category string) (*Note, error)
	Update(ctx context.Context, id int64, etag string, patch Patch) (*Note, error)
	Append(ctx context.Context, id int64, text string) (*Note, error)
	Delete(ctx context.Context, id int64) error
	Settings(ctx context.Context) (*Settings, error)
	Search(ctx context.Context, query string) ([]SearchHit, error)
	AddAttachment(ctx context.Context, id int64, category, filename string, content []byte, contentType string) (string, error)
	GetAttachment(ctx context.Context, id int64, category, filename string) (*webdav.File, error)
}

// Note as returned by the Notes API.
type Note struct {
	ID       int64  `json:"id"`
	ETag     string `json:"etag"`
	Readonly bool   `json:"readonly"`
	Modified int64  `json:"modified"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Content  string `json:"content"`
	Favorite bool   `json:"favorite"`
}

// Settings of the Notes app.
type Settings struct {
	NotesPath  string `json:"notesPath"`
	FileSuffix string `json:"fileSuffix"`
	NoteMode   string `json:"noteMode,omitempty"`
}

// SearchHit is one search result, best match first.
type SearchHit struct {
	ID       int64  `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
	Modified int64  `json:"modified"`
}

// Patch holds the fields an update changes.
type Patch struct {
	Title    mo.Option[string] `json:"title"`
	Content  mo.Option[string] `json:"content"`
	Category mo.Option[string] `json:"category"`
	Favorite mo.Option[bool]   `json:"favorite"`
}

func (p Patch) body() map[string]any {
	body := make(map[string]any)
	if v, ok := p.Title.Get(); ok {
		body["title"] = v
	}
	if v, ok := p.Content.Get(); ok {
		body["content"] = v
	}
	if v, ok := p.Category.Get(); ok {
		body["category"] = v
	}
	if v, ok := p.Favorite.Get(); ok {
		body["favorite"] = v
	}
	return body
}

type notesClient struct {
	httpClient httpclient.HttpClientWrapper
	files      webdav.Client
	logger     *slog.Logger
}

// NewClient creates a Notes client. files serves attachments and their
// cleanup.
func NewClient(httpClient httpclient.HttpClientWrapper, files webdav.Client, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &notesClient{httpClient: httpClient, files: files, logger: logger}
}

func notePath(id int64) string {
	return apiPath + "/notes/" + strconv.FormatInt(id, 10)
}

func (c *notesClient) List(ctx context.Context) ([]Note, error) {
	var notes []Note
	if _, err := c.httpClient.DoJSON(ctx, http.MethodGet, apiPath+"/notes", nil, nil, &notes); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	c.logger.Debug("listed notes", "count", len(notes))
	return notes, nil
}

func (c *notesClient) Get(ctx context.Context, id int64) (*Note, error) {
	var note Note
	resp, err := c.httpClient.DoJSON(ctx, http.MethodGet, notePath(id), nil, nil, &note)
	if err != nil {
		return nil, fmt.Errorf("failed to get note %d: %w", id, err)
	}
	fillETag(&note, resp)
	return &note, nil
}

// fillETag prefers the body's etag and falls back to the header.
func fillETag(note *Note, resp *httpclient.Response) {
	if note.ETag == "" && resp != nil {
		note.ETag = strings.Trim(resp.ETag(), `"`)
	}
}

func (c *notesClient) Create(ctx context.Context, title, content, category string) (*Note, error) {
	body := map[string]any{"title": title, "content": content}
	if category != "" {
		body["category"] = category
	}
	var note Note
	resp, err := c.httpClient.DoJSON(ctx, http.MethodPost, apiPath+"/notes", nil, body, &note)
	if err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}
	fillETag(&note, resp)
	c.logger.Info("created note", "id", note.ID, "etag", note.ETag)
	return &note, nil
}

// Update writes patch if the note still carries etag. A changed note
// answers Conflict. Moving a note to another category removes the
// attachment directory of the old one.
func (c *notesClient) Update(ctx context.Context, id int64, etag string, patch Patch) (*Note, error) {
	if etag == "" {
		return nil, ncerr.Malformed("update", notePath(id), errors.New("etag is required"))
	}
	var old *Note
	if patch.Category.IsPresent() {
		var err error
		if old, err = c.Get(ctx, id); err != nil {
			c.logger.Warn("could not read note before category change", "id", id, "error", err)
		}
	}

	note, err := c.put(ctx, id, etag, patch)
	if err != nil {
		return nil, err
	}

	if newCategory, ok := patch.Category.Get(); ok && old != nil && old.Category != newCategory {
		c.cleanupAttachments(ctx, id, old.Category)
	}
	return note, nil
}

func (c *notesClient) put(ctx context.Context, id int64, etag string, patch Patch) (*Note, error) {
	header := http.Header{}
	header.Set("If-Match", httpclient.QuoteETag(etag))
	var note Note
	resp, err := c.httpClient.DoJSON(ctx, http.MethodPut, notePath(id), header, patch.body(), &note)
	if err != nil {
		return nil, fmt.Errorf("failed to update note %d: %w", id, err)
	}
	fillETag(&note, resp)
	c.logger.Info("updated note", "id", id, "etag", note.ETag)
	return &note, nil
}

// Append adds text after the current content, separated by
// AppendSeparator unless the note is empty.
func (c *notesClient) Append(ctx context.Context, id int64, text string) (*Note, error) {
	var written *Note
	_, err := mutation.Apply(ctx, mutation.Ops[*Note]{
		Resource: notePath(id),
		Read: func(ctx context.Context) (*Note, string, error) {
			note, err := c.Get(ctx, id)
			if err != nil {
				return nil, "", err
			}
			return note, note.ETag, nil
		},
		Merge: func(note *Note) (*Note, error) {
			if note.Content == "" {
				note.Content = text
			} else {
				note.Content += AppendSeparator + text
			}
			return note, nil
		},
		Write: func(ctx context.Context, note *Note, etag string) (string, error) {
			var err error
			written, err = c.put(ctx, id, etag, Patch{Content: mo.Some(note.Content)})
			if err != nil {
				return "", err
			}
			return written.ETag, nil
		},
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

// Delete removes a note, then its attachment directories. Cleanup is best
// effort and never fails the delete.
func (c *notesClient) Delete(ctx context.Context, id int64) error {
	categories := []string{""}
	if note, err := c.Get(ctx, id); err != nil {
		c.logger.Warn("could not read note before delete", "id", id, "error", err)
	} else if note.Category != "" {
		categories = append([]string{note.Category}, categories...)
	}

	if _, err := c.httpClient.DoJSON(ctx, http.MethodDelete, notePath(id), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete note %d: %w", id, err)
	}
	c.logger.Info("deleted note", "id", id)

	for _, category := range categories {
		c.cleanupAttachments(ctx, id, category)
	}
	return nil
}

func (c *notesClient) Settings(ctx context.Context) (*Settings, error) {
	var s Settings
	if _, err := c.httpClient.DoJSON(ctx, http.MethodGet, apiPath+"/settings", nil, nil, &s); err != nil {
		return nil, fmt.Errorf("failed to get notes settings: %w", err)
	}
	return &s, nil
}

// Search ranks every note against query; title matches weigh more than
// content matches.
func (c *notesClient) Search(ctx context.Context, query string) ([]SearchHit, error) {
	notes, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	ranked := search.Rank(notes, query, func(n Note) (string, string) {
		return n.Title, n.Content
	})
	hits := make([]SearchHit, 0, len(ranked))
	for _, r := range ranked {
		hits = append(hits, SearchHit{
			ID:       r.Item.ID,
			Title:    r.Item.Title,
			Category: r.Item.Category,
			Modified: r.Item.Modified,
		})
	}
	return hits, nil
}
