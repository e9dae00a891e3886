// Package webdav reads and writes a user's Nextcloud file tree.
package webdav

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/internal/mutation"
	"github.com/ncmcp/ncclient/internal/xml"
	"github.com/ncmcp/ncclient/ncerr"
)

// Client defines the file operations. Paths are relative to the user's
// files root; leading and trailing slashes are ignored.
type Client interface {
	List(ctx context.Context, dir string) ([]FileInfo, error)
	Stat(ctx context.Context, p string) (FileInfo, error)
	Read(ctx context.Context, p string) (*File, error)
	Write(ctx context.Context, p string, content []byte, contentType string) (string, error)
	WriteWithOptions(ctx context.Context, p string, content []byte, opts WriteOptions) (string, error)
	Edit(ctx context.Context, p string, edit func(current []byte) ([]byte, error)) (string, error)
	Mkdir(ctx context.Context, p string, recursive bool) (created bool, err error)
	Move(ctx context.Context, src, dst string, overwrite bool) error
	Copy(ctx context.Context, src, dst string, overwrite bool) error
	Delete(ctx context.Context, p string) error
}

// FileInfo describes one node of the tree.
type FileInfo struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	IsDir        bool      `json:"is_directory"`
	Size         int64     `json:"size,omitempty"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	FileID       string    `json:"file_id,omitempty"`
	Favorite     bool      `json:"favorite,omitempty"`
}

// Encoding of File.Content.
const (
	EncodingText   = ""
	EncodingBase64 = "base64"
)

// File is a downloaded file. Content is the text itself, or base64 when the
// body is not valid text in its declared charset.
type File struct {
	Path         string    `json:"path"`
	Content      string    `json:"content"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	Encoding     string    `json:"encoding,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified,omitempty"`

	Raw []byte `json:"-"`
}

// WriteOptions control PUT preconditions.
type WriteOptions struct {
	// ContentType is guessed from the extension when empty.
	ContentType string
	// IfMatch makes the write fail with Conflict when the file changed.
	IfMatch string
	// CreateOnly makes the write fail with Conflict when the file exists.
	CreateOnly bool
}

var listProps = append(append([]xml.PropName{}, xml.DefaultFileProps...), xml.PropFileID, xml.PropFavorite)

type fileClient struct {
	httpClient httpclient.HttpClientWrapper
	root       string
	logger     *slog.Logger
}

// NewClient creates a client for username's files.
func NewClient(httpClient httpclient.HttpClientWrapper, username string, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &fileClient{
		httpClient: httpClient,
		root:       xml.EncodePath("/remote.php/dav/files", username),
		logger:     logger,
	}
}

// Clean normalizes p to a root-relative path without leading or trailing
// slashes. ".." never climbs above the root.
func Clean(p string) string {
	return strings.Trim(path.Clean("/"+p), "/")
}

func (c *fileClient) davPath(p string, dir bool) string {
	rel := Clean(p)
	if rel == "" {
		return c.root + "/"
	}
	full := c.root + xml.EncodePath(rel)
	if dir {
		full += "/"
	}
	return full
}

func (c *fileClient) hrefRoot() string {
	full := c.httpClient.BasePath() + c.root
	if p, err := url.PathUnescape(full); err == nil {
		return p
	}
	return full
}

func (c *fileClient) propfind(ctx context.Context, p string, depth int) ([]xml.Resource, error) {
	body, err := xml.BuildPropfind(listProps...)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.DoPROPFIND(ctx, c.davPath(p, depth > 0), depth, body)
	if err != nil {
		return nil, err
	}
	resources, err := xml.ParseMultistatus(resp.Body, c.hrefRoot())
	if err != nil {
		return nil, ncerr.Malformed("PROPFIND", p, err)
	}
	return resources, nil
}

func fileInfo(r xml.Resource) FileInfo {
	favorite := r.Text(xml.PropFavorite).OrEmpty()
	return FileInfo{
		Name:         path.Base("/" + r.Path),
		Path:         r.Path,
		IsDir:        r.IsCollection,
		Size:         r.ContentLength.OrEmpty(),
		ContentType:  r.ContentType.OrEmpty(),
		LastModified: r.LastModified.OrEmpty(),
		ETag:         r.ETag.OrEmpty(),
		FileID:       r.Text(xml.PropFileID).OrEmpty(),
		Favorite:     favorite == "1",
	}
}

// List returns the children of dir; the directory's own entry is dropped.
func (c *fileClient) List(ctx context.Context, dir string) ([]FileInfo, error) {
	resources, err := c.propfind(ctx, dir, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", dir, err)
	}
	self := Clean(dir)
	infos := make([]FileInfo, 0, len(resources))
	for _, r := range resources {
		if r.Path == self {
			continue
		}
		infos = append(infos, fileInfo(r))
	}
	c.logger.Debug("listed directory", "path", self, "count", len(infos))
	return infos, nil
}

func (c *fileClient) Stat(ctx context.Context, p string) (FileInfo, error) {
	resources, err := c.propfind(ctx, p, 0)
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat %q: %w", p, err)
	}
	if len(resources) == 0 {
		return FileInfo{}, ncerr.NotFound("PROPFIND", p)
	}
	return fileInfo(resources[0]), nil
}

func (c *fileClient) Read(ctx context.Context, p string) (*File, error) {
	resp, err := c.httpClient.DoGET(ctx, c.davPath(p, false), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", p, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = guessContentType(p)
	}
	f := &File{
		Path:        Clean(p),
		ContentType: contentType,
		Size:        int64(len(resp.Body)),
		ETag:        resp.ETag(),
		Raw:         resp.Body,
	}
	if t, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
		f.LastModified = t
	}
	if xml.IsText(contentType, resp.Body) {
		f.Content = string(resp.Body)
	} else {
		f.Content = base64.StdEncoding.EncodeToString(resp.Body)
		f.Encoding = EncodingBase64
	}
	return f, nil
}

func guessContentType(p string) string {
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func (c *fileClient) Write(ctx context.Context, p string, content []byte, contentType string) (string, error) {
	return c.WriteWithOptions(ctx, p, content, WriteOptions{ContentType: contentType})
}

func (c *fileClient) WriteWithOptions(ctx context.Context, p string, content []byte, opts WriteOptions) (string, error) {
	if Clean(p) == "" {
		return "", errors.New("cannot write to the files root")
	}
	contentType := opts.ContentType
	if contentType == "" {
		contentType = guessContentType(p)
	}
	cond := httpclient.Precondition{IfMatch: opts.IfMatch, IfNoneMatch: opts.CreateOnly}
	etag, err := c.httpClient.DoPUT(ctx, c.davPath(p, false), cond, contentType, content)
	if err != nil {
		return "", fmt.Errorf("failed to write %q: %w", p, err)
	}
	c.logger.Info("wrote file", "path", Clean(p), "bytes", len(content), "etag", etag)
	return etag, nil
}

// Edit rewrites a file from its current content. The write is conditional
// on the ETag read, so a concurrent change fails with Conflict.
func (c *fileClient) Edit(ctx context.Context, p string, edit func(current []byte) ([]byte, error)) (string, error) {
	var contentType string
	res, err := mutation.Apply(ctx, mutation.Ops[[]byte]{
		Resource: Clean(p),
		Read: func(ctx context.Context) ([]byte, string, error) {
			f, err := c.Read(ctx, p)
			if err != nil {
				return nil, "", err
			}
			contentType = f.ContentType
			return f.Raw, f.ETag, nil
		},
		Merge: edit,
		Write: func(ctx context.Context, data []byte, etag string) (string, error) {
			return c.WriteWithOptions(ctx, p, data, WriteOptions{ContentType: contentType, IfMatch: etag})
		},
	})
	if err != nil {
		return "", err
	}
	return res.Tag, nil
}

// Mkdir creates a directory. An existing directory is not an error and
// reports created=false. With recursive, each missing ancestor is created
// top-down.
func (c *fileClient) Mkdir(ctx context.Context, p string, recursive bool) (bool, error) {
	rel := Clean(p)
	if rel == "" {
		return false, nil
	}
	if !recursive {
		return c.mkcol(ctx, rel)
	}
	var created bool
	segments := strings.Split(rel, "/")
	for i := range segments {
		var err error
		if created, err = c.mkcol(ctx, strings.Join(segments[:i+1], "/")); err != nil {
			return false, err
		}
	}
	return created, nil
}

func (c *fileClient) mkcol(ctx context.Context, rel string) (bool, error) {
	resp, err := c.httpClient.DoMKCOL(ctx, c.davPath(rel, true), nil)
	if err != nil {
		return false, fmt.Errorf("failed to create directory %q: %w", rel, err)
	}
	if resp.StatusCode == http.StatusMethodNotAllowed {
		c.logger.Debug("directory already exists", "path", rel)
		return false, nil
	}
	c.logger.Info("created directory", "path", rel)
	return true, nil
}

func (c *fileClient) Move(ctx context.Context, src, dst string, overwrite bool) error {
	return c.transfer(ctx, "move", src, dst, overwrite)
}

func (c *fileClient) Copy(ctx context.Context, src, dst string, overwrite bool) error {
	return c.transfer(ctx, "copy", src, dst, overwrite)
}

func (c *fileClient) transfer(ctx context.Context, verb, src, dst string, overwrite bool) error {
	if Clean(src) == "" || Clean(dst) == "" {
		return fmt.Errorf("cannot %s the files root", verb)
	}
	dest, err := c.httpClient.AbsoluteURL(c.davPath(dst, false))
	if err != nil {
		return err
	}
	header := xml.CopyMoveHeader(dest, overwrite)
	do := c.httpClient.DoMOVE
	if verb == "copy" {
		do = c.httpClient.DoCOPY
	}
	if _, err := do(ctx, c.davPath(src, false), header); err != nil {
		return fmt.Errorf("failed to %s %q to %q: %w", verb, src, dst, err)
	}
	c.logger.Info(verb+" complete", "from", Clean(src), "to", Clean(dst), "overwrite", overwrite)
	return nil
}

// Delete removes a file or a directory tree. A missing path is NotFound.
func (c *fileClient) Delete(ctx context.Context, p string) error {
	if Clean(p) == "" {
		return errors.New("cannot delete the files root")
	}
	if err := c.httpClient.DoDELETE(ctx, c.davPath(p, false), ""); err != nil {
		return fmt.Errorf("failed to delete %q: %w", p, err)
	}
	c.logger.Info("deleted", "path", Clean(p))
	return nil
}
