package notes

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/ncmcp/ncclient/ncerr"
	"github.com/ncmcp/ncclient/webdav"
)

// AttachmentDir is the files path holding a note's attachments:
// Notes/{category/}.attachments.{id}.
func AttachmentDir(id int64, category string) string {
	dir := notesDir
	if category != "" {
		dir += "/" + category
	}
	return webdav.Clean(dir + "/.attachments." + strconv.FormatInt(id, 10))
}

func attachmentPath(id int64, category, filename string) (string, error) {
	if filename == "" || strings.ContainsAny(filename, `/\`) || filename == "." || filename == ".." {
		return "", fmt.Errorf("invalid attachment name %q", filename)
	}
	return AttachmentDir(id, category) + "/" + filename, nil
}

// AddAttachment stores a file next to the note, creating the attachment
// directory when needed. It returns the new ETag.
func (c *notesClient) AddAttachment(ctx context.Context, id int64, category, filename string, content []byte, contentType string) (string, error) {
	p, err := attachmentPath(id, category, filename)
	if err != nil {
		return "", err
	}
	if _, err := c.files.Mkdir(ctx, AttachmentDir(id, category), true); err != nil {
		return "", fmt.Errorf("failed to create attachment directory: %w", err)
	}
	etag, err := c.files.Write(ctx, p, content, contentType)
	if err != nil {
		return "", err
	}
	c.logger.Info("added note attachment", "id", id, "file", filename)
	return etag, nil
}

func (c *notesClient) GetAttachment(ctx context.Context, id int64, category, filename string) (*webdav.File, error) {
	p, err := attachmentPath(id, category, filename)
	if err != nil {
		return nil, err
	}
	return c.files.Read(ctx, p)
}

func (c *notesClient) cleanupAttachments(ctx context.Context, id int64, category string) {
	dir := AttachmentDir(id, category)
	err := c.files.Delete(ctx, dir)
	switch {
	case err == nil:
		c.logger.Info("removed note attachments", "id", id, "path", dir)
	case errors.Is(err, ncerr.ErrNotFound):
		c.logger.Debug("no attachments to remove", "id", id, "path", dir)
	default:
		c.logger.Warn("failed to remove note attachments", "id", id, "path", dir, "error", err)
	}
}
