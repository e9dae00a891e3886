package api

import (
	"context"
	"encoding/base64"

	"github.com/ncmcp/ncclient/nextcloud"
	"github.com/ncmcp/ncclient/notes"
	"github.com/ncmcp/ncclient/webdav"
)

func (s *Server) registerTools() {
	s.register("capabilities", bind(func(ctx context.Context, _ struct{}) (any, error) {
		return s.nc.Capabilities(ctx)
	}))
	s.register("delete", bind(func(ctx context.Context, a struct {
		nextcloud.Handle
		ETag string `json:"etag"`
	}) (any, error) {
		if err := a.Handle.Validate(); err != nil {
			return nil, &argumentError{err: err}
		}
		if err := s.nc.Delete(ctx, a.Handle, a.ETag); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": a.Handle.String()}, nil
	}))

	s.registerNoteTools()
	s.registerFileTools()
	s.registerCalendarTools()
	s.registerContactTools()
	s.registerTableTools()
	s.registerDeckTools()
}

type noteID struct {
	ID int64 `json:"id"`
}

func (s *Server) registerNoteTools() {
	s.register("notes_list", bind(func(ctx context.Context, _ struct{}) (any, error) {
		return s.nc.Notes.List(ctx)
	}))
	s.register("notes_get", bind(func(ctx context.Context, a noteID) (any, error) {
		return s.nc.Notes.Get(ctx, a.ID)
	}))
	s.register("notes_create", bind(func(ctx context.Context, a struct {
		Title    string `json:"title"`
		Content  string `json:"content"`
		Category string `json:"category"`
	}) (any, error) {
		if a.Title == "" {
			return nil, invalidArgs("title is required")
		}
		return s.nc.Notes.Create(ctx, a.Title, a.Content, a.Category)
	}))
	s.register("notes_update", bind(func(ctx context.Context, a struct {
		ID   int64  `json:"id"`
		ETag string `json:"etag"`
		notes.Patch
	}) (any, error) {
		return s.nc.Notes.Update(ctx, a.ID, a.ETag, a.Patch)
	}))
	s.register("notes_append", bind(func(ctx context.Context, a struct {
		ID      int64  `json:"id"`
		Content string `json:"content"`
	}) (any, error) {
		return s.nc.Notes.Append(ctx, a.ID, a.Content)
	}))
	s.register("notes_delete", bind(func(ctx context.Context, a noteID) (any, error) {
		if err := s.nc.Notes.Delete(ctx, a.ID); err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": a.ID}, nil
	}))
	s.register("notes_search", bind(func(ctx context.Context, a struct {
		Query string `json:"query"`
	}) (any, error) {
		return s.nc.SearchNotes(ctx, a.Query)
	}))
	s.register("notes_settings", bind(func(ctx context.Context, _ struct{}) (any, error) {
		return s.nc.Notes.Settings(ctx)
	}))
	s.register("notes_attachment_get", bind(func(ctx context.Context, a struct {
		ID       int64  `json:"id"`
		Category string `json:"category"`
		Filename string `json:"filename"`
	}) (any, error) {
		return s.nc.Notes.GetAttachment(ctx, a.ID, a.Category, a.Filename)
	}))
}

type filePath struct {
	Path string `json:"path"`
}

type fileTransfer struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	Overwrite   bool   `json:"overwrite"`
}

func (s *Server) registerFileTools() {
	s.register("files_list", bind(func(ctx context.Context, a filePath) (any, error) {
		return s.nc.Files.List(ctx, a.Path)
	}))
	s.register("files_stat", bind(func(ctx context.Context, a filePath) (any, error) {
		return s.nc.Files.Stat(ctx, a.Path)
	}))
	s.register("files_read", bind(func(ctx context.Context, a filePath) (any, error) {
		return s.nc.Files.Read(ctx, a.Path)
	}))
	s.register("files_write", bind(func(ctx context.Context, a struct {
		Path        string `json:"path"`
		Content     string `json:"content"`
		ContentType string `json:"content_type"`
		Encoding    string `json:"encoding"`
		IfMatch     string `json:"if_match"`
		CreateOnly  bool   `json:"create_only"`
	}) (any, error) {
		content := []byte(a.Content)
		switch a.Encoding {
		case webdav.EncodingText:
		case webdav.EncodingBase64:
			decoded, err := base64.StdEncoding.DecodeString(a.Content)
			if err != nil {
				return nil, &argumentError{err: err}
			}
			content = decoded
		default:
			return nil, invalidArgs("unknown encoding %q", a.Encoding)
		}
		etag, err := s.nc.Files.WriteWithOptions(ctx, a.Path, content, webdav.WriteOptions{
			ContentType: a.ContentType,
			IfMatch:     a.IfMatch,
			CreateOnly:  a.CreateOnly,
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"path": webdav.Clean(a.Path), "etag": etag}, nil
	}))
	s.register("files_mkdir", bind(func(ctx context.Context, a struct {
		Path      string `json:"path"`
		Recursive bool   `json:"recursive"`
	}) (any, error) {
		created, err := s.nc.Files.Mkdir(ctx, a.Path, a.Recursive)
		if err != nil {
			return nil, err
		}
		return map[string]any{"path": webdav.Clean(a.Path), "created": created}, nil
	}))
	s.register("files_move", bind(func(ctx context.Context, a fileTransfer) (any, error) {
		if err := s.nc.Files.Move(ctx, a.Source, a.Destination, a.Overwrite); err != nil {
			return nil, err
		}
		return map[string]string{"path": webdav.Clean(a.Destination)}, nil
	}))
	s.register("files_copy", bind(func(ctx context.Context, a fileTransfer) (any, error) {
		if err := s.nc.Files.Copy(ctx, a.Source, a.Destination, a.Overwrite); err != nil {
			return nil, err
		}
		return map[string]string{"path": webdav.Clean(a.Destination)}, nil
	}))
	s.register("files_delete", bind(func(ctx context.Context, a filePath) (any, error) {
		if err := s.nc.Files.Delete(ctx, a.Path); err != nil {
			return nil, err
		}
		return map[string]string{"deleted": webdav.Clean(a.Path)}, nil
	}))
}
