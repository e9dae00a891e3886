// Package deck is a client for the Nextcloud Deck REST API.
package deck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/samber/mo"
)

const apiPath = "/index.php/apps/deck/api/v1.0"

// DefaultCardOrder places new cards at the end of a stack.
const DefaultCardOrder = 999

type Client interface {
	ListBoards(ctx context.Context, details bool) ([]Board, error)
	GetBoard(ctx context.Context, boardID int64) (*Board, error)
	CreateBoard(ctx context.Context, title, color string) (*Board, error)
	UpdateBoard(ctx context.Context, boardID int64, patch BoardPatch) (*Board, error)
	DeleteBoard(ctx context.Context, boardID int64) error

	ListStacks(ctx context.Context, boardID int64) ([]Stack, error)
	CreateStack(ctx context.Context, boardID int64, title string, order int) (*Stack, error)
	DeleteStack(ctx context.Context, boardID, stackID int64) error

	GetCard(ctx context.Context, boardID, stackID, cardID int64) (*Card, error)
	CreateCard(ctx context.Context, boardID, stackID int64, spec CardSpec) (*Card, error)
	UpdateCard(ctx context.Context, boardID, stackID, cardID int64, patch CardPatch) (*Card, error)
	DeleteCard(ctx context.Context, boardID, stackID, cardID int64) error
}

// BoardPatch holds the board fields to change; absent fields are not sent.
type BoardPatch struct {
	Title    mo.Option[string] `json:"title"`
	Color    mo.Option[string] `json:"color"`
	Archived mo.Option[bool]   `json:"archived"`
}

func (p BoardPatch) body() map[string]any {
	body := map[string]any{}
	if v, ok := p.Title.Get(); ok {
		body["title"] = v
	}
	if v, ok := p.Color.Get(); ok {
		body["color"] = v
	}
	if v, ok := p.Archived.Get(); ok {
		body["archived"] = v
	}
	return body
}

// CardSpec describes a new card. Type defaults to "plain" and Order to
// DefaultCardOrder.
type CardSpec struct {
	Title       string         `json:"title"`
	Type        string         `json:"type,omitempty"`
	Order       mo.Option[int] `json:"order"`
	Description string         `json:"description,omitempty"`
	DueDate     string         `json:"duedate,omitempty"`
}

// CardPatch holds the card fields to change. Type and Owner are required by
// the update endpoint and are carried over from the current card when absent.
type CardPatch struct {
	Title       mo.Option[string] `json:"title"`
	Description mo.Option[string] `json:"description"`
	Type        mo.Option[string] `json:"type"`
	Owner       mo.Option[string] `json:"owner"`
	Order       mo.Option[int]    `json:"order"`
	DueDate     mo.Option[string] `json:"duedate"`
	Archived    mo.Option[bool]   `json:"archived"`
	Done        mo.Option[string] `json:"done"`
}

type deckClient struct {
	httpClient httpclient.HttpClientWrapper
	logger     *slog.Logger
}

func NewClient(httpClient httpclient.HttpClientWrapper, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &deckClient{httpClient: httpClient, logger: logger}
}

func boardPath(boardID int64) string {
	return apiPath + "/boards/" + strconv.FormatInt(boardID, 10)
}

func stackPath(boardID, stackID int64) string {
	return boardPath(boardID) + "/stacks/" + strconv.FormatInt(stackID, 10)
}

func cardPath(boardID, stackID, cardID int64) string {
	return stackPath(boardID, stackID) + "/cards/" + strconv.FormatInt(cardID, 10)
}

func (c *deckClient) ListBoards(ctx context.Context, details bool) ([]Board, error) {
	p := apiPath + "/boards"
	if details {
		p += "?details=true"
	}
	var boards []Board
	if _, err := c.httpClient.DoJSON(ctx, http.MethodGet, p, nil, nil, &boards); err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	return boards, nil
}

func (c *deckClient) GetBoard(ctx context.Context, boardID int64) (*Board, error) {
	var b Board
	resp, err := c.httpClient.DoJSON(ctx, http.MethodGet, boardPath(boardID), nil, nil, &b)
	if err != nil {
		return nil, fmt.Errorf("failed to get board %d: %w", boardID, err)
	}
	if b.ETag == "" {
		b.ETag = resp.ETag()
	}
	return &b, nil
}

func (c *deckClient) CreateBoard(ctx context.Context, title, color string) (*Board, error) {
	var b Board
	body := map[string]any{"title": title, "color": color}
	if _, err := c.httpClient.DoJSON(ctx, http.MethodPost, apiPath+"/boards", nil, body, &b); err != nil {
		return nil, fmt.Errorf("failed to create board %q: %w", title, err)
	}
	c.logger.Info("created board", "board", b.ID, "title", title)
	return &b, nil
}

func (c *deckClient) UpdateBoard(ctx context.Context, boardID int64, patch BoardPatch) (*Board, error) {
	var b Board
	if _, err := c.httpClient.DoJSON(ctx, http.MethodPut, boardPath(boardID), nil, patch.body(), &b); err != nil {
		return nil, fmt.Errorf("failed to update board %d: %w", boardID, err)
	}
	c.logger.Info("updated board", "board", boardID)
	return &b, nil
}

func (c *deckClient) DeleteBoard(ctx context.Context, boardID int64) error {
	if _, err := c.httpClient.DoJSON(ctx, http.MethodDelete, boardPath(boardID), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete board %d: %w", boardID, err)
	}
	c.logger.Info("deleted board", "board", boardID)
	return nil
}

func (c *deckClient) ListStacks(ctx context.Context, boardID int64) ([]Stack, error) {
	var stacks []Stack
	if _, err := c.httpClient.DoJSON(ctx, http.MethodGet, boardPath(boardID)+"/stacks", nil, nil, &stacks); err != nil {
		return nil, fmt.Errorf("failed to list stacks of board %d: %w", boardID, err)
	}
	return stacks, nil
}

func (c *deckClient) CreateStack(ctx context.Context, boardID int64, title string, order int) (*Stack, error) {
	var s Stack
	body := map[string]any{"title": title, "order": order}
	if _, err := c.httpClient.DoJSON(ctx, http.MethodPost, boardPath(boardID)+"/stacks", nil, body, &s); err != nil {
		return nil, fmt.Errorf("failed to create stack %q: %w", title, err)
	}
	c.logger.Info("created stack", "board", boardID, "stack", s.ID)
	return &s, nil
}

func (c *deckClient) DeleteStack(ctx context.Context, boardID, stackID int64) error {
	if _, err := c.httpClient.DoJSON(ctx, http.MethodDelete, stackPath(boardID, stackID), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete stack %d: %w", stackID, err)
	}
	c.logger.Info("deleted stack", "board", boardID, "stack", stackID)
	return nil
}
