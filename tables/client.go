// Package tables is a client for the Nextcloud Tables app.
package tables

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ncmcp/ncclient/internal/httpclient"
)

const (
	ocsPath = "/ocs/v2.php/apps/tables/api/2"
	apiPath = "/index.php/apps/tables/api/1"
)

// Client defines the Tables operations.
type Client interface {
	ListTables(ctx context.Context) ([]Table, error)
	Schema(ctx context.Context, tableID int64) (*Schema, error)
	Rows(ctx context.Context, tableID int64, limit, offset int) ([]Row, error)
	CreateRow(ctx context.Context, tableID int64, data map[int64]any) (*Row, error)
	UpdateRow(ctx context.Context, rowID int64, data map[int64]any) (*Row, error)
	DeleteRow(ctx context.Context, rowID int64) error
}

// Table is a table the user can access.
type Table struct {
	ID               int64  `json:"id"`
	Title            string `json:"title"`
	Emoji            string `json:"emoji,omitempty"`
	Description      string `json:"description,omitempty"`
	Ownership        string `json:"ownership"`
	OwnerDisplayName string `json:"ownerDisplayName"`
	CreatedBy        string `json:"createdBy,omitempty"`
	CreatedAt        string `json:"createdAt,omitempty"`
	LastEditBy       string `json:"lastEditBy,omitempty"`
	LastEditAt       string `json:"lastEditAt,omitempty"`
	RowsCount        int    `json:"rowsCount,omitempty"`
}

// Column is a column definition. Type-specific defaults and limits are
// kept as the server sends them.
type Column struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	Subtype     string `json:"subtype,omitempty"`
	Mandatory   bool   `json:"mandatory"`
	Description string `json:"description,omitempty"`

	TextDefault      string   `json:"textDefault,omitempty"`
	TextMaxLength    *int     `json:"textMaxLength,omitempty"`
	NumberDefault    *float64 `json:"numberDefault,omitempty"`
	NumberMin        *float64 `json:"numberMin,omitempty"`
	NumberMax        *float64 `json:"numberMax,omitempty"`
	NumberDecimals   *int     `json:"numberDecimals,omitempty"`
	SelectionOptions any      `json:"selectionOptions,omitempty"`
	SelectionDefault any      `json:"selectionDefault,omitempty"`
}

// View is a saved view of a table.
type View struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Emoji       string  `json:"emoji,omitempty"`
	Description string  `json:"description,omitempty"`
	Columns     []int64 `json:"columns,omitempty"`
}

// Schema describes a table's columns and views.
type Schema struct {
	Title   string   `json:"title"`
	Emoji   string   `json:"emoji,omitempty"`
	Columns []Column `json:"columns"`
	Views   []View   `json:"views"`
}

// Cell is one column value of a row.
type Cell struct {
	ColumnID int64 `json:"columnId"`
	Value    any   `json:"value"`
}

// Row as returned by the API, cells keyed by column id.
type Row struct {
	ID         int64  `json:"id"`
	TableID    int64  `json:"tableId"`
	CreatedBy  string `json:"createdBy"`
	CreatedAt  string `json:"createdAt"`
	LastEditBy string `json:"lastEditBy"`
	LastEditAt string `json:"lastEditAt"`
	Data       []Cell `json:"data"`
}

type tablesClient struct {
	httpClient httpclient.HttpClientWrapper
	logger     *slog.Logger
}

// NewClient creates a Tables client.
func NewClient(httpClient httpclient.HttpClientWrapper, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &tablesClient{httpClient: httpClient, logger: logger}
}

func id(n int64) string {
	return strconv.FormatInt(n, 10)
}

func (c *tablesClient) ListTables(ctx context.Context) ([]Table, error) {
	var tables []Table
	if err := httpclient.DoOCS(ctx, c.httpClient, http.MethodGet, ocsPath+"/tables", nil, &tables); err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	c.logger.Debug("listed tables", "count", len(tables))
	return tables, nil
}

func (c *tablesClient) Schema(ctx context.Context, tableID int64) (*Schema, error) {
	var s Schema
	if _, err := c.httpClient.DoJSON(ctx, http.MethodGet, apiPath+"/tables/"+id(tableID)+"/scheme", nil, nil, &s); err != nil {
		return nil, fmt.Errorf("failed to get schema of table %d: %w", tableID, err)
	}
	return &s, nil
}

// Rows reads rows of a table; limit and offset are sent only when positive.
func (c *tablesClient) Rows(ctx context.Context, tableID int64, limit, offset int) ([]Row, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	p := apiPath + "/tables/" + id(tableID) + "/rows"
	if len(q) > 0 {
		p += "?" + q.Encode()
	}
	var rows []Row
	if _, err := c.httpClient.DoJSON(ctx, http.MethodGet, p, nil, nil, &rows); err != nil {
		return nil, fmt.Errorf("failed to read rows of table %d: %w", tableID, err)
	}
	return rows, nil
}

func (c *tablesClient) CreateRow(ctx context.Context, tableID int64, data map[int64]any) (*Row, error) {
	var row Row
	body := map[string]any{"data": data}
	if err := httpclient.DoOCS(ctx, c.httpClient, http.MethodPost, ocsPath+"/tables/"+id(tableID)+"/rows", body, &row); err != nil {
		return nil, fmt.Errorf("failed to create row in table %d: %w", tableID, err)
	}
	c.logger.Info("created row", "table", tableID, "row", row.ID)
	return &row, nil
}

func (c *tablesClient) UpdateRow(ctx context.Context, rowID int64, data map[int64]any) (*Row, error) {
	var row Row
	body := map[string]any{"data": data}
	if _, err := c.httpClient.DoJSON(ctx, http.MethodPut, apiPath+"/rows/"+id(rowID), nil, body, &row); err != nil {
		return nil, fmt.Errorf("failed to update row %d: %w", rowID, err)
	}
	c.logger.Info("updated row", "row", rowID)
	return &row, nil
}

func (c *tablesClient) DeleteRow(ctx context.Context, rowID int64) error {
	if _, err := c.httpClient.DoJSON(ctx, http.MethodDelete, apiPath+"/rows/"+id(rowID), nil, nil, nil); err != nil {
		return fmt.Errorf("failed to delete row %d: %w", rowID, err)
	}
	c.logger.Info("deleted row", "row", rowID)
	return nil
}
