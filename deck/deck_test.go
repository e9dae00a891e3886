package deck

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/ncerr"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	method  string
	path    string
	query   string
	ifMatch string
	body    map[string]any
}

// deckServer serves a single card at /boards/1/stacks/2/cards/3 and records
// every request.
type deckServer struct {
	mu       sync.Mutex
	calls    []call
	card     string
	cardETag string
	stale    bool
}

func (s *deckServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := call{method: r.Method, path: strings.TrimPrefix(r.URL.Path, apiPath), query: r.URL.RawQuery, ifMatch: r.Header.Get("If-Match")}
	json.NewDecoder(r.Body).Decode(&c.body)
	s.calls = append(s.calls, c)
	w.Header().Set("Content-Type", "application/json")

	if r.Header.Get("OCS-APIRequest") != "true" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	switch {
	case c.path == "/boards" && r.Method == http.MethodGet:
		io.WriteString(w, `[{"id":1,"title":"Work","color":"0082c9","archived":false,"deletedAt":0,
			"owner":{"primaryKey":"alice","uid":"alice","displayname":"Alice"},"settings":[]}]`)
	case c.path == "/boards" && r.Method == http.MethodPost:
		io.WriteString(w, `{"id":5,"title":"`+c.body["title"].(string)+`","color":"`+c.body["color"].(string)+`","owner":{"uid":"alice"}}`)
	case c.path == "/boards/1" && r.Method == http.MethodPut:
		io.WriteString(w, `{"id":1,"title":"Renamed","color":"0082c9","archived":true,"owner":{"uid":"alice"}}`)
	case c.path == "/boards/1/stacks" && r.Method == http.MethodGet:
		io.WriteString(w, `[{"id":2,"title":"Todo","boardId":1,"order":0,"deletedAt":0,
			"cards":[{"id":3,"title":"Write report","stackId":2,"type":"plain","order":1,"owner":"alice"}]}]`)
	case c.path == "/boards/1/stacks" && r.Method == http.MethodPost:
		io.WriteString(w, `{"id":4,"title":"Done","boardId":1,"order":1}`)
	case c.path == "/boards/1/stacks/2/cards" && r.Method == http.MethodPost:
		io.WriteString(w, `{"id":9,"title":"New","stackId":2,"type":"plain","order":999,"owner":"alice"}`)
	case c.path == "/boards/1/stacks/2/cards/3":
		s.serveCard(w, r, c)
	case r.Method == http.MethodDelete:
		io.WriteString(w, `{}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (s *deckServer) serveCard(w http.ResponseWriter, r *http.Request, c call) {
	switch r.Method {
	case http.MethodGet:
		if s.cardETag != "" {
			w.Header().Set("ETag", `"`+s.cardETag+`"`)
		}
		io.WriteString(w, s.card)
	case http.MethodPut:
		if s.stale {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		title, _ := c.body["title"].(string)
		io.WriteString(w, `{"id":3,"title":"`+title+`","stackId":2,"type":"`+c.body["type"].(string)+`","owner":"`+c.body["owner"].(string)+`","ETag":"next"}`)
	}
}

const cardJSON = `{"id":3,"title":"Write report","stackId":2,"type":"plain","order":1,
	"owner":{"primaryKey":"alice","uid":"alice","displayname":"Alice"},"description":"draft"}`

func newTestClient(t *testing.T, srv *deckServer) Client {
	t.Helper()
	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)

	base, err := url.Parse(server.URL)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hc := &http.Client{Transport: httpclient.NewBasicAuthTransport("alice", "secret", nil, logger)}
	wrapper, err := httpclient.NewHttpClientWrapper(hc, *base, logger, httpclient.Options{})
	require.NoError(t, err)
	return NewClient(wrapper, logger)
}

func TestOwnerUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"string", `"bob"`, "bob"},
		{"object", `{"primaryKey":"pk","uid":"bob","displayname":"Bob"}`, "bob"},
		{"primary key only", `{"primaryKey":"pk"}`, "pk"},
		{"null", `null`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var o Owner
			require.NoError(t, json.Unmarshal([]byte(tt.in), &o))
			assert.Equal(t, tt.want, o.ID())
		})
	}

	out, err := json.Marshal(Owner{User{UID: "bob"}})
	require.NoError(t, err)
	assert.JSONEq(t, `"bob"`, string(out))
}

func TestBoards(t *testing.T) {
	srv := &deckServer{}
	client := newTestClient(t, srv)
	ctx := context.Background()

	boards, err := client.ListBoards(ctx, true)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, "alice", boards[0].Owner.UID)
	assert.Equal(t, "details=true", srv.calls[0].query)

	b, err := client.CreateBoard(ctx, "Project", "ff0000")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.ID)
	assert.Equal(t, "ff0000", b.Color)

	b, err = client.UpdateBoard(ctx, 1, BoardPatch{Title: mo.Some("Renamed"), Archived: mo.Some(true)})
	require.NoError(t, err)
	assert.True(t, b.Archived)
	assert.Equal(t, map[string]any{"title": "Renamed", "archived": true}, srv.calls[2].body)

	require.NoError(t, client.DeleteBoard(ctx, 1))
	assert.Equal(t, http.MethodDelete, srv.calls[3].method)
}

func TestStacks(t *testing.T) {
	srv := &deckServer{}
	client := newTestClient(t, srv)
	ctx := context.Background()

	stacks, err := client.ListStacks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, stacks, 1)
	require.Len(t, stacks[0].Cards, 1)
	assert.Equal(t, "alice", stacks[0].Cards[0].Owner.ID())

	s, err := client.CreateStack(ctx, 1, "Done", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), s.ID)
	assert.Equal(t, map[string]any{"title": "Done", "order": float64(1)}, srv.calls[1].body)

	require.NoError(t, client.DeleteStack(ctx, 1, 4))
	assert.Equal(t, "/boards/1/stacks/4", srv.calls[2].path)
}

func TestCreateCardDefaults(t *testing.T) {
	srv := &deckServer{}
	client := newTestClient(t, srv)

	card, err := client.CreateCard(context.Background(), 1, 2, CardSpec{Title: "New"})
	require.NoError(t, err)
	assert.Equal(t, int64(9), card.ID)
	assert.Equal(t, map[string]any{"title": "New", "type": "plain", "order": float64(DefaultCardOrder)}, srv.calls[0].body)

	_, err = client.CreateCard(context.Background(), 1, 2, CardSpec{})
	assert.Error(t, err)
}

func TestUpdateCardCarriesRequiredFields(t *testing.T) {
	srv := &deckServer{card: cardJSON}
	client := newTestClient(t, srv)

	card, err := client.UpdateCard(context.Background(), 1, 2, 3, CardPatch{Title: mo.Some("Final report")})
	require.NoError(t, err)
	assert.Equal(t, "Final report", card.Title)

	require.Len(t, srv.calls, 2)
	put := srv.calls[1]
	assert.Equal(t, http.MethodPut, put.method)
	assert.Empty(t, put.ifMatch)
	assert.Equal(t, map[string]any{"title": "Final report", "type": "plain", "owner": "alice"}, put.body)
}

func TestUpdateCardConditional(t *testing.T) {
	srv := &deckServer{card: cardJSON, cardETag: "abc"}
	client := newTestClient(t, srv)

	card, err := client.UpdateCard(context.Background(), 1, 2, 3, CardPatch{Owner: mo.Some("bob")})
	require.NoError(t, err)
	assert.Equal(t, "bob", card.Owner.ID())
	assert.Equal(t, "next", card.ETag)
	assert.Equal(t, `"abc"`, srv.calls[1].ifMatch)

	srv.stale = true
	_, err = client.UpdateCard(context.Background(), 1, 2, 3, CardPatch{Title: mo.Some("x")})
	assert.ErrorIs(t, err, ncerr.ErrConflict)
}

func TestGetCardNotFound(t *testing.T) {
	client := newTestClient(t, &deckServer{})
	_, err := client.GetCard(context.Background(), 1, 2, 99)
	assert.ErrorIs(t, err, ncerr.ErrNotFound)
}
