package carddav

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/ncerr"
	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const booksRoot = "/nc/remote.php/dav/addressbooks/users/alice/"

const aliceCard = "BEGIN:VCARD\r\n" +
	"VERSION:3.0\r\n" +
	"UID:alice-1\r\n" +
	"FN:Alice Example\r\n" +
	"N:Example;Alice;;;\r\n" +
	"EMAIL;TYPE=HOME:alice@example.com\r\n" +
	"EMAIL;TYPE=WORK;PREF=1:alice@work.example\r\n" +
	"TEL;TYPE=CELL:+15550100\r\n" +
	"ORG:Example Corp\r\n" +
	"X-SOCIALPROFILE;TYPE=mastodon:https://social.example/@alice\r\n" +
	"END:VCARD\r\n"

func TestParse(t *testing.T) {
	c, err := Parse([]byte(aliceCard), booksRoot+"contacts/alice-1.vcf")
	require.NoError(t, err)

	assert.Equal(t, "alice-1", c.UID)
	assert.Equal(t, "Alice Example", c.FullName)
	assert.Equal(t, "Alice", c.GivenName)
	assert.Equal(t, "Example", c.FamilyName)
	assert.Equal(t, "Example Corp", c.Organization)
	assert.Equal(t, []ContactField{
		{Value: "alice@example.com", Type: "home"},
		{Value: "alice@work.example", Type: "work", Preferred: true},
	}, c.Emails)
	assert.Equal(t, "alice@work.example", c.PrimaryEmail())
	assert.Equal(t, "+15550100", c.PrimaryPhone())
}

func TestParseUIDFromHref(t *testing.T) {
	c, err := Parse([]byte("BEGIN:VCARD\r\nVERSION:3.0\r\nFN:Bob\r\nEND:VCARD\r\n"), booksRoot+"contacts/bob.vcf")
	require.NoError(t, err)
	assert.Equal(t, "bob", c.UID)

	_, err = Parse([]byte("NOT A VCARD"), "x.vcf")
	assert.ErrorIs(t, err, ncerr.ErrMalformed)
}

func TestContactPatchPreservesUnmodelledFields(t *testing.T) {
	c, err := Parse([]byte(aliceCard), "alice-1.vcf")
	require.NoError(t, err)

	err = ContactPatch{
		GivenName: mo.Some("Alicia"),
		Phones:    mo.Some([]ContactField{}),
		Note:      mo.Some("met at conference"),
	}.Apply(c)
	require.NoError(t, err)

	assert.Equal(t, "Alicia", c.GivenName)
	assert.Equal(t, "Example", c.FamilyName)
	assert.Empty(t, c.Phones)
	assert.Equal(t, "met at conference", c.Note)
	assert.Len(t, c.Emails, 2)

	data, err := c.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(data), "X-SOCIALPROFILE")
	assert.NotContains(t, string(data), "TEL")

	assert.Error(t, ContactPatch{FullName: mo.Some("")}.Apply(c))
}

func TestNewContact(t *testing.T) {
	c, err := NewContact(ContactFields{
		GivenName:  "Carol",
		FamilyName: "Jones",
		Emails:     []ContactField{{Value: "carol@example.com", Type: "home"}},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, c.UID)
	assert.Equal(t, "Carol Jones", c.FullName)
	assert.Equal(t, "carol@example.com", c.PrimaryEmail())

	data, err := c.Bytes()
	require.NoError(t, err)
	assert.Contains(t, string(data), "VERSION:3.0")

	_, err = NewContact(ContactFields{})
	assert.Error(t, err)
}

// fakeServer stores cards by request path.
type fakeServer struct {
	mu       sync.Mutex
	cards    map[string]string
	etags    map[string]string
	version  int
	requests []*http.Request
	bodies   []string
}

func newFakeServer() *fakeServer {
	return &fakeServer{cards: map[string]string{}, etags: map[string]string{}}
}

func (f *fakeServer) put(p, data string) {
	f.version++
	f.cards[p] = data
	f.etags[p] = `"e` + strconv.Itoa(f.version) + `"`
}

func (f *fakeServer) last() (*http.Request, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1], f.bodies[len(f.bodies)-1]
}

const booksListing = `<?xml version="1.0"?>
<d:multistatus xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav" xmlns:cs="http://calendarserver.org/ns/">
  <d:response><d:href>/nc/remote.php/dav/addressbooks/users/alice/</d:href>
    <d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>
  <d:response><d:href>/nc/remote.php/dav/addressbooks/users/alice/contacts/</d:href>
    <d:propstat><d:prop><d:resourcetype><d:collection/><card:addressbook/></d:resourcetype><d:displayname>Contacts</d:displayname><cs:getctag>7</cs:getctag></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat>
    <d:propstat><d:prop><card:addressbook-description/></d:prop><d:status>HTTP/1.1 404 Not Found</d:status></d:propstat></d:response>
  <d:response><d:href>/nc/remote.php/dav/addressbooks/users/alice/z-app-generated--contactsinteraction--recent/</d:href>
    <d:propstat><d:prop><d:resourcetype><d:collection/><card:addressbook/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>
  <d:response><d:href>/nc/remote.php/dav/addressbooks/users/alice/other/</d:href>
    <d:propstat><d:prop><d:resourcetype><d:collection/></d:resourcetype></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>
</d:multistatus>`

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, _ := io.ReadAll(r.Body)
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, string(body))

	p := r.URL.Path
	switch r.Method {
	case "PROPFIND":
		if p == booksRoot {
			w.WriteHeader(http.StatusMultiStatus)
			io.WriteString(w, booksListing)
			return
		}
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, `<d:multistatus xmlns:d="DAV:"><d:response><d:href>`+p+`</d:href><d:propstat><d:prop><d:getetag>`+f.etags[p]+`</d:getetag></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response></d:multistatus>`)
	case "REPORT":
		var b strings.Builder
		b.WriteString(`<d:multistatus xmlns:d="DAV:" xmlns:card="urn:ietf:params:xml:ns:carddav">`)
		for cp, data := range f.cards {
			if !strings.HasPrefix(cp, p) {
				continue
			}
			b.WriteString(`<d:response><d:href>` + cp + `</d:href><d:propstat><d:prop><d:getetag>` + f.etags[cp] +
				`</d:getetag><card:address-data><![CDATA[` + data + `]]></card:address-data></d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
		}
		b.WriteString(`</d:multistatus>`)
		w.WriteHeader(http.StatusMultiStatus)
		io.WriteString(w, b.String())
	case http.MethodGet:
		data, ok := f.cards[p]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("ETag", f.etags[p])
		io.WriteString(w, data)
	case http.MethodPut:
		_, exists := f.cards[p]
		if r.Header.Get("If-None-Match") == "*" && exists {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		if m := r.Header.Get("If-Match"); m != "" && m != f.etags[p] {
			w.WriteHeader(http.StatusPreconditionFailed)
			return
		}
		f.put(p, string(body))
		w.Header().Set("ETag", f.etags[p])
		w.WriteHeader(http.StatusNoContent)
	case http.MethodDelete:
		if _, ok := f.cards[p]; !ok && !strings.HasSuffix(p, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(f.cards, p)
		w.WriteHeader(http.StatusNoContent)
	case "MKCOL":
		if strings.HasSuffix(p, "/contacts/") {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}
}

func newTestClient(t *testing.T, h http.Handler) Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	base, err := url.Parse(server.URL + "/nc")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hc := &http.Client{Transport: httpclient.NewBasicAuthTransport("alice", "secret", nil, logger)}
	wrapper, err := httpclient.NewHttpClientWrapper(hc, *base, logger, httpclient.Options{})
	require.NoError(t, err)
	return NewClient(wrapper, "alice", logger)
}

func TestListAddressBooks(t *testing.T) {
	client := newTestClient(t, newFakeServer())
	books, err := client.ListAddressBooks(context.Background())
	require.NoError(t, err)
	require.Len(t, books, 2)
	assert.Equal(t, AddressBook{
		Name:        "contacts",
		DisplayName: "Contacts",
		CTag:        "7",
		Href:        booksRoot + "contacts/",
	}, books[0])
	assert.Equal(t, "z-app-generated--contactsinteraction--recent", books[1].DisplayName)
}

func TestCreateAddressBook(t *testing.T) {
	srv := newFakeServer()
	client := newTestClient(t, srv)

	require.NoError(t, client.CreateAddressBook(context.Background(), "team", "Team"))
	req, body := srv.last()
	assert.Equal(t, "MKCOL", req.Method)
	assert.Equal(t, booksRoot+"team/", req.URL.Path)
	assert.Contains(t, body, "addressbook")
	assert.Contains(t, body, "Team")

	err := client.CreateAddressBook(context.Background(), "contacts", "")
	assert.ErrorIs(t, err, ncerr.ErrConflict)
}

func TestListContactsSkipsBrokenCards(t *testing.T) {
	srv := newFakeServer()
	srv.put(booksRoot+"contacts/alice-1.vcf", aliceCard)
	srv.put(booksRoot+"contacts/broken.vcf", "NOT A VCARD")
	client := newTestClient(t, srv)

	contacts, err := client.ListContacts(context.Background(), "contacts")
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "alice-1", contacts[0].UID)
	assert.Equal(t, `"e1"`, contacts[0].ETag)
}

func TestCreateAndUpdateContact(t *testing.T) {
	srv := newFakeServer()
	client := newTestClient(t, srv)
	ctx := context.Background()

	created, err := client.CreateContact(ctx, "contacts", ContactFields{UID: "dave", FullName: "Dave"})
	require.NoError(t, err)
	assert.Equal(t, `"e1"`, created.ETag)
	req, _ := srv.last()
	assert.Equal(t, "*", req.Header.Get("If-None-Match"))
	assert.Equal(t, "text/vcard; charset=utf-8", req.Header.Get("Content-Type"))

	_, err = client.CreateContact(ctx, "contacts", ContactFields{UID: "dave", FullName: "Dave"})
	assert.ErrorIs(t, err, ncerr.ErrConflict)

	updated, err := client.UpdateContact(ctx, "contacts", "dave", ContactPatch{
		Emails: mo.Some([]ContactField{{Value: "dave@example.com"}}),
	})
	require.NoError(t, err)
	assert.Equal(t, `"e2"`, updated.ETag)
	assert.Equal(t, "dave@example.com", updated.PrimaryEmail())
	req, body := srv.last()
	assert.Equal(t, `"e1"`, req.Header.Get("If-Match"))
	assert.Contains(t, body, "FN:Dave")
}

func TestGetContactFallsBackToScan(t *testing.T) {
	srv := newFakeServer()
	srv.put(booksRoot+"contacts/Contact-0042.vcf", aliceCard)
	client := newTestClient(t, srv)

	c, err := client.GetContact(context.Background(), "contacts", "alice-1")
	require.NoError(t, err)
	assert.Equal(t, booksRoot+"contacts/Contact-0042.vcf", c.Href)

	require.NoError(t, client.DeleteContact(context.Background(), "contacts", "alice-1", ""))
	req, _ := srv.last()
	assert.Equal(t, booksRoot+"contacts/Contact-0042.vcf", req.URL.Path)
	assert.Empty(t, srv.cards)

	_, err = client.GetContact(context.Background(), "contacts", "alice-1")
	assert.ErrorIs(t, err, ncerr.ErrNotFound)
}
