// Package carddav talks to Nextcloud's CardDAV endpoint.
package carddav

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/ncmcp/ncclient/internal/httpclient"
	"github.com/ncmcp/ncclient/internal/mutation"
	"github.com/ncmcp/ncclient/internal/xml"
	"github.com/ncmcp/ncclient/ncerr"
)

const vcardContentType = "text/vcard; charset=utf-8"

// Client defines the CardDAV operations.
type Client interface {
	ListAddressBooks(ctx context.Context) ([]AddressBook, error)
	CreateAddressBook(ctx context.Context, name, displayName string) error
	DeleteAddressBook(ctx context.Context, name string) error

	ListContacts(ctx context.Context, addressBook string) ([]*Contact, error)
	GetContact(ctx context.Context, addressBook, uid string) (*Contact, error)
	CreateContact(ctx context.Context, addressBook string, fields ContactFields) (*Contact, error)
	UpdateContact(ctx context.Context, addressBook, uid string, patch ContactPatch) (*Contact, error)
	DeleteContact(ctx context.Context, addressBook, uid, etag string) error
}

// AddressBook describes one address book collection.
type AddressBook struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Description string `json:"description,omitempty"`
	CTag        string `json:"ctag,omitempty"`
	Href        string `json:"href"`
}

type cardClient struct {
	httpClient httpclient.HttpClientWrapper
	root       string
	logger     *slog.Logger
}

// NewClient creates a CardDAV client for username's address books.
func NewClient(httpClient httpclient.HttpClientWrapper, username string, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &cardClient{
		httpClient: httpClient,
		root:       xml.EncodePath("/remote.php/dav/addressbooks/users", username),
		logger:     logger,
	}
}

func (c *cardClient) bookPath(name string) string {
	return c.root + xml.EncodePath(name) + "/"
}

func (c *cardClient) cardPath(book, file string) string {
	return c.root + xml.EncodePath(book, file)
}

func (c *cardClient) hrefRoot(escaped string) string {
	full := c.httpClient.BasePath() + escaped
	if p, err := url.PathUnescape(full); err == nil {
		return p
	}
	return full
}

func (c *cardClient) ListAddressBooks(ctx context.Context) ([]AddressBook, error) {
	body, err := xml.BuildPropfind(
		xml.PropResourceType,
		xml.PropDisplayName,
		xml.PropAddressbookDescription,
		xml.PropGetCTag,
	)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.DoPROPFIND(ctx, c.root+"/", 1, body)
	if err != nil {
		return nil, fmt.Errorf("failed to list address books: %w", err)
	}
	resources, err := xml.ParseMultistatus(resp.Body, c.hrefRoot(c.root))
	if err != nil {
		return nil, ncerr.Malformed("PROPFIND", c.root, err)
	}

	var books []AddressBook
	for _, r := range resources {
		if r.Path == "" || !isAddressBook(r.ResourceTypes) {
			continue
		}
		books = append(books, AddressBook{
			Name:        r.Path,
			DisplayName: r.DisplayName.OrElse(r.Path),
			Description: r.Text(xml.PropAddressbookDescription).OrEmpty(),
			CTag:        r.Text(xml.PropGetCTag).OrEmpty(),
			Href:        r.Href,
		})
	}
	c.logger.Debug("listed address books", "count", len(books))
	return books, nil
}

func isAddressBook(types []string) bool {
	for _, t := range types {
		if t == xml.TagAddressbook {
			return true
		}
	}
	return false
}

func (c *cardClient) CreateAddressBook(ctx context.Context, name, displayName string) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid address book name %q", name)
	}
	if displayName == "" {
		displayName = name
	}
	body, err := xml.BuildMkcol(displayName, xml.ResourceAddressbook)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.DoMKCOL(ctx, c.bookPath(name), body)
	if err != nil {
		return fmt.Errorf("failed to create address book %q: %w", name, err)
	}
	if resp.StatusCode == http.StatusMethodNotAllowed {
		return &ncerr.Error{
			Kind:     ncerr.KindConflict,
			Op:       "MKCOL",
			Resource: name,
			Status:   resp.StatusCode,
			Detail:   "address book already exists",
		}
	}
	c.logger.Info("created address book", "name", name)
	return nil
}

func (c *cardClient) DeleteAddressBook(ctx context.Context, name string) error {
	if err := c.httpClient.DoDELETE(ctx, c.bookPath(name), ""); err != nil {
		return fmt.Errorf("failed to delete address book %q: %w", name, err)
	}
	c.logger.Info("deleted address book", "name", name)
	return nil
}

// ListContacts fetches every card of an address book. Cards that do not
// decode are logged and skipped.
func (c *cardClient) ListContacts(ctx context.Context, addressBook string) ([]*Contact, error) {
	body, err := xml.BuildAddressbookQuery()
	if err != nil {
		return nil, err
	}
	bookPath := c.bookPath(addressBook)
	resp, err := c.httpClient.DoREPORT(ctx, bookPath, 1, body)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	resources, err := xml.ParseMultistatus(resp.Body, c.hrefRoot(bookPath))
	if err != nil {
		return nil, ncerr.Malformed("REPORT", bookPath, err)
	}

	var contacts []*Contact
	for _, r := range resources {
		data, ok := r.Text(xml.PropAddressData).Get()
		if !ok || r.IsCollection {
			continue
		}
		contact, err := Parse([]byte(data), r.Href)
		if err != nil {
			c.logger.Warn("skipping unparseable contact", "href", r.Href, "error", err)
			continue
		}
		contact.ETag = r.ETag.OrEmpty()
		contacts = append(contacts, contact)
	}
	c.logger.Debug("listed contacts", "address_book", addressBook, "count", len(contacts))
	return contacts, nil
}

// GetContact fetches {uid}.vcf, falling back to a scan of the address book
// for cards stored under another name.
func (c *cardClient) GetContact(ctx context.Context, addressBook, uid string) (*Contact, error) {
	p := c.cardPath(addressBook, uid+".vcf")
	resp, err := c.httpClient.DoGET(ctx, p, nil)
	if err == nil {
		contact, err := Parse(resp.Body, c.hrefRoot(p))
		if err != nil {
			return nil, err
		}
		contact.ETag = resp.ETag()
		if contact.ETag == "" {
			if contact.ETag, err = c.httpClient.FetchETag(ctx, p); err != nil {
				return nil, err
			}
		}
		return contact, nil
	}
	if !errors.Is(err, ncerr.ErrNotFound) {
		return nil, fmt.Errorf("failed to get contact %q: %w", uid, err)
	}

	contacts, err := c.ListContacts(ctx, addressBook)
	if err != nil {
		return nil, err
	}
	for _, contact := range contacts {
		if contact.UID == uid {
			return contact, nil
		}
	}
	return nil, ncerr.NotFound("GET", addressBook+"/"+uid)
}

func (c *cardClient) CreateContact(ctx context.Context, addressBook string, fields ContactFields) (*Contact, error) {
	contact, err := NewContact(fields)
	if err != nil {
		return nil, err
	}
	data, err := contact.Bytes()
	if err != nil {
		return nil, err
	}
	p := c.cardPath(addressBook, contact.UID+".vcf")
	etag, err := c.httpClient.DoPUT(ctx, p, httpclient.Precondition{IfNoneMatch: true}, vcardContentType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create contact: %w", err)
	}
	if etag == "" {
		if etag, err = c.httpClient.FetchETag(ctx, p); err != nil {
			return nil, err
		}
	}
	contact.Href = c.hrefRoot(p)
	contact.ETag = etag
	c.logger.Info("created contact", "address_book", addressBook, "uid", contact.UID, "etag", etag)
	return contact, nil
}

func (c *cardClient) UpdateContact(ctx context.Context, addressBook, uid string, patch ContactPatch) (*Contact, error) {
	var p string
	res, err := mutation.Apply(ctx, mutation.Ops[*Contact]{
		Resource: addressBook + "/" + uid,
		Read: func(ctx context.Context) (*Contact, string, error) {
			contact, err := c.GetContact(ctx, addressBook, uid)
			if err != nil {
				return nil, "", err
			}
			p = c.cardPath(addressBook, path.Base(contact.Href))
			return contact, contact.ETag, nil
		},
		Merge: func(contact *Contact) (*Contact, error) {
			return contact, patch.Apply(contact)
		},
		Write: func(ctx context.Context, contact *Contact, etag string) (string, error) {
			data, err := contact.Bytes()
			if err != nil {
				return "", err
			}
			newTag, err := c.httpClient.DoPUT(ctx, p, httpclient.Precondition{IfMatch: etag}, vcardContentType, data)
			if err != nil {
				return "", err
			}
			if newTag == "" {
				return c.httpClient.FetchETag(ctx, p)
			}
			return newTag, nil
		},
	})
	if err != nil {
		return nil, err
	}
	res.Value.ETag = res.Tag
	c.logger.Info("updated contact", "address_book", addressBook, "uid", uid, "etag", res.Tag)
	return res.Value, nil
}

// DeleteContact removes a contact; a non-empty etag makes it conditional.
func (c *cardClient) DeleteContact(ctx context.Context, addressBook, uid, etag string) error {
	contact, err := c.GetContact(ctx, addressBook, uid)
	if err != nil {
		return err
	}
	p := c.cardPath(addressBook, path.Base(contact.Href))
	if err := c.httpClient.DoDELETE(ctx, p, etag); err != nil {
		return fmt.Errorf("failed to delete contact %q: %w", uid, err)
	}
	c.logger.Info("deleted contact", "address_book", addressBook, "uid", uid)
	return nil
}
