package carddav

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/emersion/go-vcard"
	"github.com/google/uuid"
	"github.com/ncmcp/ncclient/ncerr"
	"github.com/samber/mo"
)

// Contact is the typed view of one vCard. Card keeps every field, including
// the ones the view does not model, so updates round-trip them.
type Contact struct {
	UID          string         `json:"uid"`
	Href         string         `json:"href"`
	ETag         string         `json:"etag"`
	FullName     string         `json:"full_name"`
	GivenName    string         `json:"given_name,omitempty"`
	FamilyName   string         `json:"family_name,omitempty"`
	Nickname     string         `json:"nickname,omitempty"`
	Birthday     string         `json:"birthday,omitempty"`
	Organization string         `json:"organization,omitempty"`
	Title        string         `json:"title,omitempty"`
	Note         string         `json:"note,omitempty"`
	Emails       []ContactField `json:"emails,omitempty"`
	Phones       []ContactField `json:"phones,omitempty"`
	URLs         []ContactField `json:"urls,omitempty"`
	Categories   []string       `json:"categories,omitempty"`

	Card vcard.Card `json:"-"`
}

// ContactField is a typed value such as an email address or phone number.
type ContactField struct {
	Value     string `json:"value"`
	Type      string `json:"type,omitempty"`
	Preferred bool   `json:"preferred,omitempty"`
}

// PrimaryEmail returns the preferred email, or the first one.
func (c *Contact) PrimaryEmail() string {
	return primary(c.Emails)
}

// PrimaryPhone returns the preferred phone number, or the first one.
func (c *Contact) PrimaryPhone() string {
	return primary(c.Phones)
}

func primary(fields []ContactField) string {
	for _, f := range fields {
		if f.Preferred {
			return f.Value
		}
	}
	if len(fields) > 0 {
		return fields[0].Value
	}
	return ""
}

// Parse decodes a vCard. A card without UID takes its id from the file name
// in href.
func Parse(data []byte, href string) (*Contact, error) {
	card, err := vcard.NewDecoder(bytes.NewReader(data)).Decode()
	if err != nil {
		return nil, ncerr.Malformed("parse", href, fmt.Errorf("failed to decode vcard: %w", err))
	}
	c := fromCard(card)
	c.Href = href
	if c.UID == "" {
		c.UID = strings.TrimSuffix(path.Base(href), ".vcf")
	}
	if c.UID == "" || c.UID == "." || c.UID == "/" {
		return nil, ncerr.Malformed("parse", href, errors.New("contact has no UID"))
	}
	return c, nil
}

func fromCard(card vcard.Card) *Contact {
	c := &Contact{
		UID:          card.Value(vcard.FieldUID),
		FullName:     card.PreferredValue(vcard.FieldFormattedName),
		Nickname:     card.Value(vcard.FieldNickname),
		Birthday:     card.Value(vcard.FieldBirthday),
		Organization: strings.TrimRight(card.Value(vcard.FieldOrganization), ";"),
		Title:        card.Value(vcard.FieldTitle),
		Note:         card.Value(vcard.FieldNote),
		Emails:       typedFields(card[vcard.FieldEmail]),
		Phones:       typedFields(card[vcard.FieldTelephone]),
		URLs:         typedFields(card[vcard.FieldURL]),
		Categories:   card.Categories(),
		Card:         card,
	}
	if n := card.Name(); n != nil {
		c.GivenName = n.GivenName
		c.FamilyName = n.FamilyName
	}
	return c
}

func typedFields(fields []*vcard.Field) []ContactField {
	var out []ContactField
	for _, f := range fields {
		cf := ContactField{Value: f.Value}
		for _, t := range f.Params[vcard.ParamType] {
			for _, part := range strings.Split(t, ",") {
				if strings.EqualFold(part, "pref") {
					cf.Preferred = true
				} else if cf.Type == "" && !strings.EqualFold(part, "internet") {
					cf.Type = strings.ToLower(part)
				}
			}
		}
		if len(f.Params[vcard.ParamPreferred]) > 0 {
			cf.Preferred = true
		}
		out = append(out, cf)
	}
	return out
}

func vcardFields(values []ContactField) []*vcard.Field {
	out := make([]*vcard.Field, 0, len(values))
	for _, v := range values {
		f := &vcard.Field{Value: v.Value, Params: vcard.Params{}}
		if v.Type != "" {
			f.Params[vcard.ParamType] = []string{strings.ToUpper(v.Type)}
		}
		if v.Preferred {
			f.Params[vcard.ParamPreferred] = []string{"1"}
		}
		out = append(out, f)
	}
	return out
}

// Bytes encodes the card, adding VERSION when it is missing.
func (c *Contact) Bytes() ([]byte, error) {
	if c.Card.Value(vcard.FieldVersion) == "" {
		c.Card.SetValue(vcard.FieldVersion, "3.0")
	}
	var b bytes.Buffer
	if err := vcard.NewEncoder(&b).Encode(c.Card); err != nil {
		return nil, fmt.Errorf("failed to encode vcard: %w", err)
	}
	return b.Bytes(), nil
}

// ContactFields are the caller-supplied fields of a new contact.
type ContactFields struct {
	// UID is generated when empty.
	UID          string         `json:"uid,omitempty"`
	FullName     string         `json:"full_name"`
	GivenName    string         `json:"given_name,omitempty"`
	FamilyName   string         `json:"family_name,omitempty"`
	Nickname     string         `json:"nickname,omitempty"`
	Birthday     string         `json:"birthday,omitempty"`
	Organization string         `json:"organization,omitempty"`
	Title        string         `json:"title,omitempty"`
	Note         string         `json:"note,omitempty"`
	Emails       []ContactField `json:"emails,omitempty"`
	Phones       []ContactField `json:"phones,omitempty"`
	URLs         []ContactField `json:"urls,omitempty"`
	Categories   []string       `json:"categories,omitempty"`
}

// NewContact builds a vCard 3.0 contact from fields.
func NewContact(f ContactFields) (*Contact, error) {
	if f.FullName == "" && f.GivenName == "" && f.FamilyName == "" {
		return nil, errors.New("contact needs a name")
	}
	uid := f.UID
	if uid == "" {
		uid = uuid.New().String()
	}
	fn := f.FullName
	if fn == "" {
		fn = strings.TrimSpace(f.GivenName + " " + f.FamilyName)
	}

	card := vcard.Card{}
	card.SetValue(vcard.FieldVersion, "3.0")
	card.SetValue(vcard.FieldUID, uid)
	patch := ContactPatch{
		FullName:     mo.Some(fn),
		Nickname:     optional(f.Nickname),
		Birthday:     optional(f.Birthday),
		Organization: optional(f.Organization),
		Title:        optional(f.Title),
		Note:         optional(f.Note),
	}
	if f.GivenName != "" || f.FamilyName != "" {
		patch.GivenName = mo.Some(f.GivenName)
		patch.FamilyName = mo.Some(f.FamilyName)
	}
	if len(f.Emails) > 0 {
		patch.Emails = mo.Some(f.Emails)
	}
	if len(f.Phones) > 0 {
		patch.Phones = mo.Some(f.Phones)
	}
	if len(f.URLs) > 0 {
		patch.URLs = mo.Some(f.URLs)
	}
	if len(f.Categories) > 0 {
		patch.Categories = mo.Some(f.Categories)
	}
	patch.apply(card)
	return fromCard(card), nil
}

func optional(v string) mo.Option[string] {
	if v == "" {
		return mo.None[string]()
	}
	return mo.Some(v)
}

// ContactPatch overlays present fields on an existing card. An empty string
// or list removes the field.
type ContactPatch struct {
	FullName     mo.Option[string]         `json:"full_name"`
	GivenName    mo.Option[string]         `json:"given_name"`
	FamilyName   mo.Option[string]         `json:"family_name"`
	Nickname     mo.Option[string]         `json:"nickname"`
	Birthday     mo.Option[string]         `json:"birthday"`
	Organization mo.Option[string]         `json:"organization"`
	Title        mo.Option[string]         `json:"title"`
	Note         mo.Option[string]         `json:"note"`
	Emails       mo.Option[[]ContactField] `json:"emails"`
	Phones       mo.Option[[]ContactField] `json:"phones"`
	URLs         mo.Option[[]ContactField] `json:"urls"`
	Categories   mo.Option[[]string]       `json:"categories"`
}

// Apply overlays the patch on c and refreshes the typed view.
func (p ContactPatch) Apply(c *Contact) error {
	if c == nil || c.Card == nil {
		return errors.New("contact has no card")
	}
	if fn, ok := p.FullName.Get(); ok && fn == "" {
		return errors.New("full name cannot be empty")
	}
	p.apply(c.Card)
	updated := fromCard(c.Card)
	updated.UID, updated.Href, updated.ETag = c.UID, c.Href, c.ETag
	*c = *updated
	return nil
}

func (p ContactPatch) apply(card vcard.Card) {
	setValue(card, vcard.FieldFormattedName, p.FullName)
	setValue(card, vcard.FieldNickname, p.Nickname)
	setValue(card, vcard.FieldBirthday, p.Birthday)
	setValue(card, vcard.FieldOrganization, p.Organization)
	setValue(card, vcard.FieldTitle, p.Title)
	setValue(card, vcard.FieldNote, p.Note)

	if p.GivenName.IsPresent() || p.FamilyName.IsPresent() {
		name := card.Name()
		if name == nil {
			name = &vcard.Name{Field: &vcard.Field{}}
		}
		if v, ok := p.GivenName.Get(); ok {
			name.GivenName = v
		}
		if v, ok := p.FamilyName.Get(); ok {
			name.FamilyName = v
		}
		card.SetName(name)
	}

	setFields(card, vcard.FieldEmail, p.Emails)
	setFields(card, vcard.FieldTelephone, p.Phones)
	setFields(card, vcard.FieldURL, p.URLs)
	if cats, ok := p.Categories.Get(); ok {
		if len(cats) == 0 {
			delete(card, vcard.FieldCategories)
		} else {
			card.SetCategories(cats)
		}
	}
}

func setValue(card vcard.Card, field string, v mo.Option[string]) {
	value, ok := v.Get()
	if !ok {
		return
	}
	if value == "" {
		delete(card, field)
		return
	}
	if existing := card.Get(field); existing != nil {
		existing.Value = value
		card[field] = []*vcard.Field{existing}
		return
	}
	card.SetValue(field, value)
}

func setFields(card vcard.Card, field string, v mo.Option[[]ContactField]) {
	values, ok := v.Get()
	if !ok {
		return
	}
	if len(values) == 0 {
		delete(card, field)
		return
	}
	card[field] = vcardFields(values)
}
