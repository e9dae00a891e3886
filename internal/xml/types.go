package xml

import "github.com/beevik/etree"

// Common XML tag names used in WebDAV
const (
	TagPropfind     = "propfind"
	TagProp         = "prop"
	TagSet          = "set"
	TagMultistatus  = "multistatus"
	TagResponse     = "response"
	TagHref         = "href"
	TagPropstat     = "propstat"
	TagStatus       = "status"
	TagResourcetype = "resourcetype"
	TagCollection   = "collection"
	TagCalendar     = "calendar"
	TagAddressbook  = "addressbook"
)

// PropName is a namespace-qualified property name.
type PropName struct {
	Space string
	Local string
}

// Key returns the name in Clark notation, e.g. "{DAV:}getetag".
func (n PropName) Key() string {
	return "{" + n.Space + "}" + n.Local
}

var (
	PropResourceType     = PropName{DAV, "resourcetype"}
	PropGetContentLength = PropName{DAV, "getcontentlength"}
	PropGetContentType   = PropName{DAV, "getcontenttype"}
	PropGetLastModified  = PropName{DAV, "getlastmodified"}
	PropGetETag          = PropName{DAV, "getetag"}
	PropDisplayName      = PropName{DAV, "displayname"}

	PropCalendarDescription = PropName{CalDAV, "calendar-description"}
	PropCalendarData        = PropName{CalDAV, "calendar-data"}
	PropSupportedComponents = PropName{CalDAV, "supported-calendar-component-set"}
	PropCalendarColor       = PropName{AppleICal, "calendar-color"}
	PropGetCTag             = PropName{CalendarServer, "getctag"}

	PropAddressbookDescription = PropName{CardDAV, "addressbook-description"}
	PropAddressData            = PropName{CardDAV, "address-data"}
	ResourceAddressbook        = PropName{CardDAV, TagAddressbook}

	PropFileID   = PropName{OwnCloud, "fileid"}
	PropFavorite = PropName{OwnCloud, "favorite"}
)

// DefaultFileProps are requested when listing a file tree.
var DefaultFileProps = []PropName{
	PropResourceType,
	PropGetContentLength,
	PropGetContentType,
	PropGetLastModified,
	PropGetETag,
	PropDisplayName,
}

// Property represents a generic XML property
type Property struct {
	Name        string
	Namespace   string
	TextContent string
	Children    []Property
	Attributes  map[string]string
}

// FromElement populates a Property from an etree.Element, resolving
// prefixes to namespace URIs.
func (p *Property) FromElement(elem *etree.Element) {
	p.Name = elem.Tag
	p.Namespace = elem.NamespaceURI()
	p.TextContent = elem.Text()
	p.Children = nil
	p.Attributes = make(map[string]string)

	for _, attr := range elem.Attr {
		p.Attributes[attr.Key] = attr.Value
	}

	for _, child := range elem.ChildElements() {
		childProp := Property{}
		childProp.FromElement(child)
		p.Children = append(p.Children, childProp)
	}
}

// GetAttr returns the value of an attribute, or empty string if not found
func (p *Property) GetAttr(name string) string {
	if p.Attributes == nil {
		return ""
	}
	return p.Attributes[name]
}

// ChildNames lists the local names of the direct children.
func (p *Property) ChildNames() []string {
	names := make([]string, 0, len(p.Children))
	for _, c := range p.Children {
		names = append(names, c.Name)
	}
	return names
}
