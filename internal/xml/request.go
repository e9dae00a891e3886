package xml

import (
	"fmt"

	"github.com/beevik/etree"
)

func newDocument(space, local string) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	root := doc.CreateElement(qualified(space, local))
	return doc, root
}

func namespacesOf(names []PropName) []string {
	spaces := make([]string, 0, len(names))
	for _, n := range names {
		spaces = append(spaces, n.Space)
	}
	return spaces
}

// createProp adds an empty property element, declaring its namespace inline
// when it has no registered prefix.
func createProp(parent *etree.Element, name PropName) *etree.Element {
	if _, ok := prefixes[name.Space]; ok {
		return parent.CreateElement(qualified(name.Space, name.Local))
	}
	elem := parent.CreateElement(name.Local)
	elem.CreateAttr("xmlns", name.Space)
	return elem
}

func write(doc *etree.Document) ([]byte, error) {
	body, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize XML: %w", err)
	}
	return body, nil
}

// BuildPropfind builds a PROPFIND body requesting props. With no props the
// default file props are requested.
func BuildPropfind(props ...PropName) ([]byte, error) {
	if len(props) == 0 {
		props = DefaultFileProps
	}
	doc, root := newDocument(DAV, TagPropfind)
	AddNamespaces(doc, namespacesOf(props)...)

	prop := root.CreateElement(qualified(DAV, TagProp))
	for _, p := range props {
		createProp(prop, p)
	}
	return write(doc)
}

// BuildMkcol builds an extended MKCOL body (RFC 5689) that sets the display
// name and the extra resource types, e.g. CardDAV addressbook.
func BuildMkcol(displayName string, resourceTypes ...PropName) ([]byte, error) {
	doc, root := newDocument(DAV, "mkcol")
	AddNamespaces(doc, namespacesOf(resourceTypes)...)

	prop := root.CreateElement(qualified(DAV, TagSet)).CreateElement(qualified(DAV, TagProp))
	rt := prop.CreateElement(qualified(DAV, TagResourcetype))
	rt.CreateElement(qualified(DAV, TagCollection))
	for _, t := range resourceTypes {
		createProp(rt, t)
	}
	if displayName != "" {
		prop.CreateElement(qualified(DAV, "displayname")).SetText(displayName)
	}
	return write(doc)
}

// BuildMkcalendar builds a MKCALENDAR body for a VEVENT calendar.
func BuildMkcalendar(displayName, description, color string) ([]byte, error) {
	doc, root := newDocument(CalDAV, "mkcalendar")
	AddNamespaces(doc, CalDAV, AppleICal)

	prop := root.CreateElement(qualified(DAV, TagSet)).CreateElement(qualified(DAV, TagProp))
	if displayName != "" {
		prop.CreateElement(qualified(DAV, "displayname")).SetText(displayName)
	}
	if description != "" {
		prop.CreateElement(qualified(CalDAV, "calendar-description")).SetText(description)
	}
	if color != "" {
		prop.CreateElement(qualified(AppleICal, "calendar-color")).SetText(color)
	}
	comps := prop.CreateElement(qualified(CalDAV, "supported-calendar-component-set"))
	comps.CreateElement(qualified(CalDAV, "comp")).CreateAttr("name", "VEVENT")
	return write(doc)
}

// BuildAddressbookQuery builds an addressbook-query REPORT fetching the etag
// and full vCard of every contact.
func BuildAddressbookQuery() ([]byte, error) {
	doc, root := newDocument(CardDAV, "addressbook-query")
	AddNamespaces(doc, CardDAV)

	prop := root.CreateElement(qualified(DAV, TagProp))
	createProp(prop, PropGetETag)
	createProp(prop, PropAddressData)
	return write(doc)
}
