package xml

import "github.com/beevik/etree"

// Namespaces spoken by Nextcloud's DAV endpoints.
const (
	// DAV is the WebDAV namespace
	DAV = "DAV:"
	// CalDAV is the CalDAV namespace
	CalDAV = "urn:ietf:params:xml:ns:caldav"
	// CardDAV is the CardDAV namespace
	CardDAV = "urn:ietf:params:xml:ns:carddav"
	// CalendarServer is the Calendar Server namespace (getctag)
	CalendarServer = "http://calendarserver.org/ns/"
	// AppleICal carries calendar-color and calendar-order
	AppleICal = "http://apple.com/ns/ical/"
	OwnCloud  = "http://owncloud.org/ns"
	Nextcloud = "http://nextcloud.org/ns"
)

var prefixes = map[string]string{
	DAV:            "d",
	CalDAV:         "c",
	CardDAV:        "card",
	CalendarServer: "cs",
	AppleICal:      "x1",
	OwnCloud:       "oc",
	Nextcloud:      "nc",
}

// declareOrder keeps namespace declarations stable in generated documents.
var declareOrder = []string{DAV, CalDAV, CardDAV, CalendarServer, AppleICal, OwnCloud, Nextcloud}

// AddNamespaces declares the given namespaces on the document root. DAV: is
// always declared.
func AddNamespaces(doc *etree.Document, spaces ...string) {
	root := doc.Root()
	if root == nil {
		return
	}
	want := map[string]bool{DAV: true}
	for _, s := range spaces {
		want[s] = true
	}
	for _, ns := range declareOrder {
		if want[ns] {
			root.CreateAttr("xmlns:"+prefixes[ns], ns)
		}
	}
}

// qualified returns the prefixed tag for a known namespace.
func qualified(space, local string) string {
	if p, ok := prefixes[space]; ok {
		return p + ":" + local
	}
	return local
}
