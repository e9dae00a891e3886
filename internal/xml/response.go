package xml

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/samber/mo"
)

// Resource is one response entry of a multi-status document. Optional
// properties the server omitted, or answered with a non-200 propstat, are
// None.
type Resource struct {
	// Href is the decoded href as sent by the server.
	Href string
	// Path is Href relative to the listing root, without leading or
	// trailing slash; "" is the root itself.
	Path          string
	IsCollection  bool
	ResourceTypes []string
	ContentLength mo.Option[int64]
	ContentType   mo.Option[string]
	ETag          mo.Option[string]
	DisplayName   mo.Option[string]
	LastModified  mo.Option[time.Time]
	// Props holds every 200 property keyed by PropName.Key.
	Props map[string]Property
}

// Text returns the text of a property if the server reported it.
func (r *Resource) Text(name PropName) mo.Option[string] {
	p, ok := r.Props[name.Key()]
	if !ok {
		return mo.None[string]()
	}
	return mo.Some(strings.TrimSpace(p.TextContent))
}

// Prop returns a property with its children.
func (r *Resource) Prop(name PropName) (Property, bool) {
	p, ok := r.Props[name.Key()]
	return p, ok
}

// ParseMultistatus parses a 207 body. root is the unescaped path the hrefs
// are made relative to. Only a body that is not a multistatus document is an
// error.
func ParseMultistatus(body []byte, root string) ([]Resource, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("failed to parse multistatus: %w", err)
	}
	top := doc.Root()
	if top == nil {
		return nil, fmt.Errorf("empty document")
	}
	if top.Tag != TagMultistatus || (top.NamespaceURI() != "" && top.NamespaceURI() != DAV) {
		return nil, fmt.Errorf("invalid root tag: %s", top.FullTag())
	}

	root = strings.TrimSuffix(root, "/")
	var resources []Resource
	for _, respElem := range top.SelectElements(TagResponse) {
		hrefElem := respElem.SelectElement(TagHref)
		if hrefElem == nil {
			continue
		}
		resources = append(resources, parseResponse(respElem, strings.TrimSpace(hrefElem.Text()), root))
	}
	return resources, nil
}

func parseResponse(respElem *etree.Element, rawHref, root string) Resource {
	href := decodeHref(rawHref)
	res := Resource{
		Href:  href,
		Path:  strings.Trim(strings.TrimPrefix(href, root), "/"),
		Props: make(map[string]Property),
	}

	for _, propstat := range respElem.SelectElements(TagPropstat) {
		if !statusOK(propstat.SelectElement(TagStatus)) {
			continue
		}
		propElem := propstat.SelectElement(TagProp)
		if propElem == nil {
			continue
		}
		for _, elem := range propElem.ChildElements() {
			p := Property{}
			p.FromElement(elem)
			res.Props[PropName{p.Namespace, p.Name}.Key()] = p
		}
	}

	if rt, ok := res.Prop(PropResourceType); ok {
		res.ResourceTypes = rt.ChildNames()
		for _, t := range res.ResourceTypes {
			if t == TagCollection {
				res.IsCollection = true
			}
		}
	} else {
		res.IsCollection = strings.HasSuffix(href, "/")
	}

	res.ContentType = nonEmpty(res.Text(PropGetContentType))
	res.ETag = nonEmpty(res.Text(PropGetETag))
	res.DisplayName = nonEmpty(res.Text(PropDisplayName))
	res.ContentLength = mo.None[int64]()
	if v, ok := res.Text(PropGetContentLength).Get(); ok {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			res.ContentLength = mo.Some(n)
		}
	}
	res.LastModified = mo.None[time.Time]()
	if v, ok := res.Text(PropGetLastModified).Get(); ok {
		if t, err := http.ParseTime(v); err == nil {
			res.LastModified = mo.Some(t)
		}
	}
	return res
}

func nonEmpty(o mo.Option[string]) mo.Option[string] {
	if v, ok := o.Get(); ok && v != "" {
		return o
	}
	return mo.None[string]()
}

// decodeHref accepts absolute or server-relative hrefs and returns the
// unescaped path.
func decodeHref(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if p, err := url.PathUnescape(raw); err == nil {
			return p
		}
		return raw
	}
	return u.Path
}

// statusOK reports whether a propstat status line is 2xx. A missing status
// is treated as success.
func statusOK(status *etree.Element) bool {
	if status == nil {
		return true
	}
	fields := strings.Fields(status.Text())
	if len(fields) < 2 {
		return false
	}
	code, err := strconv.Atoi(fields[1])
	return err == nil && code >= 200 && code < 300
}
