package feed

import (
	"bytes"
	"encoding/xml"
	"io"
	"sort"
	"strings"
)

// node is one element of the generic attributed XML tree. The same feed
// field can arrive as bare text, as an attributed element, or repeated as a
// list, so callers never assume a shape: they go through child, childList,
// childText and attr.
type node struct {
	space    string // resolved namespace URI, or the raw prefix when undeclared
	local    string
	attrs    map[string]string
	text     string
	children []*node
}

// Well-known namespace URIs for the prefixes feeds use in practice. Lookups
// written as "prefix:local" accept the prefix's URI or, for documents that
// never declare it, the verbatim prefix.
var namespaceURIs = map[string][]string{
	"atom":    {"http://www.w3.org/2005/Atom"},
	"content": {"http://purl.org/rss/1.0/modules/content/"},
	"dc":      {"http://purl.org/dc/elements/1.1/"},
	"itunes":  {"http://www.itunes.com/dtds/podcast-1.0.dtd"},
	"media":   {"http://search.yahoo.com/mrss/", "http://www.rssboard.org/media-rss"},
	"rdf":     {"http://www.w3.org/1999/02/22-rdf-syntax-ns#"},
	"yt":      {"http://www.youtube.com/xml/schemas/2015", "http://gdata.youtube.com/schemas/2007"},
}

// Namespaces an unprefixed lookup is allowed to match, so that "title" finds
// both a bare RSS 2.0 <title> and a namespaced Atom or RSS 1.0 one.
var coreSpaces = map[string]bool{
	"":                               true,
	"http://www.w3.org/2005/Atom":    true,
	"http://purl.org/rss/1.0/":       true,
	"http://backend.userland.com/rss2": true,
}

// decodeTree parses raw XML into a node tree. DOCTYPE directives are skipped
// and entity definitions are never honored; only named character entities
// from the HTML set are substituted, so external entity resolution cannot
// happen.
func decodeTree(raw []byte) (*node, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity

	root := &node{}
	stack := []*node{root}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			n := &node{space: t.Name.Space, local: t.Name.Local}
			for _, a := range t.Attr {
				// Namespace declarations are already resolved into
				// element names; keeping them as attributes would only
				// pollute rendered markup.
				if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
					continue
				}
				if n.attrs == nil {
					n.attrs = make(map[string]string, len(t.Attr))
				}
				n.attrs[a.Name.Local] = a.Value
			}
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, n)
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 1 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			stack[len(stack)-1].text += string(t)
		}
	}

	if len(root.children) == 0 {
		return nil, io.ErrUnexpectedEOF
	}
	return root, nil
}

func (n *node) matches(name string) bool {
	prefix, local, prefixed := strings.Cut(name, ":")
	if !prefixed {
		return n.local == name && coreSpaces[n.space]
	}
	if n.local != local {
		return false
	}
	if n.space == prefix {
		return true
	}
	for _, uri := range namespaceURIs[prefix] {
		if n.space == uri {
			return true
		}
	}
	return false
}

// child returns the first child matching name, or nil. Name is either plain
// ("title"), matching core feed namespaces only, or prefixed
// ("content:encoded"), matching that prefix's namespace.
func (n *node) child(name string) *node {
	if n == nil {
		return nil
	}
	for _, c := range n.children {
		if c.matches(name) {
			return c
		}
	}
	return nil
}

// childList returns all children matching name, coerced to a list even when
// the document holds exactly one.
func (n *node) childList(name string) []*node {
	if n == nil {
		return nil
	}
	var out []*node
	for _, c := range n.children {
		if c.matches(name) {
			out = append(out, c)
		}
	}
	return out
}

// childText unwraps an attributed child to its trimmed text value.
func (n *node) childText(name string) string {
	return n.child(name).value()
}

// textValue returns the node's own character data only, never rendered
// child markup.
func (n *node) textValue() string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.text)
}

// value resolves a node to its text. Container values such as Atom
// type="xhtml" content carry their payload as child elements rather than
// character data, so an element with no text of its own renders its child
// markup back to a string.
func (n *node) value() string {
	if n == nil {
		return ""
	}
	if t := strings.TrimSpace(n.text); t != "" {
		return t
	}
	if len(n.children) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, c := range n.children {
		c.render(&sb)
	}
	return strings.TrimSpace(sb.String())
}

// render writes the node back out as markup. Attributes are emitted in
// sorted order so rendering is deterministic.
func (n *node) render(sb *strings.Builder) {
	sb.WriteByte('<')
	sb.WriteString(n.local)
	if len(n.attrs) > 0 {
		keys := make([]string, 0, len(n.attrs))
		for k := range n.attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sb.WriteByte(' ')
			sb.WriteString(k)
			sb.WriteString(`="`)
			sb.WriteString(n.attrs[k])
			sb.WriteString(`"`)
		}
	}
	sb.WriteByte('>')
	sb.WriteString(n.text)
	for _, c := range n.children {
		c.render(sb)
	}
	sb.WriteString("</")
	sb.WriteString(n.local)
	sb.WriteByte('>')
}

func (n *node) attr(key string) string {
	if n == nil || n.attrs == nil {
		return ""
	}
	return n.attrs[key]
}
