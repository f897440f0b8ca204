package bookpipe

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// containerPath is the fixed location of the EPUB container descriptor.
const containerPath = "META-INF/container.xml"

// xmlNode is a generic parsed-XML tree. The container descriptor is walked
// through this shape because real-world EPUBs produce several structural
// variants that typed unmarshalling would reject outright.
type xmlNode struct {
	XMLName  xml.Name
	Attrs    []xml.Attr `xml:",any,attr"`
	Children []xmlNode  `xml:",any"`
	Text     string     `xml:",chardata"`
}

func (n *xmlNode) attr(name string) string {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func (n *xmlNode) child(local string) *xmlNode {
	for i := range n.Children {
		if n.Children[i].XMLName.Local == local {
			return &n.Children[i]
		}
	}
	return nil
}

// containerMatcher extracts the packaging-document path from one known
// container.xml layout variant. Returns "" when the shape does not apply.
type containerMatcher func(root *xmlNode) string

// containerMatchers are tried in order; the last is the generic bounded DFS.
var containerMatchers = []containerMatcher{
	// <container><rootfiles><rootfile full-path=.../></rootfiles></container>
	func(root *xmlNode) string {
		if rfs := root.child("rootfiles"); rfs != nil {
			if rf := rfs.child("rootfile"); rf != nil {
				return rf.attr("full-path")
			}
		}
		return ""
	},
	// <container><rootfile full-path=.../></container>
	func(root *xmlNode) string {
		if rf := root.child("rootfile"); rf != nil {
			return rf.attr("full-path")
		}
		return ""
	},
	// Nested one level deeper than the standard shape.
	func(root *xmlNode) string {
		for i := range root.Children {
			if rfs := root.Children[i].child("rootfiles"); rfs != nil {
				if rf := rfs.child("rootfile"); rf != nil {
					return rf.attr("full-path")
				}
			}
		}
		return ""
	},
	// Generic fallback: depth-first search for any node carrying full-path.
	func(root *xmlNode) string {
		return searchFullPath(root, 0)
	},
}

const maxContainerDepth = 8

func searchFullPath(n *xmlNode, depth int) string {
	if depth > maxContainerDepth {
		return ""
	}
	if p := n.attr("full-path"); p != "" {
		return p
	}
	for i := range n.Children {
		if p := searchFullPath(&n.Children[i], depth+1); p != "" {
			return p
		}
	}
	return ""
}

// parseContainerDescriptor returns the archive path of the packaging
// document, tolerating the known structural variants of container.xml.
func parseContainerDescriptor(data []byte) (string, error) {
	var root xmlNode
	if err := xml.Unmarshal(stripBOM(data), &root); err != nil {
		return "", fmt.Errorf("parse container descriptor: %w: %w", err, ErrInvalidContainer)
	}
	for _, match := range containerMatchers {
		if p := strings.TrimSpace(match(&root)); p != "" {
			return p, nil
		}
	}
	return "", fmt.Errorf("container descriptor has no rootfile full-path: %w", ErrInvalidContainer)
}

// opfPackage models the packaging document. Metadata elements are matched by
// local name only, so both dc: and opf-default namespace prefixes bind.
type opfPackage struct {
	XMLName  xml.Name    `xml:"package"`
	Version  string      `xml:"version,attr"`
	Metadata opfMetadata `xml:"metadata"`
	Manifest opfManifest `xml:"manifest"`
	Spine    opfSpine    `xml:"spine"`
}

type opfMetadata struct {
	Present      bool
	Titles       []opfText `xml:"title"`
	Creators     []opfText `xml:"creator"`
	Identifiers  []opfText `xml:"identifier"`
	Publishers   []opfText `xml:"publisher"`
	Dates        []opfText `xml:"date"`
	Languages    []opfText `xml:"language"`
	Descriptions []opfText `xml:"description"`
	Subjects     []opfText `xml:"subject"`
	Metas        []opfMeta `xml:"meta"`
}

// UnmarshalXML records that a metadata element existed at all, then defers to
// the default decoding. A structurally absent metadata block fails the
// extraction while an empty one does not.
func (m *opfMetadata) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	type plain opfMetadata
	var p plain
	if err := d.DecodeElement(&p, &start); err != nil {
		return err
	}
	*m = opfMetadata(p)
	m.Present = true
	return nil
}

type opfText struct {
	Value  string `xml:",chardata"`
	ID     string `xml:"id,attr"`
	Scheme string `xml:"scheme,attr"`
}

type opfMeta struct {
	Name     string `xml:"name,attr"`
	Content  string `xml:"content,attr"`
	Property string `xml:"property,attr"`
	Value    string `xml:",chardata"`
}

type opfManifest struct {
	Items []opfItem `xml:"item"`
}

type opfItem struct {
	ID         string `xml:"id,attr"`
	Href       string `xml:"href,attr"`
	MediaType  string `xml:"media-type,attr"`
	Properties string `xml:"properties,attr"`
}

type opfSpine struct {
	ItemRefs []opfItemRef `xml:"itemref"`
}

type opfItemRef struct {
	IDRef  string `xml:"idref,attr"`
	Linear string `xml:"linear,attr"`
}

func parseOPF(data []byte) (*opfPackage, error) {
	var pkg opfPackage
	if err := xml.Unmarshal(stripBOM(data), &pkg); err != nil {
		return nil, fmt.Errorf("parse packaging document: %w: %w", err, ErrInvalidContainer)
	}
	if !pkg.Metadata.Present {
		return nil, fmt.Errorf("packaging document has no metadata block: %w", ErrInvalidContainer)
	}
	if len(pkg.Manifest.Items) == 0 {
		return nil, fmt.Errorf("packaging document has no manifest items: %w", ErrInvalidContainer)
	}
	if len(pkg.Spine.ItemRefs) == 0 {
		return nil, fmt.Errorf("packaging document has no spine: %w", ErrInvalidContainer)
	}
	return &pkg, nil
}

// opfDocumentMetadata normalizes the packaging metadata into the shared
// schema. The manifest item count stands in for a page count.
func opfDocumentMetadata(pkg *opfPackage) (title, author string, meta *DocumentMetadata) {
	md := &DocumentMetadata{PageCount: len(pkg.Manifest.Items)}
	om := &pkg.Metadata

	title = firstOPFText(om.Titles)
	author = firstOPFText(om.Creators)

	// Identifier-scheme-aware ISBN: an explicit isbn scheme wins, otherwise
	// any identifier that validates as an ISBN.
	for _, id := range om.Identifiers {
		v := strings.TrimSpace(id.Value)
		if v == "" {
			continue
		}
		if strings.EqualFold(id.Scheme, "isbn") || strings.HasPrefix(strings.ToLower(v), "urn:isbn:") {
			if isbn := normalizeISBN(v); isbn != "" {
				md.ISBN = isbn
				break
			}
		}
	}
	if md.ISBN == "" {
		for _, id := range om.Identifiers {
			if isbn := normalizeISBN(id.Value); isbn != "" {
				md.ISBN = isbn
				break
			}
		}
	}

	md.Publisher = firstOPFText(om.Publishers)
	md.PublicationYear = parseYear(firstOPFText(om.Dates))
	md.Language = firstOPFText(om.Languages)
	md.Description = firstOPFText(om.Descriptions)
	for _, s := range om.Subjects {
		if v := cleanWhitespace(s.Value); v != "" {
			md.Subjects = append(md.Subjects, v)
		}
	}
	return cleanWhitespace(title), cleanWhitespace(author), md
}

func firstOPFText(elems []opfText) string {
	for _, e := range elems {
		if v := strings.TrimSpace(e.Value); v != "" {
			return v
		}
	}
	return ""
}

// stripBOM removes a leading UTF-8 byte-order mark.
func stripBOM(data []byte) []byte {
	if len(data) >= 3 && data[0] == 0xEF && data[1] == 0xBB && data[2] == 0xBF {
		return data[3:]
	}
	return data
}
