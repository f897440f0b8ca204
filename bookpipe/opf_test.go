package bookpipe

import (
	"errors"
	"strings"
	"testing"
)

func TestParseContainerDescriptorVariants(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		want string
	}{
		{
			"standard",
			`<?xml version="1.0"?>
			<container xmlns="urn:oasis:names:tc:opendocument:xmlns:container" version="1.0">
			  <rootfiles>
			    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
			  </rootfiles>
			</container>`,
			"OEBPS/content.opf",
		},
		{
			"rootfile directly under container",
			`<container><rootfile full-path="content.opf"/></container>`,
			"content.opf",
		},
		{
			"extra nesting level",
			`<container><wrapper><rootfiles><rootfile full-path="OPS/book.opf"/></rootfiles></wrapper></container>`,
			"OPS/book.opf",
		},
		{
			"deeply buried full-path found by search",
			`<container><a><b><c><node full-path="x/package.opf"/></c></b></a></container>`,
			"x/package.opf",
		},
		{
			"bom prefix",
			"\xEF\xBB\xBF<container><rootfiles><rootfile full-path=\"p.opf\"/></rootfiles></container>",
			"p.opf",
		},
	}
	for _, tt := range tests {
		got, err := parseContainerDescriptor([]byte(tt.xml))
		if err != nil {
			t.Errorf("%s: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestParseContainerDescriptorErrors(t *testing.T) {
	for _, xml := range []string{
		`not xml at all <<<`,
		`<container><rootfiles/></container>`,
	} {
		_, err := parseContainerDescriptor([]byte(xml))
		if !errors.Is(err, ErrInvalidContainer) {
			t.Errorf("parseContainerDescriptor(%q) err = %v, want ErrInvalidContainer", xml, err)
		}
	}
}

const sampleOPF = `<?xml version="1.0"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:title>The Dispossessed</dc:title>
    <dc:creator>Ursula K. Le Guin</dc:creator>
    <dc:identifier id="bookid">urn:isbn:978-0-06-051275-0</dc:identifier>
    <dc:identifier>internal-uid-42</dc:identifier>
    <dc:publisher>Harper &amp; Row</dc:publisher>
    <dc:date>1974-05-01</dc:date>
    <dc:language>en</dc:language>
    <dc:description>An ambiguous  utopia.</dc:description>
    <dc:subject>Science Fiction</dc:subject>
    <dc:subject>Anarchism</dc:subject>
    <meta name="cover" content="cover-img"/>
  </metadata>
  <manifest>
    <item id="ch1" href="ch1.xhtml" media-type="application/xhtml+xml"/>
    <item id="ch2" href="ch2.xhtml" media-type="application/xhtml+xml"/>
    <item id="cover-img" href="images/cover.jpg" media-type="image/jpeg"/>
  </manifest>
  <spine>
    <itemref idref="ch1"/>
    <itemref idref="ch2"/>
  </spine>
</package>`

func TestParseOPF(t *testing.T) {
	pkg, err := parseOPF([]byte(sampleOPF))
	if err != nil {
		t.Fatal(err)
	}
	if len(pkg.Manifest.Items) != 3 {
		t.Errorf("manifest items = %d, want 3", len(pkg.Manifest.Items))
	}
	if len(pkg.Spine.ItemRefs) != 2 {
		t.Errorf("spine refs = %d, want 2", len(pkg.Spine.ItemRefs))
	}

	title, author, meta := opfDocumentMetadata(pkg)
	if title != "The Dispossessed" {
		t.Errorf("title = %q", title)
	}
	if author != "Ursula K. Le Guin" {
		t.Errorf("author = %q", author)
	}
	if meta.ISBN != "9780060512750" {
		t.Errorf("isbn = %q", meta.ISBN)
	}
	if meta.Publisher != "Harper & Row" {
		t.Errorf("publisher = %q", meta.Publisher)
	}
	if meta.PublicationYear != 1974 {
		t.Errorf("year = %d", meta.PublicationYear)
	}
	if meta.Language != "en" {
		t.Errorf("language = %q", meta.Language)
	}
	if meta.Description != "An ambiguous  utopia." {
		t.Errorf("description = %q", meta.Description)
	}
	if len(meta.Subjects) != 2 || meta.Subjects[0] != "Science Fiction" {
		t.Errorf("subjects = %v", meta.Subjects)
	}
	if meta.PageCount != 3 {
		t.Errorf("page count = %d, want manifest item count", meta.PageCount)
	}
}

func TestParseOPFStructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"no metadata", `<package><manifest><item id="a" href="a.xhtml"/></manifest><spine><itemref idref="a"/></spine></package>`},
		{"no manifest items", `<package><metadata/><manifest/><spine><itemref idref="a"/></spine></package>`},
		{"no spine", `<package><metadata/><manifest><item id="a" href="a.xhtml"/></manifest><spine/></package>`},
		{"malformed", `<package><metadata>`},
	}
	for _, tt := range tests {
		_, err := parseOPF([]byte(tt.xml))
		if !errors.Is(err, ErrInvalidContainer) {
			t.Errorf("%s: err = %v, want ErrInvalidContainer", tt.name, err)
		}
	}
}

func TestOPFISBNFallsBackToValidatingIdentifier(t *testing.T) {
	opf := strings.Replace(sampleOPF,
		`<dc:identifier id="bookid">urn:isbn:978-0-06-051275-0</dc:identifier>`,
		`<dc:identifier>978-0-06-051275-0</dc:identifier>`, 1)
	pkg, err := parseOPF([]byte(opf))
	if err != nil {
		t.Fatal(err)
	}
	_, _, meta := opfDocumentMetadata(pkg)
	if meta.ISBN != "9780060512750" {
		t.Errorf("isbn = %q", meta.ISBN)
	}
}
