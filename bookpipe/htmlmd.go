package bookpipe

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	// Register decoders so image.DecodeConfig can size embedded images.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// newMarkdownConverter builds the HTML→markdown converter shared by the EPUB
// and MOBI paths.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(),
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(),
		),
	)
}

// newSanitizerPolicy builds the bluemonday policy applied to chapter HTML
// before conversion. Data-URI images must survive so that inlined art stays
// in the markdown.
func newSanitizerPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowDataURIImages()
	p.AllowAttrs("src", "alt", "title").OnElements("img")
	return p
}

// htmlToMarkdown sanitizes and converts one chapter's HTML, then repairs
// conversion artifacts. Returns "" when nothing readable remains.
func htmlToMarkdown(conv *converter.Converter, policy *bluemonday.Policy, rawHTML string) (string, error) {
	clean := policy.Sanitize(rawHTML)
	md, err := conv.ConvertString(clean)
	if err != nil {
		return "", fmt.Errorf("convert html: %w", err)
	}
	return RepairTables(md), nil
}

// parseHTMLBody parses a document and returns its <body> node, or the root
// when no body element exists (fragment input).
func parseHTMLBody(data []byte) (*html.Node, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if body := findElement(doc, atom.Body); body != nil {
		return body, nil
	}
	return doc, nil
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// renderChildren serializes the children of n back to an HTML string.
func renderChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return sb.String()
}

// inlineImages rewrites every non-data, non-remote img src under n using
// resolve, which maps the original reference string to a data URI. Images
// that cannot be resolved keep their reference untouched; the markdown
// simply carries a dead link instead of losing the surrounding text.
func inlineImages(n *html.Node, resolve func(ref string) (string, bool)) {
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.DataAtom == atom.Img || n.Data == "image") {
			for i, a := range n.Attr {
				if a.Key != "src" && a.Key != "href" && a.Key != "xlink:href" {
					continue
				}
				ref := strings.TrimSpace(a.Val)
				if ref == "" || strings.HasPrefix(ref, "data:") ||
					strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
					continue
				}
				if uri, ok := resolve(ref); ok {
					n.Attr[i].Val = uri
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
}

// encodeDataURI builds a data:<mime>;base64 URI and measures the image.
// Width/height are zero when the buffer cannot be decoded (e.g. SVG).
func encodeDataURI(data []byte, ext string) imageCacheEntry {
	mime := detectImageMIME(data, ext)
	entry := imageCacheEntry{
		dataURI: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		entry.width = cfg.Width
		entry.height = cfg.Height
	}
	return entry
}

var headingPrefix = regexp.MustCompile(`(?m)^(#{1,6})\s+(.+)$`)

// firstHeading scans markdown for its first ATX heading line, returning the
// heading text, its depth, and whether one was found.
func firstHeading(md string) (string, int, bool) {
	for _, line := range strings.Split(md, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := headingPrefix.FindStringSubmatch(line); m != nil {
			return cleanWhitespace(m[2]), len(m[1]), true
		}
	}
	return "", 0, false
}

// chapterFromMarkdown finalizes one chapter: drops it when under minChars,
// derives title and level from the first heading with a positional fallback.
func chapterFromMarkdown(md string, order, minChars int) (Chapter, bool) {
	md = strings.TrimSpace(md)
	if len(md) < minChars {
		return Chapter{}, false
	}
	title, level, ok := firstHeading(md)
	if !ok || title == "" {
		title = fmt.Sprintf("Chapter %d", order+1)
		level = 1
	}
	if level < 1 || level > 6 {
		level = 1
	}
	return Chapter{Title: title, Content: md, Level: level, Order: order}, true
}
