package bookpipe

// Format identifies an ebook container type.
type Format string

const (
	FormatEPUB Format = "epub"
	FormatPDF  Format = "pdf"
	FormatMOBI Format = "mobi"
)

// Chapter is one reading unit of a parsed document.
type Chapter struct {
	Title   string `json:"title"`
	Content string `json:"content"` // markdown
	Level   int    `json:"level"`   // heading level 1-6
	Order   int    `json:"order"`   // position in reading sequence, contiguous from 0
}

// DocumentMetadata holds normalized bibliographic fields. All fields are
// optional; presence depends on what the source format exposes.
type DocumentMetadata struct {
	ISBN             string   `json:"isbn,omitempty"`
	Publisher        string   `json:"publisher,omitempty"`
	PublicationYear  int      `json:"publication_year,omitempty"`
	Language         string   `json:"language,omitempty"`
	Description      string   `json:"description,omitempty"`
	Subjects         []string `json:"subjects,omitempty"`
	PageCount        int      `json:"page_count,omitempty"`
	FileSize         int64    `json:"file_size,omitempty"`
	NormalizedAuthor string   `json:"normalized_author,omitempty"`
	NormalizedTitle  string   `json:"normalized_title,omitempty"`
}

// ParsedDocument is the result of parsing one ebook file. It is immutable
// after construction and owned by the caller once returned.
type ParsedDocument struct {
	Title          string            `json:"title"`
	Author         string            `json:"author,omitempty"`
	CoverImage     string            `json:"cover_image,omitempty"` // data:<mime>;base64,... URI
	Markdown       string            `json:"markdown"`              // chapters joined in reading order
	Chapters       []Chapter         `json:"chapters"`
	Metadata       *DocumentMetadata `json:"metadata,omitempty"`
	FirstPagesText string            `json:"first_pages_text,omitempty"` // used by external metadata lookup
}

// imageCacheEntry is one decoded, embedded image. The cache is scoped to a
// single extraction call and keyed by the reference string as it appeared in
// the source markup (EPUB) or by image object number (PDF).
type imageCacheEntry struct {
	dataURI string
	width   int
	height  int
}
