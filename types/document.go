package types

import "time"

// UploadedFile is a file handed to the ingestion pipeline.
type UploadedFile struct {
	FileName string
	FileType string
	Content  []byte
}

// Document identifies a source file. FileName is the deduplication key.
type Document struct {
	FileName   string    `json:"fileName"`
	FileType   string    `json:"fileType"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// ExtractedDocument is the plain text of a file plus what the extractor
// learned about it.
type ExtractedDocument struct {
	Text     string
	Metadata DocumentMetadata
}

// DocumentMetadata holds the common fields and one format specific variant.
type DocumentMetadata struct {
	FileName    string     `json:"fileName"`
	FileType    string     `json:"fileType"`
	ProcessedAt time.Time  `json:"processedAt"`
	Format      string     `json:"format"`
	PDF         *PDFInfo   `json:"pdf,omitempty"`
	DOCX        *DOCXInfo  `json:"docx,omitempty"`
	Pages       []PageSpan `json:"-"`
}

type PDFInfo struct {
	PageCount    int    `json:"pageCount"`
	Author       string `json:"author,omitempty"`
	CreationDate string `json:"creationDate,omitempty"`
}

type DOCXInfo struct {
	Title string `json:"title,omitempty"`
}

// PageSpan marks where a page starts in the extracted text, in runes.
type PageSpan struct {
	Number int
	Offset int
}

// PageAt returns the page containing the rune offset, or 0 when the document
// has no page information.
func (m DocumentMetadata) PageAt(offset int) int {
	page := 0
	for _, span := range m.Pages {
		if span.Offset > offset {
			break
		}
		page = span.Number
	}
	return page
}

// Chunk is a retrievable unit of text produced by the chunker.
type Chunk struct {
	Text           string    // trimmed, never empty
	SourceFileName string    // set at ingestion
	ChunkIndex     int       // 0-based position within the source
	PageNumber     int       // 0 when unknown
	Offset         int       // rune offset of the content region in the input
	Overlap        int       // leading runes repeated from the previous chunk
	CreatedAt      time.Time // set at ingestion
}

// ChunkerConfig contains configuration options for text splitting
type ChunkerConfig struct {
	ChunkSize    int      `mapstructure:"chunk_size"`
	ChunkOverlap int      `mapstructure:"chunk_overlap"`
	Separators   []string `mapstructure:"separators"`
}

// DocumentChunk is a chunk ready for the vector store.
type DocumentChunk struct {
	Content  string
	Metadata RecordMetadata
}
