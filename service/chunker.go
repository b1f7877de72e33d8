package service

import (
	"fmt"
	"unicode"

	"github.com/tieubaoca/knowledge-be/types"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order. The empty separator cuts anywhere.
var DefaultSeparators = []string{"\n\n", "\n", ".", "!", "?", ",", " ", ""}

var DefaultChunkerConfig = types.ChunkerConfig{
	ChunkSize:    DefaultChunkSize,
	ChunkOverlap: DefaultChunkOverlap,
	Separators:   DefaultSeparators,
}

// Chunker splits text recursively on a prioritized list of separators and
// re-joins the pieces into overlapping chunks. Sizes are counted in runes.
type Chunker struct {
	chunkSize  int
	overlap    int
	separators [][]rune
}

type span struct {
	start, end int
}

// NewChunker validates the configuration. Zero values fall back to defaults.
// An overlap that leaves no room for the joining space and at least one new
// rune is clamped to a quarter of the chunk size.
func NewChunker(cfg types.ChunkerConfig) (*Chunker, error) {
	if cfg.ChunkSize < 0 {
		return nil, types.NewError("chunker.new", types.ErrChunking, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize))
	}
	if cfg.ChunkOverlap < 0 {
		return nil, types.NewError("chunker.new", types.ErrChunking, fmt.Errorf("chunk overlap must not be negative, got %d", cfg.ChunkOverlap))
	}
	size := cfg.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	overlap := cfg.ChunkOverlap
	if overlap >= size-1 {
		overlap = size / 4
	}
	seps := cfg.Separators
	if len(seps) == 0 {
		seps = DefaultSeparators
	}
	c := &Chunker{chunkSize: size, overlap: overlap}
	for _, sep := range seps {
		c.separators = append(c.separators, []rune(sep))
	}
	return c, nil
}

func (c *Chunker) ChunkSize() int    { return c.chunkSize }
func (c *Chunker) ChunkOverlap() int { return c.overlap }

// Split returns the chunks of text in order. Whitespace-only input yields no
// chunks. Chunk offsets refer to rune positions in text.
func (c *Chunker) Split(text string) []types.Chunk {
	runes := []rune(text)
	start, end := 0, len(runes)
	for start < end && unicode.IsSpace(runes[start]) {
		start++
	}
	for end > start && unicode.IsSpace(runes[end-1]) {
		end--
	}
	if start == end {
		return []types.Chunk{}
	}

	pieces := c.split(runes, span{start, end}, c.separators)
	return c.merge(runes, pieces)
}

// pieceLimit leaves room for the overlap prefix and its joining space.
func (c *Chunker) pieceLimit() int {
	limit := c.chunkSize
	if c.overlap > 0 {
		limit = c.chunkSize - c.overlap - 1
	}
	if limit < 1 {
		limit = 1
	}
	return limit
}

func (c *Chunker) split(runes []rune, s span, seps [][]rune) []span {
	limit := c.pieceLimit()
	if s.end-s.start <= limit {
		return []span{s}
	}

	for i, sep := range seps {
		if len(sep) == 0 {
			return hardCut(s, limit)
		}
		if indexRunes(runes[s.start:s.end], sep) < 0 {
			continue
		}

		var out []span
		for _, piece := range splitAfter(runes, s, sep) {
			if piece.end-piece.start <= limit {
				out = append(out, piece)
				continue
			}
			out = append(out, c.split(runes, piece, seps[i+1:])...)
		}
		return out
	}

	// Nothing left to split on, the piece stays oversized.
	return []span{s}
}

func (c *Chunker) merge(runes []rune, pieces []span) []types.Chunk {
	chunks := make([]types.Chunk, 0, len(pieces))
	var suffix []rune

	for i := 0; i < len(pieces); {
		budget := c.chunkSize
		if len(chunks) > 0 && len(suffix) > 0 {
			budget = c.chunkSize - len(suffix) - 1
		}

		region := pieces[i]
		i++
		for i < len(pieces) && pieces[i].end-region.start <= budget {
			region.end = pieces[i].end
			i++
		}

		lo, hi := region.start, region.end
		for lo < hi && unicode.IsSpace(runes[lo]) {
			lo++
		}
		for hi > lo && unicode.IsSpace(runes[hi-1]) {
			hi--
		}
		if lo == hi {
			continue
		}

		content := runes[lo:hi]
		chunkText := make([]rune, 0, len(suffix)+1+len(content))
		if len(chunks) > 0 && len(suffix) > 0 {
			chunkText = append(chunkText, suffix...)
			if lo > 0 && unicode.IsSpace(runes[lo-1]) {
				chunkText = append(chunkText, ' ')
			}
		}
		overlap := len(chunkText)
		chunkText = append(chunkText, content...)

		chunks = append(chunks, types.Chunk{
			Text:       string(chunkText),
			ChunkIndex: len(chunks),
			Offset:     lo,
			Overlap:    overlap,
		})
		suffix = c.tail(chunkText)
	}
	return chunks
}

// tail returns the last overlap runes of text without leading whitespace.
func (c *Chunker) tail(text []rune) []rune {
	if c.overlap == 0 {
		return nil
	}
	from := len(text) - c.overlap
	if from < 0 {
		from = 0
	}
	for from < len(text) && unicode.IsSpace(text[from]) {
		from++
	}
	out := make([]rune, len(text)-from)
	copy(out, text[from:])
	return out
}

// splitAfter cuts s after every occurrence of sep, keeping the separator on
// the preceding piece. Empty pieces are dropped.
func splitAfter(runes []rune, s span, sep []rune) []span {
	var out []span
	pos := s.start
	for pos < s.end {
		idx := indexRunes(runes[pos:s.end], sep)
		if idx < 0 {
			break
		}
		cut := pos + idx + len(sep)
		out = append(out, span{pos, cut})
		pos = cut
	}
	if pos < s.end {
		out = append(out, span{pos, s.end})
	}
	return out
}

func hardCut(s span, limit int) []span {
	var out []span
	for pos := s.start; pos < s.end; pos += limit {
		end := pos + limit
		if end > s.end {
			end = s.end
		}
		out = append(out, span{pos, end})
	}
	return out
}

func indexRunes(hay, needle []rune) int {
	if len(needle) == 0 {
		return 0
	}
	for i := 0; i+len(needle) <= len(hay); i++ {
		match := true
		for j := range needle {
			if hay[i+j] != needle[j] {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
