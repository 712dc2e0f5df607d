package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/siherrmann/fusionrag/model"
)

// Chunker splits document text into retrieval units. Splitting is
// boundary aware, paragraphs first, sentences for oversized paragraphs,
// fixed character windows for unbroken runs. Chunks are spans of the
// normalized text, so concatenating them with the carried overlap
// removed reproduces the text exactly and no chunk ever exceeds the
// chunk size. Chunking is a pure function of text and configuration, so
// a document always yields the same chunks.
type Chunker struct {
	ChunkSize    int
	ChunkOverlap int
	MinChunkSize int
}

// NewChunker creates a chunker from the given limits.
func NewChunker(chunkSize int, chunkOverlap int, minChunkSize int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %v", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, chunk size), got %v", chunkOverlap)
	}
	if minChunkSize <= 0 || minChunkSize > chunkSize {
		return nil, fmt.Errorf("min chunk size must be in (0, chunk size], got %v", minChunkSize)
	}
	return &Chunker{
		ChunkSize:    chunkSize,
		ChunkOverlap: chunkOverlap,
		MinChunkSize: minChunkSize,
	}, nil
}

// span is a half-open [start, end) slice of the normalized text.
type span struct {
	start int
	end   int
}

func (s span) len() int {
	return s.end - s.start
}

// Chunk splits the document content into chunks with deterministic ids
// derived from the document rid and the chunk sequence index. StartPos
// and EndPos are exact offsets into the trimmed content, with the
// carried overlap included in StartPos.
func (c *Chunker) Chunk(document *model.Document) ([]*model.Chunk, error) {
	text := strings.TrimSpace(document.Content)
	if text == "" {
		return nil, errors.Join(model.ErrChunking, fmt.Errorf("document %v has no content", document.Source))
	}
	if len(text) < c.MinChunkSize {
		return nil, errors.Join(model.ErrChunking, fmt.Errorf("document %v content below minimum chunk size", document.Source))
	}

	spans := c.packSpans(c.segmentBounds(text))

	chunks := make([]*model.Chunk, 0, len(spans))
	for i, coverage := range spans {
		start := coverage.start
		if i > 0 && c.ChunkOverlap > 0 {
			start = c.overlapStart(text, coverage)
		}
		content := text[start:coverage.end]

		chunks = append(chunks, &model.Chunk{
			ID:          model.ChunkID(document.RID, i),
			DocumentRID: document.RID,
			Index:       i,
			Content:     content,
			StartPos:    start,
			EndPos:      coverage.end,
			Metadata:    model.Metadata{"chunk_size": len(content)},
		})
	}

	return chunks, nil
}

const paragraphSeparator = "\n\n"

// segmentBounds cuts the text into segments no longer than the chunk
// size, preferring paragraph boundaries and falling back to sentence
// boundaries for oversized paragraphs. The segments partition the text,
// no character is dropped.
func (c *Chunker) segmentBounds(text string) []span {
	var segments []span

	start := 0
	for start < len(text) {
		end := strings.Index(text[start:], paragraphSeparator)
		if end < 0 {
			end = len(text)
		} else {
			// The separator stays attached to the preceding paragraph.
			end = start + end + len(paragraphSeparator)
		}

		paragraph := span{start: start, end: end}
		if paragraph.len() <= c.ChunkSize {
			segments = append(segments, paragraph)
		} else {
			segments = append(segments, c.splitParagraph(text, paragraph)...)
		}
		start = end
	}

	return segments
}

var sentenceEndings = regexp.MustCompile(`[.!?;]`)

// minSentenceLen bounds a standalone sentence fragment. Shorter
// fragments stay attached to the neighboring sentence instead of
// forming a segment of their own.
const minSentenceLen = 10

// splitParagraph cuts an oversized paragraph after sentence delimiters,
// keeping the delimiters with the preceding sentence. A sentence that
// still exceeds the chunk size is split into fixed character windows.
func (c *Chunker) splitParagraph(text string, paragraph span) []span {
	var sentences []span

	last := paragraph.start
	for _, match := range sentenceEndings.FindAllStringIndex(text[paragraph.start:paragraph.end], -1) {
		cut := paragraph.start + match[1]
		if cut-last < minSentenceLen || paragraph.end-cut < minSentenceLen {
			continue
		}
		sentences = append(sentences, span{start: last, end: cut})
		last = cut
	}
	if last < paragraph.end {
		sentences = append(sentences, span{start: last, end: paragraph.end})
	}

	var segments []span
	for _, sentence := range sentences {
		for sentence.len() > c.ChunkSize {
			segments = append(segments, span{start: sentence.start, end: sentence.start + c.ChunkSize})
			sentence.start += c.ChunkSize
		}
		if sentence.len() > 0 {
			segments = append(segments, sentence)
		}
	}

	return segments
}

// packSpans merges adjacent segments into chunk coverage spans of at
// most the chunk size. The spans stay contiguous and cover the whole
// text. A coverage span that would close below the minimum size is
// filled up to the cap with a hard cut into the following segment; a
// sub-minimum tail is merged back into its predecessor when the merged
// span still fits the cap, otherwise it stays a shorter final chunk.
func (c *Chunker) packSpans(segments []span) []span {
	var spans []span
	current := segments[0]

	for _, segment := range segments[1:] {
		if segment.end-current.start <= c.ChunkSize {
			current.end = segment.end
			continue
		}

		if current.len() < c.MinChunkSize {
			current.end = current.start + c.ChunkSize
			spans = append(spans, current)
			current = span{start: current.end, end: segment.end}
			continue
		}

		spans = append(spans, current)
		current = segment
	}

	if current.len() < c.MinChunkSize && len(spans) > 0 &&
		spans[len(spans)-1].len()+current.len() <= c.ChunkSize {
		spans[len(spans)-1].end = current.end
	} else {
		spans = append(spans, current)
	}

	return spans
}

// overlapStart extends a chunk's coverage backwards by the configured
// overlap, snapped forward to a word boundary. The overlap shrinks when
// the coverage alone is close to the chunk size, the size cap always
// wins over the overlap width.
func (c *Chunker) overlapStart(text string, coverage span) int {
	start := max(coverage.start-c.ChunkOverlap, coverage.end-c.ChunkSize, 0)
	if start >= coverage.start {
		return coverage.start
	}
	if cut := strings.Index(text[start:coverage.start], " "); cut >= 0 {
		start += cut + 1
	}
	return start
}
