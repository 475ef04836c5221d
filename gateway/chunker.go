package gateway

import (
	"strings"
	"unicode/utf8"
)

// DefaultChunkSize is the target byte size for report message chunks.
const DefaultChunkSize = 500

// ChunkText splits text into chunks of roughly size bytes, preferring
// paragraph boundaries so markdown structure survives streaming. Paragraphs
// are packed greedily; a single paragraph larger than size is hard-split.
// Concatenating the chunks reproduces the input exactly.
func ChunkText(text string, size int) []string {
	if text == "" {
		return nil
	}
	if size <= 0 {
		size = DefaultChunkSize
	}

	paragraphs := strings.SplitAfter(text, "\n\n")

	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(p) > size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if len(p) > size {
			pieces := hardSplit(p, size)
			chunks = append(chunks, pieces[:len(pieces)-1]...)
			current.WriteString(pieces[len(pieces)-1])
			continue
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// hardSplit cuts s into pieces of at most size bytes. Each cut backs off to
// the previous rune boundary so multi-byte UTF-8 sequences are never torn
// across pieces; chunks are JSON-encoded independently downstream.
func hardSplit(s string, size int) []string {
	var pieces []string
	for len(s) > size {
		cut := size
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			// invalid UTF-8 with no boundary in range; split at size
			cut = size
		}
		pieces = append(pieces, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		pieces = append(pieces, s)
	}
	return pieces
}
