// Package ingest turns uploaded research documents into plain text ready
// for segmentation.
package ingest

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned for document formats the service cannot
// extract text from.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// Extracted is the result of text extraction from one document.
type Extracted struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

// Extractor converts an uploaded document into analyzable text.
type Extractor interface {
	Extract(filename string, data []byte) (Extracted, error)
}

// TextExtractor handles plain-text and markdown documents. Binary formats
// like PDF are extracted by an upstream service before upload.
type TextExtractor struct{}

func NewTextExtractor() *TextExtractor { return &TextExtractor{} }

var textExtensions = map[string]bool{
	".txt":      true,
	".text":     true,
	".md":       true,
	".markdown": true,
	"":          true,
}

// Extract validates the format and normalizes line endings.
func (e *TextExtractor) Extract(filename string, data []byte) (Extracted, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !textExtensions[ext] {
		return Extracted{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return Extracted{
		Text:      text,
		WordCount: len(strings.Fields(text)),
	}, nil
}
