package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/siherrmann/fusionrag/model"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

// ReadDocument reads a source file and returns its normalized plain
// text. The format is derived from the file extension.
func ReadDocument(path string) (string, model.DocumentFormat, error) {
	format, err := model.FormatForPath(path)
	if err != nil {
		return "", "", err
	}

	var content string
	switch format {
	case model.FormatPDF:
		content, err = readPDF(path)
	case model.FormatMarkdown:
		content, err = readMarkdown(path)
	}
	if err != nil {
		return "", format, err
	}

	return content, format, nil
}

// readPDF extracts the plain text of all pages.
func readPDF(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", errors.Join(model.ErrChunking, fmt.Errorf("open pdf %v: %v", path, err))
	}
	defer file.Close()

	plainText, err := reader.GetPlainText()
	if err != nil {
		return "", errors.Join(model.ErrChunking, fmt.Errorf("extract pdf text %v: %v", path, err))
	}

	var buffer bytes.Buffer
	if _, err := buffer.ReadFrom(plainText); err != nil {
		return "", errors.Join(model.ErrChunking, fmt.Errorf("read pdf text %v: %v", path, err))
	}

	return normalizeWhitespace(buffer.String()), nil
}

// readMarkdown parses the markdown and keeps only the visible text,
// dropping code blocks, images and formatting syntax.
func readMarkdown(path string) (string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return "", errors.Join(model.ErrChunking, fmt.Errorf("read markdown %v: %v", path, err))
	}

	return ExtractMarkdownText(source), nil
}

// ExtractMarkdownText walks the markdown syntax tree and collects the
// text content, separating block elements with paragraph breaks.
func ExtractMarkdownText(source []byte) string {
	document := goldmark.New().Parser().Parse(gmtext.NewReader(source))

	var buffer bytes.Buffer
	ast.Walk(document, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		switch typed := node.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.CodeSpan, *ast.Image, *ast.HTMLBlock, *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			if entering {
				buffer.Write(typed.Segment.Value(source))
				if typed.SoftLineBreak() || typed.HardLineBreak() {
					buffer.WriteString(" ")
				}
			}
		default:
			if !entering && node.Type() == ast.TypeBlock {
				buffer.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return normalizeWhitespace(buffer.String())
}

var (
	blankLines = regexp.MustCompile(`\n\s*\n`)
	spaces     = regexp.MustCompile(`[ \t]+`)
)

// normalizeWhitespace collapses repeated blank lines and spaces while
// keeping paragraph breaks intact.
func normalizeWhitespace(text string) string {
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = spaces.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}
