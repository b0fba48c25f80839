package markdown

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// contextLines is how many lines before a query block are kept.
const contextLines = 10

// Normaliser extracts fenced KQL blocks from Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// Name returns the format name.
func (n *Normaliser) Name() string {
	return "markdown"
}

// Extensions returns the file extensions this normaliser handles.
func (n *Normaliser) Extensions() []string {
	return []string{".md", ".markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise returns one query per ```kql (or ```kusto) fenced block, in
// document order. A block is named by the nearest heading above it that
// follows the previous block, else by "<stem>_<index>". The lines between
// the previous block and this one, up to ten, are kept in the "context"
// attribute.
func (n *Normaliser) Normalise(_ context.Context, raw *domain.RawFile) ([]*domain.Query, error) {
	if raw == nil {
		return nil, domain.ErrInvalidInput
	}

	base := path.Base(raw.Path)
	stem := strings.TrimSuffix(base, path.Ext(base))
	source := raw.Location()

	var (
		queries []*domain.Query
		block   []string
		preceding []string
		heading string
		inKQL   bool
		inOther bool
	)

	for _, line := range strings.Split(string(raw.Content), "\n") {
		line = strings.TrimRight(line, "\r")
		fence, isFence := fenceInfo(line)

		switch {
		case inKQL:
			if isFence && fence == "" {
				index := len(queries)
				text := strings.Join(block, "\n")
				if strings.TrimSpace(text) != "" {
					name := heading
					if name == "" {
						name = fmt.Sprintf("%s_%d", stem, index)
					}
					queries = append(queries, domain.NewQuery(source, text,
						domain.WithName(name),
						domain.WithSourceType(domain.SourceTypeMarkdown),
						domain.WithSourceIndex(index),
						domain.WithAttributes(map[string]any{"context": lastLines(preceding)}),
					))
				}
				inKQL = false
				block, preceding, heading = nil, nil, ""
				continue
			}
			block = append(block, line)

		case inOther:
			if isFence && fence == "" {
				inOther = false
			}
			preceding = append(preceding, line)

		case isFence:
			if isKQLFence(fence) {
				inKQL = true
				continue
			}
			inOther = true
			preceding = append(preceding, line)

		default:
			if h, ok := headingText(line); ok {
				heading = h
			}
			preceding = append(preceding, line)
		}
	}

	return queries, nil
}

// fenceInfo reports whether line opens or closes a code fence, and the
// info string following the backticks.
func fenceInfo(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "```") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimLeft(trimmed, "`")), true
}

func isKQLFence(info string) bool {
	lang, _, _ := strings.Cut(info, " ")
	return strings.EqualFold(lang, "kql") || strings.EqualFold(lang, "kusto")
}

// headingText returns the text of an ATX heading.
func headingText(line string) (string, bool) {
	if !strings.HasPrefix(line, "#") {
		return "", false
	}
	text := strings.TrimSpace(strings.TrimLeft(line, "#"))
	if text == "" {
		return "", false
	}
	return text, true
}

func lastLines(lines []string) string {
	if len(lines) > contextLines {
		lines = lines[len(lines)-contextLines:]
	}
	return strings.Join(lines, "\n")
}
