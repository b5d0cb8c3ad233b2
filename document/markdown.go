package document

import (
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// DecodeMarkdown builds a document from markdown: the first H1 becomes the
// title, paragraphs before the first H2 become the introduction, a bullet
// list before the first H2 becomes the learning points, H2s open sections and
// H3s open subsections. Deeper heading levels fold into the enclosing
// subsection as paragraphs.
func DecodeMarkdown(r io.Reader) (*Document, error) {
	source, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	root := goldmark.New().Parser().Parse(text.NewReader(source))

	var doc Document
	var section *Section    // current H2 section, nil while in the preamble
	var subsection *Section // current H3 subsection within section

	flushSub := func() {
		if section != nil && subsection != nil {
			section.Subsections = append(section.Subsections, *subsection)
			subsection = nil
		}
	}
	flushSection := func() {
		flushSub()
		if section != nil {
			doc.Sections = append(doc.Sections, *section)
			section = nil
		}
	}
	addText := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		switch {
		case subsection != nil:
			subsection.Items = append(subsection.Items, s)
		case section != nil:
			section.Items = append(section.Items, s)
		default:
			doc.Introduction = append(doc.Introduction, s)
		}
	}

	for n := root.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			switch {
			case node.Level == 1 && doc.Title == "":
				doc.Title = nodeText(node, source)
			case node.Level <= 2:
				flushSection()
				section = &Section{Heading: nodeText(node, source)}
			case node.Level == 3 && section != nil:
				flushSub()
				subsection = &Section{Heading: nodeText(node, source)}
			default:
				addText(nodeText(node, source))
			}
		case *ast.List:
			items := listItems(node, source)
			if section == nil && len(doc.LearningPoints) == 0 {
				doc.LearningPoints = items
				continue
			}
			for _, item := range items {
				addText(item)
			}
		default:
			addText(nodeText(n, source))
		}
	}
	flushSection()

	if doc.IsEmpty() {
		return nil, ErrEmptyDocument
	}
	return &doc, nil
}

// nodeText collects the plain text of a block node, joining inline runs with
// spaces so soft line breaks read naturally.
func nodeText(n ast.Node, source []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		if t, ok := c.(*ast.Text); ok {
			b.Write(t.Segment.Value(source))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

func listItems(list *ast.List, source []byte) []string {
	var items []string
	for li := list.FirstChild(); li != nil; li = li.NextSibling() {
		if s := nodeText(li, source); s != "" {
			items = append(items, s)
		}
	}
	return items
}
