package digest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// Section is one level-two heading of a digest and the list items under it.
// Markdown holds the same items with their inline markup kept.
type Section struct {
	Heading  string   `json:"heading"`
	Bullets  []string `json:"bullets"`
	Markdown []string `json:"-"`
}

// Summary is the outline of a digest document.
type Summary struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// Section returns the section with the given heading, or nil.
func (s Summary) Section(heading string) *Section {
	for i := range s.Sections {
		if strings.EqualFold(s.Sections[i].Heading, heading) {
			return &s.Sections[i]
		}
	}
	return nil
}

// Summarize extracts the title (first level-one heading), each level-two
// section and the plain text of the list items directly under it.
func Summarize(markdown string) Summary {
	src := []byte(markdown)
	doc := md.Parser().Parse(text.NewReader(src))

	sum := Summary{Sections: []Section{}}
	var cur *Section
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		switch node := n.(type) {
		case *ast.Heading:
			title := plainText(node, src)
			switch node.Level {
			case 1:
				if sum.Title == "" {
					sum.Title = title
				}
			case 2:
				sum.Sections = append(sum.Sections, Section{Heading: title, Bullets: []string{}, Markdown: []string{}})
				cur = &sum.Sections[len(sum.Sections)-1]
			}
		case *ast.List:
			if cur == nil {
				continue
			}
			for li := node.FirstChild(); li != nil; li = li.NextSibling() {
				if b := plainText(li, src); b != "" {
					cur.Bullets = append(cur.Bullets, b)
					cur.Markdown = append(cur.Markdown, rawText(li, src))
				}
			}
		}
	}
	return sum
}

// RenderHTML converts a digest to an HTML fragment.
func RenderHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	collectText(n, src, &b)
	return strings.Join(strings.Fields(b.String()), " ")
}

// rawText returns the source lines of n's text blocks, nested lists
// excluded.
func rawText(n ast.Node, src []byte) string {
	var b strings.Builder
	_ = ast.Walk(n, func(c ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || c.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		if _, nested := c.(*ast.List); nested {
			return ast.WalkSkipChildren, nil
		}
		lines := c.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			b.Write(seg.Value(src))
			b.WriteByte(' ')
		}
		return ast.WalkContinue, nil
	})
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n ast.Node, src []byte, b *strings.Builder) {
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch t := c.(type) {
		case *ast.Text:
			b.Write(t.Segment.Value(src))
			if t.SoftLineBreak() || t.HardLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(t.Value)
		case *ast.AutoLink:
			b.Write(t.URL(src))
		default:
			collectText(c, src, b)
			if c.Type() == ast.TypeBlock {
				b.WriteByte(' ')
			}
		}
	}
}
