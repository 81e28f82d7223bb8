// Package extract turns a raw HTML page into capture content and metadata.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/hpungsan/synapse/internal/capture"
)

// MaxHTMLBytes bounds how much input FromHTML reads.
const MaxHTMLBytes = 10 << 20

// Page is the extracted form of an HTML document.
type Page struct {
	Title       string
	URL         string
	Content     string // Markdown rendering of <body>
	Description string
	Author      string
	SiteName    string
	Keywords    []string
	WordCount   int
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
		table.NewTablePlugin(),
	),
)

// FromHTML parses r and returns the page title, meta tags, and body as Markdown.
// pageURL resolves relative links and is copied to Page.URL.
func FromHTML(r io.Reader, pageURL string) (*Page, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxHTMLBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read html: %w", err)
	}
	if len(data) > MaxHTMLBytes {
		return nil, fmt.Errorf("html exceeds %d bytes", MaxHTMLBytes)
	}

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	page := &Page{URL: pageURL, Title: findTitle(doc)}
	readMeta(doc, page)
	if page.Title == "" {
		page.Title = page.SiteName
	}

	body := findElement(doc, atom.Body)
	if body == nil {
		body = doc
	}
	stripElements(body, atom.Script, atom.Style, atom.Noscript, atom.Template)

	var buf bytes.Buffer
	if err := html.Render(&buf, body); err != nil {
		return nil, fmt.Errorf("render body: %w", err)
	}

	md, err := mdConverter.ConvertString(buf.String(), converter.WithDomain(pageURL))
	if err != nil {
		return nil, fmt.Errorf("convert to markdown: %w", err)
	}
	page.Content = strings.TrimSpace(md)
	page.WordCount = capture.CountWords(page.Content)

	return page, nil
}

// Metadata maps the page onto documented capture metadata keys.
// Empty fields are omitted.
func (p *Page) Metadata() capture.Metadata {
	m := capture.Metadata{
		capture.MetaWordCount: capture.Int(p.WordCount),
	}
	if p.Title != "" {
		m[capture.MetaTitle] = capture.String(p.Title)
	}
	if p.Description != "" {
		m[capture.MetaDescription] = capture.String(p.Description)
	}
	if p.Author != "" {
		m[capture.MetaAuthor] = capture.String(p.Author)
	}
	if p.SiteName != "" {
		m[capture.MetaSiteName] = capture.String(p.SiteName)
	}
	if len(p.Keywords) > 0 {
		m[capture.MetaKeywords] = capture.List(p.Keywords...)
	}
	return m
}

// Input builds a page capture from the extracted fields.
func (p *Page) Input() capture.Input {
	return capture.Input{
		Kind:     capture.KindPage,
		Content:  p.Content,
		URL:      p.URL,
		Title:    p.Title,
		Metadata: p.Metadata(),
	}
}

func findTitle(n *html.Node) string {
	if t := findElement(n, atom.Title); t != nil {
		return strings.TrimSpace(textOf(t))
	}
	return ""
}

// readMeta fills description, author, keywords, and site name from <meta> tags.
// Named tags win over their og: equivalents.
func readMeta(n *html.Node, page *Page) {
	var ogTitle, ogDescription string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			key := strings.ToLower(attr(n, "name"))
			if key == "" {
				key = strings.ToLower(attr(n, "property"))
			}
			val := strings.TrimSpace(attr(n, "content"))
			switch key {
			case "description":
				page.Description = val
			case "author", "article:author":
				if page.Author == "" {
					page.Author = val
				}
			case "keywords":
				page.Keywords = splitKeywords(val)
			case "og:site_name":
				page.SiteName = val
			case "og:title":
				ogTitle = val
			case "og:description":
				ogDescription = val
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	if page.Description == "" {
		page.Description = ogDescription
	}
	if page.Title == "" {
		page.Title = ogTitle
	}
}

func splitKeywords(s string) []string {
	var out []string
	for _, kw := range strings.Split(s, ",") {
		if kw = strings.TrimSpace(kw); kw != "" {
			out = append(out, kw)
		}
	}
	return out
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

// stripElements removes every descendant element of the given types.
func stripElements(n *html.Node, atoms ...atom.Atom) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.ElementNode && hasAtom(atoms, c.DataAtom) {
			n.RemoveChild(c)
		} else {
			stripElements(c, atoms...)
		}
		c = next
	}
}

func hasAtom(atoms []atom.Atom, a atom.Atom) bool {
	for _, x := range atoms {
		if x == a {
			return true
		}
	}
	return false
}

func textOf(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
