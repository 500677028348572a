package extract

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/rohankatakam/reqtaker/internal/drive"
)

// Google-native files cannot be downloaded, only exported.

func (e *Extractor) googleDoc(ctx context.Context, id string) (string, error) {
	plain, err := e.source.Export(ctx, id, "text/plain")
	if err != nil {
		return "", err
	}
	content, err := decodeText(plain)
	if err != nil {
		return "", err
	}

	// The HTML export sometimes carries text (tables, footnotes) the
	// plain-text export drops; prefer it when it is more than 10% longer.
	if rich, err := e.source.Export(ctx, id, "text/html"); err == nil {
		if htmlText, err := htmlToText(string(rich)); err == nil {
			if float64(utf8.RuneCountInString(strings.TrimSpace(htmlText))) >
				float64(utf8.RuneCountInString(strings.TrimSpace(content)))*1.1 {
				content = htmlText
			}
		}
	} else {
		e.logger.Debug("html export failed, using plain text", "file_id", id, "error", err)
	}
	return content, nil
}

func (e *Extractor) googleSheet(ctx context.Context, id string) (string, error) {
	if data, err := e.source.Export(ctx, id, drive.XLSXMimeType); err == nil {
		content, err := decodeWorkbook(data, "=== GOOGLE SHEETS (ALL SHEETS) ===")
		if err == nil {
			return content, nil
		}
		e.logger.Debug("xlsx export unreadable, falling back to csv", "file_id", id, "error", err)
	}

	data, err := e.source.Export(ctx, id, "text/csv")
	if err != nil {
		return "", err
	}
	csv, err := decodeText(data)
	if err != nil {
		return "", err
	}
	return "=== GOOGLE SHEETS ===\n" + csv, nil
}

func (e *Extractor) googleSlides(ctx context.Context, id string) (string, error) {
	data, err := e.source.Export(ctx, id, "text/plain")
	if err != nil {
		return "", err
	}
	text, err := decodeText(data)
	if err != nil {
		return "", err
	}
	return "=== GOOGLE SLIDES ===\n" + text, nil
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"ul": true, "ol": true, "title": true,
}

// htmlToText returns the visible text of an HTML document, dropping
// script and style, with a newline after block elements.
func htmlToText(doc string) (string, error) {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			switch {
			case blockElements[n.Data]:
				sb.WriteByte('\n')
			case n.Data == "td" || n.Data == "th":
				sb.WriteString(" | ")
			}
		}
	}
	walk(root)
	return sb.String(), nil
}
