package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// decodePDF renders document info followed by the text of each non-empty
// page. A page that fails to decode gets an inline error marker instead
// of aborting the document.
func decodePDF(data []byte) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open PDF: %w", err)
	}

	var parts []string
	if meta := pdfMetadata(reader); len(meta) > 0 {
		parts = append(parts, "=== PDF METADATA ===")
		parts = append(parts, meta...)
	}
	parts = append(parts, "\n=== CONTENT ===")

	total := reader.NumPage()
	for i := 1; i <= total; i++ {
		text, pageErr := pageText(reader, i)
		if pageErr != nil {
			parts = append(parts, fmt.Sprintf("\n--- PAGE %d (Error: %v) ---", i, pageErr))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, fmt.Sprintf("\n--- PAGE %d of %d ---", i, total))
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

func pageText(reader *pdf.Reader, n int) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	page := reader.Page(n)
	if page.V.IsNull() {
		return "", nil
	}
	return page.GetPlainText(nil)
}

// pdfMetadata returns "Key: value" lines for the string entries of the
// trailer's Info dictionary.
func pdfMetadata(reader *pdf.Reader) []string {
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return nil
	}
	var lines []string
	for _, key := range info.Keys() {
		v := info.Key(key)
		if v.Kind() != pdf.String {
			continue
		}
		if s := strings.TrimSpace(v.Text()); s != "" {
			lines = append(lines, fmt.Sprintf("%s: %s", key, s))
		}
	}
	return lines
}
