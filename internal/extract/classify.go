package extract

import (
	"strings"

	"github.com/rohankatakam/reqtaker/internal/drive"
)

// Kind is the decoder family a file is routed to.
type Kind int

const (
	KindUnknown Kind = iota
	KindGoogleDoc
	KindGoogleSheet
	KindGoogleSlides
	KindPDF
	KindText
	KindDOCX
	KindExcel
	KindPPTX
)

var kindNames = map[Kind]string{
	KindUnknown:      "unknown",
	KindGoogleDoc:    "google-doc",
	KindGoogleSheet:  "google-sheet",
	KindGoogleSlides: "google-slides",
	KindPDF:          "pdf",
	KindText:         "text",
	KindDOCX:         "docx",
	KindExcel:        "excel",
	KindPPTX:         "pptx",
}

func (k Kind) String() string { return kindNames[k] }

var textExtensions = map[string]bool{
	"txt": true, "md": true, "csv": true, "py": true, "js": true,
	"html": true, "css": true, "json": true, "xml": true,
}

// Classify routes a file by MIME type and extension. Google-native types
// win, then PDF and text. Office families match by extension before any
// MIME substring, and the generic "document" substring is checked last
// because the OOXML spreadsheet and presentation types contain it too.
func Classify(mimeType, name string) Kind {
	switch {
	case strings.Contains(mimeType, "google-apps.document"):
		return KindGoogleDoc
	case strings.Contains(mimeType, "google-apps.spreadsheet"):
		return KindGoogleSheet
	case strings.Contains(mimeType, "google-apps.presentation"):
		return KindGoogleSlides
	}

	ext := drive.File{Name: name}.Extension()
	switch {
	case ext == "pdf" || strings.Contains(mimeType, "pdf"):
		return KindPDF
	case textExtensions[ext] || strings.Contains(mimeType, "text/"):
		return KindText
	}

	switch ext {
	case "docx", "doc":
		return KindDOCX
	case "xlsx", "xls":
		return KindExcel
	case "pptx", "ppt":
		return KindPPTX
	}

	switch {
	case strings.Contains(mimeType, "spreadsheet") || strings.Contains(mimeType, "ms-excel"):
		return KindExcel
	case strings.Contains(mimeType, "presentation") || strings.Contains(mimeType, "powerpoint"):
		return KindPPTX
	case strings.Contains(mimeType, "word") || strings.Contains(mimeType, "document"):
		return KindDOCX
	}
	return KindUnknown
}
