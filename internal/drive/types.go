package drive

import (
	"path"
	"strings"
)

// Google Workspace MIME types.
const (
	FolderMimeType = "application/vnd.google-apps.folder"
	DocMimeType    = "application/vnd.google-apps.document"
	SheetMimeType  = "application/vnd.google-apps.spreadsheet"
	SlidesMimeType = "application/vnd.google-apps.presentation"

	XLSXMimeType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// File is the metadata kept for each file found under a folder.
type File struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	MimeType     string `json:"mime_type"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
	// Subfolder is the slash-joined path of folder names below the root
	// folder; empty for files directly in the root.
	Subfolder string `json:"subfolder,omitempty"`
}

// Extension returns the lowercase text after the last dot of the name,
// or "" when the name has no dot.
func (f File) Extension() string {
	if !strings.Contains(f.Name, ".") {
		return ""
	}
	return strings.ToLower(strings.TrimPrefix(path.Ext(f.Name), "."))
}

// IsFolder reports whether the entry is a Drive folder.
func (f File) IsFolder() bool {
	return f.MimeType == FolderMimeType
}

type Folder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TypeLabel is a short human label for a MIME type, used by the
// diagnostic listing.
func TypeLabel(mimeType string) string {
	switch {
	case mimeType == DocMimeType:
		return "Google Doc"
	case mimeType == SheetMimeType:
		return "Google Sheet"
	case mimeType == SlidesMimeType:
		return "Google Slides"
	case mimeType == FolderMimeType:
		return "Folder"
	case strings.Contains(mimeType, "pdf"):
		return "PDF"
	case strings.Contains(mimeType, "wordprocessingml") || mimeType == "application/msword":
		return "Word Doc"
	case strings.Contains(mimeType, "spreadsheetml") || mimeType == "application/vnd.ms-excel":
		return "Excel"
	case strings.Contains(mimeType, "presentationml") || mimeType == "application/vnd.ms-powerpoint":
		return "PowerPoint"
	case strings.HasPrefix(mimeType, "image/"):
		return "Image"
	case strings.HasPrefix(mimeType, "text/"):
		return "Text"
	default:
		return "File"
	}
}
