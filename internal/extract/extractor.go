// Package extract walks a Drive folder, decodes every file it can read
// into text and joins the results into a single corpus with provenance
// headers and a processing summary.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/rohankatakam/reqtaker/internal/drive"
	rterrors "github.com/rohankatakam/reqtaker/internal/errors"
)

// ErrNoFiles is returned when the folder tree contains no files.
var ErrNoFiles = errors.New("no files found")

// Source is the subset of the Drive API the extractor needs.
type Source interface {
	Folder(ctx context.Context, id string) (*drive.Folder, error)
	ListFiles(ctx context.Context, parentID string) ([]drive.File, error)
	ListFolders(ctx context.Context, parentID string) ([]drive.Folder, error)
	Download(ctx context.Context, id string) ([]byte, error)
	Export(ctx context.Context, id, mimeType string) ([]byte, error)
}

// Progress receives per-file updates; the CLI drives a progress bar with it.
type Progress interface {
	Start(total int)
	Advance(f drive.File, ok bool)
	Finish()
}

type Options struct {
	// Recursive walks every nested subfolder; otherwise only the root is listed.
	Recursive bool
	// MaxFileBytes skips files whose reported size exceeds it; 0 disables.
	MaxFileBytes int64
	Cache        *Cache
	Progress     Progress
}

// FileResult is the outcome for one file.
type FileResult struct {
	File    drive.File
	Kind    Kind
	Content string
	Err     error
	Cached  bool
}

func (r FileResult) OK() bool { return r.Err == nil }

// Result is one full extraction run.
type Result struct {
	FolderID   string
	FolderName string
	Files      []FileResult
	Stats      *Stats
	// Content is the summary followed by every file block.
	Content string
}

type Extractor struct {
	source Source
	opts   Options
	logger *slog.Logger
}

func NewExtractor(source Source, opts Options) *Extractor {
	return &Extractor{
		source: source,
		opts:   opts,
		logger: slog.Default().With("component", "extract"),
	}
}

// Collect lists every file under folderID. Files in nested folders carry
// the slash-joined folder path in Subfolder.
func (e *Extractor) Collect(ctx context.Context, folderID string) (*drive.Folder, []drive.File, error) {
	folder, err := e.source.Folder(ctx, folderID)
	if err != nil {
		return nil, nil, err
	}
	e.logger.Info("📂 processing folder", "folder", folder.Name, "folder_id", folderID)

	files, err := e.collect(ctx, folderID, "")
	if err != nil {
		return nil, nil, err
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("%w: No files found in folder %s or its subfolders", ErrNoFiles, folderID)
	}
	e.logger.Info("✅ found files", "count", len(files))
	return folder, files, nil
}

func (e *Extractor) collect(ctx context.Context, folderID, label string) ([]drive.File, error) {
	files, err := e.source.ListFiles(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("Failed to get files from directory %s: %w", folderID, err)
	}
	out := make([]drive.File, 0, len(files))
	for _, f := range files {
		if f.IsFolder() {
			continue
		}
		f.Subfolder = label
		out = append(out, f)
	}

	if !e.opts.Recursive {
		return out, nil
	}

	subfolders, err := e.source.ListFolders(ctx, folderID)
	if err != nil {
		// A subfolder listing failure loses that branch, not the run.
		e.logger.Warn("failed to list subfolders", "folder_id", folderID, "error", err)
		return out, nil
	}
	for _, sub := range subfolders {
		subLabel := sub.Name
		if label != "" {
			subLabel = label + "/" + sub.Name
		}
		e.logger.Info("📁 processing subfolder", "subfolder", subLabel)
		nested, err := e.collect(ctx, sub.ID, subLabel)
		if err != nil {
			e.logger.Warn("skipping subfolder", "subfolder", subLabel, "error", err)
			continue
		}
		out = append(out, nested...)
	}
	return out, nil
}

// Process extracts every file under folderID, one at a time. Per-file
// failures are recorded in the result and never abort the run; only
// folder lookup errors, an empty tree and cancellation return an error.
func (e *Extractor) Process(ctx context.Context, folderID string) (*Result, error) {
	e.logger.Info("🚀 starting Google Drive analysis", "folder_id", folderID)

	folder, files, err := e.Collect(ctx, folderID)
	if err != nil {
		return nil, err
	}

	res := &Result{FolderID: folderID, FolderName: folder.Name, Stats: NewStats()}
	if e.opts.Progress != nil {
		e.opts.Progress.Start(len(files))
		defer e.opts.Progress.Finish()
	}

	var blocks []string
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fr := e.ExtractFile(ctx, f)
		res.Files = append(res.Files, fr)
		res.Stats.Record(f, utf8.RuneCountInString(fr.Content), fr.OK())
		if e.opts.Progress != nil {
			e.opts.Progress.Advance(f, fr.OK())
		}

		if fr.OK() {
			blocks = append(blocks, fileBlock(fr))
			e.logger.Info("✅ processed", "file", f.Name, "chars", humanize.Comma(int64(utf8.RuneCountInString(fr.Content))), "cached", fr.Cached)
		} else {
			blocks = append(blocks, fmt.Sprintf("\n❌ Failed to process %s: %v", f.Name, fr.Err))
			e.logger.Warn("⚠️ could not process", "file", f.Name, "error", rterrors.ExtractionError(fr.Err, f.Name))
		}
	}

	res.Content = res.Stats.Summary() + "\n" + strings.Join(blocks, "\n")
	e.logger.Info("🎉 processing complete", "succeeded", res.Stats.Succeeded, "failed", res.Stats.Failed)
	return res, nil
}

func fileBlock(fr FileResult) string {
	f := fr.File
	lines := []string{"\n" + rule, "FILE: " + f.Name}
	if f.Subfolder != "" {
		lines = append(lines, "SUBFOLDER: "+f.Subfolder)
	}
	size := "Unknown"
	if f.Size > 0 || !strings.Contains(f.MimeType, "google-apps") {
		size = strconv.FormatInt(f.Size, 10)
	}
	modified := f.ModifiedTime
	if modified == "" {
		modified = "Unknown"
	}
	lines = append(lines,
		"TYPE: "+f.MimeType,
		"SIZE: "+size+" bytes",
		"MODIFIED: "+modified,
		rule,
		fr.Content,
	)
	return strings.Join(lines, "\n")
}

// ExtractFile classifies and decodes a single file, consulting the cache first.
func (e *Extractor) ExtractFile(ctx context.Context, f drive.File) FileResult {
	kind := Classify(f.MimeType, f.Name)
	fr := FileResult{File: f, Kind: kind}
	e.logger.Debug("🔄 processing", "file", f.Name, "mime_type", f.MimeType, "kind", kind)

	if e.opts.Cache != nil {
		if content, ok := e.opts.Cache.Get(f); ok {
			fr.Content, fr.Cached = content, true
			return fr
		}
	}

	if e.opts.MaxFileBytes > 0 && f.Size > e.opts.MaxFileBytes {
		fr.Err = fmt.Errorf("File too large: %s (limit %s)",
			humanize.Bytes(uint64(f.Size)), humanize.Bytes(uint64(e.opts.MaxFileBytes)))
		return fr
	}

	content, err := e.decode(ctx, f, kind)
	if err != nil {
		fr.Err = err
		return fr
	}
	fr.Content = content

	if e.opts.Cache != nil {
		if err := e.opts.Cache.Put(f, kind, content); err != nil {
			e.logger.Warn("failed to cache extracted content", "file", f.Name, "error", err)
		}
	}
	return fr
}

var failurePrefix = map[Kind]string{
	KindGoogleDoc:    "Error extracting Google Doc",
	KindGoogleSheet:  "Error extracting Google Sheet",
	KindGoogleSlides: "Error extracting Google Slides",
	KindPDF:          "Error reading PDF",
	KindText:         "Error reading text file",
	KindDOCX:         "Error reading DOCX",
	KindExcel:        "Error reading Excel file",
	KindPPTX:         "Error reading PowerPoint file",
}

func (e *Extractor) decode(ctx context.Context, f drive.File, kind Kind) (string, error) {
	var (
		content string
		err     error
	)
	switch kind {
	case KindGoogleDoc:
		content, err = e.googleDoc(ctx, f.ID)
	case KindGoogleSheet:
		content, err = e.googleSheet(ctx, f.ID)
	case KindGoogleSlides:
		content, err = e.googleSlides(ctx, f.ID)
	case KindUnknown:
		return e.unknown(ctx, f)
	default:
		content, err = e.binary(ctx, f.ID, kind)
	}
	if err != nil {
		return "", fmt.Errorf("%s: %w", failurePrefix[kind], err)
	}
	return content, nil
}

func (e *Extractor) binary(ctx context.Context, id string, kind Kind) (string, error) {
	data, err := e.source.Download(ctx, id)
	if err != nil {
		return "", err
	}
	switch kind {
	case KindPDF:
		return decodePDF(data)
	case KindText:
		return decodeText(data)
	case KindDOCX:
		return decodeDOCX(data)
	case KindExcel:
		return decodeWorkbook(data, "=== EXCEL WORKBOOK ===")
	case KindPPTX:
		return decodePPTX(data)
	}
	return "", fmt.Errorf("no decoder for %s", kind)
}

// unknown accepts a file of unrecognised type only if its bytes read as text.
func (e *Extractor) unknown(ctx context.Context, f drive.File) (string, error) {
	unsupported := fmt.Errorf("Unsupported file type: %s (%s)", f.Name, f.MimeType)

	data, err := e.source.Download(ctx, f.ID)
	if err != nil || !looksLikeText(data) {
		return "", unsupported
	}
	content, err := decodeText(data)
	if err != nil {
		return "", unsupported
	}
	return content, nil
}
