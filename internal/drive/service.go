// Package drive wraps the Google Drive v3 API with the handful of read-only
// calls needed to walk a folder and fetch file content.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
	gdrive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	rterrors "github.com/rohankatakam/reqtaker/internal/errors"
)

var (
	ErrFolderNotFound     = errors.New("folder not found")
	ErrFolderAccessDenied = errors.New("folder access denied")
	ErrFileTooLarge       = errors.New("file exceeds size limit")
)

const listFields = "nextPageToken, files(id, name, mimeType, size, modifiedTime, parents)"

// Service is a rate-limited Drive client.
type Service struct {
	files       *gdrive.FilesService
	pageSize    int64
	maxBytes    int64
	rateLimiter *rate.Limiter
	logger      *slog.Logger
}

type Options struct {
	PageSize int64
	// MaxDownloadBytes caps a single download or export; 0 means no cap.
	MaxDownloadBytes int64
	// RequestsPerSecond throttles API calls; 0 means 10.
	RequestsPerSecond float64
	// ClientOptions are extra google API options (endpoint overrides in tests).
	ClientOptions []option.ClientOption
}

// NewService builds a Service on an already authorized HTTP client.
func NewService(ctx context.Context, httpClient *http.Client, opts Options) (*Service, error) {
	clientOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts.ClientOptions...)
	svc, err := gdrive.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	if opts.PageSize <= 0 || opts.PageSize > 1000 {
		opts.PageSize = 100
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}

	return &Service{
		files:       svc.Files,
		pageSize:    opts.PageSize,
		maxBytes:    opts.MaxDownloadBytes,
		rateLimiter: rate.NewLimiter(rate.Limit(rps), 1),
		logger:      slog.Default().With("component", "drive"),
	}, nil
}

// Folder looks up folder metadata, mapping 404 and 403 to the sentinel errors.
func (s *Service) Folder(ctx context.Context, id string) (*Folder, error) {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	f, err := s.files.Get(id).
		Fields("id, name, mimeType").
		SupportsAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			switch apiErr.Code {
			case http.StatusNotFound:
				return nil, fmt.Errorf("%w: Folder %s not found. Please check the folder ID and permissions.", ErrFolderNotFound, id)
			case http.StatusForbidden:
				return nil, fmt.Errorf("%w: Access denied to folder %s. Please check sharing permissions.", ErrFolderAccessDenied, id)
			}
		}
		return nil, callError(err, fmt.Sprintf("get folder %s", id))
	}
	return &Folder{ID: f.Id, Name: f.Name}, nil
}

// ListFiles returns every non-folder, non-trashed child of parentID.
func (s *Service) ListFiles(ctx context.Context, parentID string) ([]File, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false and mimeType != '%s'", escapeQuery(parentID), FolderMimeType)
	return s.list(ctx, q)
}

// ListFolders returns the direct, non-trashed subfolders of parentID.
func (s *Service) ListFolders(ctx context.Context, parentID string) ([]Folder, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false and mimeType = '%s'", escapeQuery(parentID), FolderMimeType)
	entries, err := s.list(ctx, q)
	if err != nil {
		return nil, err
	}
	folders := make([]Folder, 0, len(entries))
	for _, e := range entries {
		folders = append(folders, Folder{ID: e.ID, Name: e.Name})
	}
	return folders, nil
}

func (s *Service) list(ctx context.Context, query string) ([]File, error) {
	var out []File
	call := s.files.List().
		Q(query).
		Fields(listFields).
		PageSize(s.pageSize).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true)

	err := call.Pages(ctx, func(page *gdrive.FileList) error {
		for _, f := range page.Files {
			out = append(out, File{
				ID:           f.Id,
				Name:         f.Name,
				MimeType:     f.MimeType,
				Size:         f.Size,
				ModifiedTime: f.ModifiedTime,
			})
		}
		if page.NextPageToken != "" {
			return s.rateLimiter.Wait(ctx)
		}
		return nil
	})
	if err != nil {
		return nil, callError(err, "list files")
	}
	s.logger.Debug("listed drive entries", "query", query, "count", len(out))
	return out, nil
}

// Download fetches the raw bytes of a binary (non-Google-native) file.
func (s *Service) Download(ctx context.Context, id string) ([]byte, error) {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := s.files.Get(id).SupportsAllDrives(true).Context(ctx).Download()
	if err != nil {
		return nil, callError(err, fmt.Sprintf("download %s", id))
	}
	defer resp.Body.Close()
	return s.readBody(resp.Body)
}

// Export converts a Google Docs/Sheets/Slides file to mimeType.
func (s *Service) Export(ctx context.Context, id, mimeType string) ([]byte, error) {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	resp, err := s.files.Export(id, mimeType).Context(ctx).Download()
	if err != nil {
		return nil, callError(err, fmt.Sprintf("export %s as %s", id, mimeType))
	}
	defer resp.Body.Close()
	return s.readBody(resp.Body)
}

func (s *Service) readBody(r io.Reader) ([]byte, error) {
	if s.maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxBytes {
		return nil, ErrFileTooLarge
	}
	return data, nil
}

// callError classifies a failed API call. An HTTP status from Drive is an
// external error; a failure before any response arrived is a network error.
// Cancellation passes through untagged.
func callError(err error, message string) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", message, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return rterrors.ExternalError(err, message)
	}
	return rterrors.NetworkError(err, message)
}

func escapeQuery(id string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(id)
}
