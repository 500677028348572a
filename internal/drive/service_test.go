package drive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	rterrors "github.com/rohankatakam/reqtaker/internal/errors"
)

func fakeDrive(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/files/")
		switch {
		case id == "missing":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":404,"message":"File not found"}}`))
		case id == "private":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"error":{"code":403,"message":"forbidden"}}`))
		case id == "doc1/export":
			assert.Equal(t, "text/plain", r.URL.Query().Get("mimeType"))
			w.Write([]byte("exported text"))
		case r.URL.Query().Get("alt") == "media":
			w.Write([]byte("raw bytes of " + id))
		default:
			json.NewEncoder(w).Encode(map[string]any{"id": id, "name": "Project Docs", "mimeType": FolderMimeType})
		}
	})
	mux.HandleFunc("/files", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(q.Get("q"), "mimeType = ") {
			json.NewEncoder(w).Encode(map[string]any{
				"files": []map[string]any{{"id": "sub1", "name": "Specs", "mimeType": FolderMimeType}},
			})
			return
		}
		if q.Get("pageToken") == "" {
			json.NewEncoder(w).Encode(map[string]any{
				"nextPageToken": "p2",
				"files": []map[string]any{
					{"id": "f1", "name": "notes.txt", "mimeType": "text/plain", "size": "12", "modifiedTime": "2024-05-01T10:00:00Z"},
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"files": []map[string]any{
				{"id": "doc1", "name": "Brief", "mimeType": DocMimeType, "modifiedTime": "2024-05-02T10:00:00Z"},
			},
		})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestService(t *testing.T, maxBytes int64) *Service {
	srv := fakeDrive(t)
	svc, err := NewService(context.Background(), srv.Client(), Options{
		MaxDownloadBytes:  maxBytes,
		RequestsPerSecond: 1000,
		ClientOptions:     []option.ClientOption{option.WithEndpoint(srv.URL + "/")},
	})
	require.NoError(t, err)
	return svc
}

func TestService_Folder(t *testing.T) {
	svc := newTestService(t, 0)
	ctx := context.Background()

	folder, err := svc.Folder(ctx, "root1")
	require.NoError(t, err)
	assert.Equal(t, "Project Docs", folder.Name)

	_, err = svc.Folder(ctx, "missing")
	require.True(t, errors.Is(err, ErrFolderNotFound))
	assert.Contains(t, err.Error(), "Folder missing not found. Please check the folder ID and permissions.")

	_, err = svc.Folder(ctx, "private")
	require.True(t, errors.Is(err, ErrFolderAccessDenied))
	assert.Contains(t, err.Error(), "Access denied to folder private")
}

func TestService_ListFilesFollowsPages(t *testing.T) {
	svc := newTestService(t, 0)

	files, err := svc.ListFiles(context.Background(), "root1")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "notes.txt", files[0].Name)
	assert.Equal(t, int64(12), files[0].Size)
	assert.Equal(t, DocMimeType, files[1].MimeType)

	folders, err := svc.ListFolders(context.Background(), "root1")
	require.NoError(t, err)
	assert.Equal(t, []Folder{{ID: "sub1", Name: "Specs"}}, folders)
}

func TestService_DownloadAndExport(t *testing.T) {
	svc := newTestService(t, 0)
	ctx := context.Background()

	data, err := svc.Download(ctx, "f1")
	require.NoError(t, err)
	assert.Equal(t, "raw bytes of f1", string(data))

	data, err = svc.Export(ctx, "doc1", "text/plain")
	require.NoError(t, err)
	assert.Equal(t, "exported text", string(data))
}

func TestService_DownloadSizeCap(t *testing.T) {
	svc := newTestService(t, 4)
	_, err := svc.Download(context.Background(), "f1")
	assert.ErrorIs(t, err, ErrFileTooLarge)
}

func TestService_CallErrorsAreClassified(t *testing.T) {
	svc := newTestService(t, 0)
	ctx := context.Background()

	_, err := svc.Download(ctx, "missing")
	require.Error(t, err)
	assert.Equal(t, rterrors.ErrorTypeExternal, rterrors.GetType(err))
	assert.Contains(t, err.Error(), "download missing")

	gone := httptest.NewServer(http.NotFoundHandler())
	gone.Close()
	offline, err := NewService(ctx, http.DefaultClient, Options{
		RequestsPerSecond: 1000,
		ClientOptions:     []option.ClientOption{option.WithEndpoint(gone.URL + "/")},
	})
	require.NoError(t, err)

	_, err = offline.Export(ctx, "doc1", "text/plain")
	require.Error(t, err)
	assert.Equal(t, rterrors.ErrorTypeNetwork, rterrors.GetType(err))
	assert.Contains(t, err.Error(), "export doc1 as text/plain")

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = svc.Export(cancelled, "doc1", "text/plain")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileHelpers(t *testing.T) {
	assert.Equal(t, "pdf", File{Name: "Report.Final.PDF"}.Extension())
	assert.Equal(t, "", File{Name: "README"}.Extension())
	assert.True(t, File{MimeType: FolderMimeType}.IsFolder())
	assert.Equal(t, "Word Doc", TypeLabel("application/vnd.openxmlformats-officedocument.wordprocessingml.document"))
	assert.Equal(t, "Google Sheet", TypeLabel(SheetMimeType))
	assert.Equal(t, "Image", TypeLabel("image/png"))
}

func TestEscapeQuery(t *testing.T) {
	assert.Equal(t, `it\'s`, escapeQuery("it's"))
}
