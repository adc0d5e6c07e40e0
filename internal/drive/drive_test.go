package drive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type fakeFiles struct {
	folders map[string]string
	files   []*File
	content map[string][]byte
}

func (f *fakeFiles) ListFiles(_ context.Context, folderID string) ([]*File, error) {
	if folderID == "missing" {
		return nil, errors.New("drive unavailable")
	}
	return f.files, nil
}

func (f *fakeFiles) GetFile(_ context.Context, fileID string) (*File, error) {
	for _, file := range f.files {
		if file.ID == fileID {
			return file, nil
		}
	}
	return nil, fmt.Errorf("file %s not found", fileID)
}

func (f *fakeFiles) DownloadFile(_ context.Context, fileID string, w io.Writer) error {
	data, ok := f.content[fileID]
	if !ok {
		return fmt.Errorf("file %s not found", fileID)
	}
	_, err := w.Write(data)
	return err
}

func (f *fakeFiles) FindFolderByPath(_ context.Context, path string) (string, error) {
	if id, ok := f.folders[path]; ok {
		return id, nil
	}
	return "", fmt.Errorf("folder not found: %s", path)
}

type fakeIngester struct {
	filename string
	body     string
	err      error
}

func (f *fakeIngester) IngestRecords(_ context.Context, filename string, r io.Reader) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	f.filename = filename
	f.body = string(data)
	return 3, nil
}

func workbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"date", "issued"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"2025-01-01", 4}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	return buf.Bytes()
}

func newFakeFiles(t *testing.T) *fakeFiles {
	return &fakeFiles{
		folders: map[string]string{"stock/daily": "folder-1"},
		files: []*File{
			{ID: "1", Name: "20250101.csv", MimeType: "text/csv"},
			{ID: "2", Name: "20250102.xlsx"},
			{ID: "3", Name: "notes.pdf"},
		},
		content: map[string][]byte{
			"1": []byte("date,issued\n2025-01-01,2\n"),
			"2": workbook(t),
			"3": []byte("%PDF"),
		},
	}
}

func TestDownloader_DownloadFolderCSV(t *testing.T) {
	dir := t.TempDir()

	paths, err := NewDownloader(newFakeFiles(t)).DownloadFolderCSV(context.Background(), DownloadOptions{FolderID: "folder-1", DownloadDir: dir})
	require.NoError(t, err)

	require.Equal(t, []string{filepath.Join(dir, "20250101.csv"), filepath.Join(dir, "20250102.csv")}, paths)

	converted, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, "date,issued\n2025-01-01,4\n", string(converted))
}

func TestDownloader_RequiresDir(t *testing.T) {
	_, err := NewDownloader(newFakeFiles(t)).DownloadFolderCSV(context.Background(), DownloadOptions{})
	assert.ErrorContains(t, err, "download dir is required")
}

func TestIngestService_IngestFile(t *testing.T) {
	ingester := &fakeIngester{}
	svc := NewIngestService(newFakeFiles(t), ingester)

	n, err := svc.IngestFile(context.Background(), "1")
	require.NoError(t, err)

	assert.Equal(t, 3, n)
	assert.Equal(t, "20250101.csv", ingester.filename)
	assert.Equal(t, "date,issued\n2025-01-01,2\n", ingester.body)
}

func newRouter(files FileSource, ingester RecordIngester, refresh RefreshFunc) *mux.Router {
	router := mux.NewRouter()
	NewHandler(files, NewIngestService(files, ingester), refresh).RegisterRoutes(router)
	return router
}

func serve(router http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestHandler_ListFilesByPath(t *testing.T) {
	w := serve(newRouter(newFakeFiles(t), &fakeIngester{}, nil), http.MethodGet, "/api/drive/files?path=stock/daily")

	require.Equal(t, http.StatusOK, w.Code)
	var files []File
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &files))
	assert.Len(t, files, 3)

	w = serve(newRouter(newFakeFiles(t), &fakeIngester{}, nil), http.MethodGet, "/api/drive/files?path=nowhere")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_Download(t *testing.T) {
	w := serve(newRouter(newFakeFiles(t), &fakeIngester{}, nil), http.MethodGet, "/api/drive/files/download?fileId=1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "attachment; filename=20250101.csv", w.Header().Get("Content-Disposition"))
	assert.Equal(t, "date,issued\n2025-01-01,2\n", w.Body.String())

	w = serve(newRouter(newFakeFiles(t), &fakeIngester{}, nil), http.MethodGet, "/api/drive/files/download")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_IngestRefreshes(t *testing.T) {
	refreshed := 0
	refresh := func(context.Context) error {
		refreshed++
		return nil
	}

	w := serve(newRouter(newFakeFiles(t), &fakeIngester{}, refresh), http.MethodPost, "/api/drive/ingest?fileId=1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, refreshed)
	assert.JSONEq(t, `{"status":"success","message":"File ingested successfully","records":3,"refreshed":true}`, w.Body.String())
}

func TestHandler_IngestInvalidFile(t *testing.T) {
	refreshed := 0
	refresh := func(context.Context) error {
		refreshed++
		return nil
	}
	ingester := &fakeIngester{err: fmt.Errorf("%w: missing required column: issued", domain.ErrInvalidRecord)}

	w := serve(newRouter(newFakeFiles(t), ingester, refresh), http.MethodPost, "/api/drive/ingest?fileId=1")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, refreshed)
}

func TestHandler_IngestWrongMethod(t *testing.T) {
	w := serve(newRouter(newFakeFiles(t), &fakeIngester{}, nil), http.MethodGet, "/api/drive/ingest?fileId=1")

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
