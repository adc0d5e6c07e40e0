package drive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/andresuchdata/medstock/backend-go/internal/domain"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// RefreshFunc recomputes stock health after new records arrive.
type RefreshFunc func(ctx context.Context) error

type Handler struct {
	files         FileSource
	ingestService *IngestService
	refresher     RefreshFunc
}

// NewHandler builds the Drive API handler. refresher may be nil, in which
// case ingested records wait for the next scheduled refresh.
func NewHandler(files FileSource, ingestService *IngestService, refresher RefreshFunc) *Handler {
	return &Handler{
		files:         files,
		ingestService: ingestService,
		refresher:     refresher,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/drive/files", h.ListFiles).Methods(http.MethodGet)
	router.HandleFunc("/api/drive/files/download", h.DownloadFile).Methods(http.MethodGet)
	router.HandleFunc("/api/drive/ingest", h.IngestFile).Methods(http.MethodPost)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("drive: failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeJSON(w, status, map[string]string{"error": message, "details": err.Error()})
}

func (h *Handler) ListFiles(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	folderID := query.Get("folderId")

	if folderPath := query.Get("path"); folderPath != "" {
		id, err := h.files.FindFolderByPath(r.Context(), folderPath)
		if err != nil {
			writeError(w, http.StatusNotFound, "folder not found", err)
			return
		}
		folderID = id
	}

	files, err := h.files.ListFiles(r.Context(), folderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list files", err)
		return
	}

	writeJSON(w, http.StatusOK, files)
}

func (h *Handler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		http.Error(w, "fileId parameter is required", http.StatusBadRequest)
		return
	}

	meta, err := h.files.GetFile(r.Context(), fileID)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found", err)
		return
	}

	w.Header().Set("Content-Disposition", "attachment; filename="+filepath.Base(meta.Name))
	if meta.MimeType != "" {
		w.Header().Set("Content-Type", meta.MimeType)
	}

	// headers are already sent once the copy starts, so a failure can only be logged
	if err := h.files.DownloadFile(r.Context(), fileID, w); err != nil {
		log.Error().Err(err).Str("file_id", fileID).Msg("drive: download failed")
	}
}

func (h *Handler) IngestFile(w http.ResponseWriter, r *http.Request) {
	fileID := r.URL.Query().Get("fileId")
	if fileID == "" {
		http.Error(w, "fileId parameter is required", http.StatusBadRequest)
		return
	}

	rows, err := h.ingestService.IngestFile(r.Context(), fileID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidRecord) {
			status = http.StatusBadRequest
		}
		writeError(w, status, "ingestion failed", err)
		return
	}

	refreshed := false
	if h.refresher != nil && r.URL.Query().Get("refresh") != "false" {
		if err := h.refresher(r.Context()); err != nil {
			writeError(w, http.StatusInternalServerError, "records stored but refresh failed", err)
			return
		}
		refreshed = true
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "success",
		"message":   "File ingested successfully",
		"records":   rows,
		"refreshed": refreshed,
	})
}
