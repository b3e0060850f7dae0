package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// ArchiveHandler serves the cold-storage archival endpoints.
type ArchiveHandler struct {
	archiver domain.Archiver
	blobs    domain.BlobReader
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler with the given archiver, blob
// reader and logger. Nil collaborators disable their endpoints with a 503.
func NewArchiveHandler(archiver domain.Archiver, blobs domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		archiver: archiver,
		blobs:    blobs,
		logger:   logger,
	}
}

type archiveRequest struct {
	Before *time.Time `json:"before"`
}

// Archive uploads terminal positions, fills and trigger events older than
// the cutoff to object storage. The cutoff defaults to 30 days ago.
// POST /api/archive
func (h *ArchiveHandler) Archive(w http.ResponseWriter, r *http.Request) {
	if h.archiver == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "object storage is not configured")
		return
	}

	var req archiveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body: "+err.Error())
			return
		}
	}
	before := time.Now().UTC().AddDate(0, 0, -30)
	if req.Before != nil {
		before = *req.Before
	}

	positions, err := h.archiver.ArchivePositions(r.Context(), before)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	fills, err := h.archiver.ArchiveFills(r.Context(), before)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	triggers, err := h.archiver.ArchiveTriggers(r.Context(), before)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"before":  before.Format(time.RFC3339),
		"archived": map[string]int64{
			"positions": positions,
			"fills":     fills,
			"triggers":  triggers,
		},
	})
}

type archiveFile struct {
	Path         string    `json:"path"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// List browses the archived history files, optionally narrowed to one kind
// (positions, fills, triggers). With ?path= it streams a single archive file
// back as JSONL instead.
// GET /api/archive
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	if h.blobs == nil {
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "object storage is not configured")
		return
	}

	if path := r.URL.Query().Get("path"); path != "" {
		body, err := h.blobs.Get(r.Context(), path)
		if err != nil {
			writeDomainError(w, h.logger, r, err)
			return
		}
		defer body.Close()
		w.Header().Set("Content-Type", "application/x-ndjson")
		if _, err := io.Copy(w, body); err != nil {
			h.logger.WarnContext(r.Context(), "archive download aborted",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	prefix := "archive/"
	if kind := r.URL.Query().Get("kind"); kind != "" {
		prefix += kind + "/"
	}
	infos, err := h.blobs.List(r.Context(), prefix)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}

	files := make([]archiveFile, 0, len(infos))
	for _, info := range infos {
		files = append(files, archiveFile{
			Path:         info.Path,
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"archives": files,
		"count":    len(files),
	})
}
