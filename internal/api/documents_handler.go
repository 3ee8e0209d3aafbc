// File path: internal/api/documents_handler.go
package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	chi "github.com/go-chi/chi/v5"

	"github.com/agrisense/farmchat/internal/catalog"
	"github.com/agrisense/farmchat/internal/common"
	"github.com/agrisense/farmchat/internal/ingest"
)

// maxUploadMemory bounds how much of a multipart upload stays in memory.
const maxUploadMemory = 32 << 20

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	ctx := r.Context()
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		logger.Warn("api: upload form parse failed", "error", err)
		writeError(w, http.StatusBadRequest, fmt.Errorf("failed to parse upload form: %w", err))
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file field required: %w", err))
		return
	}
	defer file.Close()
	filename := strings.TrimSpace(header.Filename)
	if filename == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file name required"))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Errorf("read upload: %w", err))
		return
	}
	exists, err := s.catalog.HasHash(ctx, ingest.HashBytes(data))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if exists {
		writeError(w, http.StatusConflict, fmt.Errorf("file %q already ingested", filename))
		return
	}
	result, err := s.ingestor.Ingest(ctx, filename, data)
	if err != nil {
		logger.Error("api: ingest failed", "file", filename, "error", err)
		writeError(w, http.StatusBadRequest, err)
		return
	}
	entry, err := s.catalog.Insert(ctx, filename, result.Hash, string(result.Kind), result.Chunks)
	if err != nil {
		if errors.Is(err, catalog.ErrDuplicate) {
			writeError(w, http.StatusConflict, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	logger.Info("api: file ingested", "file", filename, "kind", result.Kind, "chunks", result.Chunks)
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	files, err := s.catalog.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"documents": files})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	logger := common.Logger()
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	entry, err := s.catalog.Get(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	collection := s.store.DocumentCollection()
	if entry.Kind == string(ingest.KindData) {
		collection = s.store.DataCollection()
	}
	if err := s.store.DeleteWhere(ctx, collection, map[string]interface{}{"hash": entry.Hash}); err != nil {
		logger.Error("api: vector delete failed", "file", entry.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.catalog.Delete(ctx, id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	logger.Info("api: file deleted", "file", entry.Filename, "id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "id": id})
}
