package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/atriumhq/atrium/internal/api/middleware"
	"github.com/atriumhq/atrium/internal/objectstore"
	"github.com/atriumhq/atrium/pkg/models"
)

// uploadResult is the per-file outcome of a batch upload. A failed
// file never aborts the rest of the batch.
type uploadResult struct {
	FileName   string `json:"file_name"`
	DocumentID string `json:"document_id,omitempty"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
}

func (h *Handlers) ListDocuments(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if _, err := h.Store.GetAgent(r.Context(), agentID); err != nil {
		respondStoreError(w, err)
		return
	}

	docs, err := h.Store.ListDocuments(r.Context(), agentID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if docs == nil {
		docs = []models.Document{}
	}
	respondJSON(w, http.StatusOK, docs)
}

func (h *Handlers) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.Store.GetDocument(r.Context(), chi.URLParam(r, "agentId"), chi.URLParam(r, "docId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, doc)
}

// UploadDocuments accepts a multipart batch under the `files` field.
// Each file is validated, stored, recorded, and queued for indexing
// independently; the response lists one result per file.
func (h *Handlers) UploadDocuments(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	if _, err := h.Store.GetAgent(r.Context(), agentID); err != nil {
		respondStoreError(w, err)
		return
	}

	maxBytes := int64(h.Upload.MaxFileSizeMB) << 20
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	uploader := middleware.GetUser(r.Context())
	results := make([]uploadResult, 0, len(files))
	for _, fh := range files {
		res := uploadResult{FileName: fh.Filename}

		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !h.extensionAllowed(ext) {
			res.Status = "rejected"
			res.Error = fmt.Sprintf("file type %s not allowed", ext)
			results = append(results, res)
			continue
		}
		if fh.Size > maxBytes {
			res.Status = "rejected"
			res.Error = fmt.Sprintf("file exceeds %dMB limit", h.Upload.MaxFileSizeMB)
			results = append(results, res)
			continue
		}

		f, err := fh.Open()
		if err != nil {
			res.Status = "failed"
			res.Error = "could not read file"
			results = append(results, res)
			continue
		}
		data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
		f.Close()
		if err != nil || int64(len(data)) > maxBytes {
			res.Status = "failed"
			res.Error = "could not read file"
			results = append(results, res)
			continue
		}

		doc := &models.Document{
			ID:           uuid.NewString(),
			AgentID:      agentID,
			OriginalName: fh.Filename,
			ContentType:  fh.Header.Get("Content-Type"),
			Size:         int64(len(data)),
			UploadedBy:   uploader.ID,
			UploadedAt:   time.Now().UTC(),
			Status:       models.DocumentUploaded,
		}
		doc.FileName = doc.ID + ext
		doc.StoragePath = h.bucketFor(agentID) + "/" + doc.FileName

		if err := h.Objects.Upload(r.Context(), h.bucketFor(agentID), doc.FileName, data, doc.ContentType); err != nil {
			log.Error().Err(err).Str("agent", agentID).Str("file", fh.Filename).Msg("object upload failed")
			res.Status = "failed"
			res.Error = "storage upload failed"
			results = append(results, res)
			continue
		}
		if err := h.Store.CreateDocument(r.Context(), doc); err != nil {
			res.Status = "failed"
			res.Error = "could not create document record"
			results = append(results, res)
			continue
		}
		if err := h.Store.AdjustDocumentCount(r.Context(), agentID, 1); err != nil {
			log.Warn().Err(err).Str("agent", agentID).Msg("document count adjust failed")
		}

		// Indexing is a best-effort follow-up; its outcome lands on
		// the document's status fields.
		h.Ingester.IngestAsync(doc, h.bucketFor(agentID))

		res.DocumentID = doc.ID
		res.Status = "uploaded"
		results = append(results, res)
	}

	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// DownloadDocument returns a presigned URL valid for one hour.
func (h *Handlers) DownloadDocument(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	doc, err := h.Store.GetDocument(r.Context(), agentID, chi.URLParam(r, "docId"))
	if err != nil {
		respondStoreError(w, err)
		return
	}

	url, err := h.Objects.PresignGet(r.Context(), h.bucketFor(agentID), doc.FileName, objectstore.DefaultPresignTTL)
	if err != nil {
		var nf *objectstore.ErrObjectNotFound
		if errors.As(err, &nf) {
			respondError(w, http.StatusNotFound, "stored file not found")
			return
		}
		respondError(w, http.StatusBadGateway, "object storage unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"downloadUrl": url})
}

// DeleteDocument removes the stored bytes, the corpus chunks, and the
// record.
func (h *Handlers) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentId")
	docID := chi.URLParam(r, "docId")

	doc, err := h.Store.GetDocument(r.Context(), agentID, docID)
	if err != nil {
		respondStoreError(w, err)
		return
	}

	if err := h.Objects.Delete(r.Context(), h.bucketFor(agentID), doc.FileName); err != nil {
		log.Warn().Err(err).Str("document", docID).Msg("stored bytes delete failed, continuing")
	}
	if err := h.Ingester.Remove(r.Context(), agentID, docID); err != nil {
		log.Warn().Err(err).Str("document", docID).Msg("corpus chunk delete failed, continuing")
	}
	if err := h.Store.DeleteDocument(r.Context(), agentID, docID); err != nil {
		respondStoreError(w, err)
		return
	}
	if err := h.Store.AdjustDocumentCount(r.Context(), agentID, -1); err != nil {
		log.Warn().Err(err).Str("agent", agentID).Msg("document count adjust failed")
	}

	log.Info().Str("agent", agentID).Str("document", docID).Msg("document deleted")
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handlers) extensionAllowed(ext string) bool {
	for _, allowed := range h.Upload.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
