package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opencamphq/campd/internal/logging"
	"github.com/opencamphq/campd/internal/provider"
	"github.com/opencamphq/campd/internal/store"
)

// maxUploadBytes bounds document uploads. Camp documents are brochures and
// forms, not media assets.
const maxUploadBytes = 20 << 20

// presignDefaultTTL and presignMaxTTL bound presigned URL validity.
const (
	presignDefaultTTL = 15 * time.Minute
	presignMaxTTL     = time.Hour
)

// handleDocumentList handles GET /api/camps/{id}/documents.
func (s *Server) handleDocumentList(w http.ResponseWriter, r *http.Request) {
	campID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetCamp(r.Context(), campID); err != nil {
		writeStoreError(w, r, err)
		return
	}
	docs, err := s.store.ListDocuments(r.Context(), campID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if docs == nil {
		docs = []store.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

// handleDocumentUpload handles POST /api/camps/{id}/documents. The multipart
// "file" part is stored in object storage and attached to the camp's vector
// store, blocking until ingestion reaches a terminal state. The vector-store
// provider is required; object storage is optional (upload-for-search-only
// deployments).
func (s *Server) handleDocumentUpload(w http.ResponseWriter, r *http.Request) {
	campID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log := logging.FromContext(r.Context())

	camp, err := s.store.GetCamp(r.Context(), campID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	vs := s.providers.VectorStore(r.Context())
	if vs == nil {
		writeError(w, http.StatusServiceUnavailable, "vector store provider is not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not read upload")
		return
	}
	filename := path.Base(header.Filename)
	contentType := header.Header.Get("Content-Type")

	start := time.Now()

	// Object storage first so the raw bytes survive even if ingestion fails.
	var objectKey string
	if objStore := s.providers.ObjectStorage(r.Context()); objStore != nil {
		objectKey = fmt.Sprintf("camps/%d/%s-%s", campID, uuid.NewString(), filename)
		if _, err := objStore.Put(r.Context(), objectKey, content, contentType, map[string]string{
			"camp_id":  fmt.Sprintf("%d", campID),
			"filename": filename,
		}); err != nil {
			s.metrics.documentIngestSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
			writeProviderError(w, r, err)
			return
		}
	}

	storeID, err := s.ensureCampVectorStore(r, vs, camp)
	if err != nil {
		s.metrics.documentIngestSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
		writeProviderError(w, r, err)
		return
	}

	info, err := vs.UploadAndAttach(r.Context(), storeID, content, filename, contentType)
	if err != nil {
		s.metrics.documentIngestSeconds.WithLabelValues("error").Observe(time.Since(start).Seconds())
		writeProviderError(w, r, err)
		return
	}
	s.metrics.documentIngestSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	doc, err := s.store.AddDocument(r.Context(), store.Document{
		CampID:      campID,
		Filename:    filename,
		ContentType: contentType,
		SizeBytes:   int64(len(content)),
		ObjectKey:   objectKey,
		FileID:      info.ID,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	log.Info("document ingested",
		slog.Int64("camp_id", campID),
		slog.String("file_id", info.ID),
		slog.Int("bytes", len(content)),
	)
	writeJSON(w, http.StatusCreated, documentResponse{Document: doc, IngestStatus: string(info.Status)})
}

// ensureCampVectorStore returns the camp's vector store ID, creating the
// store on first use and persisting the binding.
func (s *Server) ensureCampVectorStore(r *http.Request, vs provider.VectorStore, camp store.Camp) (string, error) {
	if camp.VectorStoreID != "" {
		return camp.VectorStoreID, nil
	}

	info, err := vs.CreateStore(r.Context(), provider.StoreParams{
		Name: fmt.Sprintf("camp-%d-%s", camp.ID, slugify(camp.Name)),
		Metadata: map[string]any{
			"camp_id":   camp.ID,
			"camp_name": camp.Name,
		},
	})
	if err != nil {
		return "", err
	}
	if err := s.store.SetCampVectorStore(r.Context(), camp.ID, info.ID); err != nil {
		return "", err
	}
	return info.ID, nil
}

// slugify lowercases a name and replaces runs of non-alphanumerics with
// single dashes, for use in vendor-visible store names.
func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// handleDocumentURL handles GET /api/camps/{id}/documents/{docID}/url,
// returning a presigned download URL for the document's object.
func (s *Server) handleDocumentURL(w http.ResponseWriter, r *http.Request) {
	campID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	docID, err := pathID(r, "docID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	doc, err := s.store.GetDocument(r.Context(), campID, docID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if doc.ObjectKey == "" {
		writeError(w, http.StatusNotFound, "document has no stored object")
		return
	}

	objStore := s.providers.ObjectStorage(r.Context())
	if objStore == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage provider is not configured")
		return
	}

	signed, err := objStore.PresignGet(r.Context(), doc.ObjectKey, presignDefaultTTL)
	if err != nil {
		writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signed)
}

// handleDocumentDelete handles DELETE /api/camps/{id}/documents/{docID}:
// detach from the vector store, drop the stored object, remove the record.
// External cleanup is best-effort once the detach succeeded.
func (s *Server) handleDocumentDelete(w http.ResponseWriter, r *http.Request) {
	campID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	docID, err := pathID(r, "docID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log := logging.FromContext(r.Context())

	doc, err := s.store.GetDocument(r.Context(), campID, docID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	camp, err := s.store.GetCamp(r.Context(), campID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	if doc.FileID != "" && camp.VectorStoreID != "" {
		vs := s.providers.VectorStore(r.Context())
		if vs == nil {
			writeError(w, http.StatusServiceUnavailable, "vector store provider is not configured")
			return
		}
		detached, err := vs.DetachFile(r.Context(), camp.VectorStoreID, doc.FileID)
		if err != nil {
			// A file the vendor no longer knows about is already detached.
			if !provider.IsKind(err, provider.KindNotFound) {
				writeProviderError(w, r, err)
				return
			}
		} else if !detached {
			// The vendor answered but did not confirm; the record still goes,
			// so leave a trace for reconciliation.
			log.Warn("vendor did not confirm file detach",
				slog.String("vector_store_id", camp.VectorStoreID),
				slog.String("file_id", doc.FileID),
			)
		}
	}

	if doc.ObjectKey != "" {
		if objStore := s.providers.ObjectStorage(r.Context()); objStore != nil {
			if err := objStore.Delete(r.Context(), doc.ObjectKey); err != nil {
				log.Warn("object cleanup failed",
					slog.String("key", doc.ObjectKey),
					slog.Any("error", err),
				)
			}
		}
	}

	if err := s.store.DeleteDocument(r.Context(), campID, docID); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePresignUpload handles POST /api/uploads/presign, returning a
// time-limited URL the caller can PUT an object to directly.
func (s *Server) handlePresignUpload(w http.ResponseWriter, r *http.Request) {
	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Key = strings.TrimSpace(req.Key)
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}
	if strings.Contains(req.Key, "..") || strings.HasPrefix(req.Key, "/") {
		writeError(w, http.StatusBadRequest, "key must be a relative object path")
		return
	}

	ttl := presignDefaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
		if ttl > presignMaxTTL {
			writeError(w, http.StatusBadRequest, "ttl_seconds exceeds the maximum of 3600")
			return
		}
	}

	objStore := s.providers.ObjectStorage(r.Context())
	if objStore == nil {
		writeError(w, http.StatusServiceUnavailable, "object storage provider is not configured")
		return
	}

	signed, err := objStore.PresignPut(r.Context(), req.Key, req.ContentType, ttl)
	if err != nil {
		writeProviderError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, signed)
}
