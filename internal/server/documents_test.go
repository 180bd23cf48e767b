package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/opencamphq/campd/internal/provider"
	"github.com/opencamphq/campd/internal/store"
)

// uploadDocument posts a multipart document to the camp and returns the
// recorder.
func uploadDocument(t *testing.T, s *Server, campID int64, filename, content string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/camps/%d/documents", campID), &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	s.handler().ServeHTTP(w, req)
	return w
}

func Test_Documents_UploadRequiresVectorStore(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	camp := createCamp(t, s, "Forest Camp", 10)

	w := uploadDocument(t, s, camp.ID, "schedule.pdf", "pdf bytes")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("want 503 without vector store provider, got %d", w.Code)
	}
}

func Test_Documents_UploadIngestsAndPersists(t *testing.T) {
	t.Parallel()
	vs := newFakeVectorStore()
	objStore := newFakeObjectStorage()
	s := newTestServerWith(t, withProviders(registryWith(vs, objStore, nil)))
	camp := createCamp(t, s, "Forest Camp", 10)

	w := uploadDocument(t, s, camp.ID, "schedule.pdf", "pdf bytes")
	if w.Code != http.StatusCreated {
		t.Fatalf("upload: want 201, got %d — %s", w.Code, w.Body.String())
	}

	var resp documentResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Filename != "schedule.pdf" || resp.FileID == "" {
		t.Errorf("unexpected document: %+v", resp.Document)
	}
	if resp.IngestStatus != string(provider.FileCompleted) {
		t.Errorf("want ingest_status completed, got %q", resp.IngestStatus)
	}

	// The raw bytes landed in object storage under a camp-scoped key.
	if len(objStore.objects) != 1 {
		t.Fatalf("want 1 stored object, got %d", len(objStore.objects))
	}
	for key := range objStore.objects {
		if !strings.HasPrefix(key, fmt.Sprintf("camps/%d/", camp.ID)) {
			t.Errorf("object key %q not camp-scoped", key)
		}
	}

	// A vector store was created for the camp and the binding persisted.
	var got store.Camp
	doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/camps/%d", camp.ID), "", &got)
	if got.VectorStoreID == "" {
		t.Error("camp vector store binding not persisted")
	}
	if files := vs.attached[got.VectorStoreID]; len(files) != 1 {
		t.Errorf("want 1 attached file, got %d", len(files))
	}

	// The raw bytes and file identity reached the vector store intact.
	if len(vs.uploads) != 1 {
		t.Fatalf("want 1 ingestion call, got %d", len(vs.uploads))
	}
	up := vs.uploads[0]
	if up.storeID != got.VectorStoreID {
		t.Errorf("ingested into store %q, want %q", up.storeID, got.VectorStoreID)
	}
	if string(up.content) != "pdf bytes" {
		t.Errorf("ingested content %q, want the uploaded bytes", up.content)
	}
	if up.filename != "schedule.pdf" {
		t.Errorf("ingested filename %q, want schedule.pdf", up.filename)
	}
}

func Test_Documents_UploadReusesExistingStore(t *testing.T) {
	t.Parallel()
	vs := newFakeVectorStore()
	s := newTestServerWith(t, withProviders(registryWith(vs, nil, nil)))
	camp := createCamp(t, s, "Forest Camp", 10)

	uploadDocument(t, s, camp.ID, "a.pdf", "a")
	uploadDocument(t, s, camp.ID, "b.pdf", "b")

	if len(vs.stores) != 1 {
		t.Errorf("want a single vector store for the camp, got %d", len(vs.stores))
	}
}

func Test_Documents_UploadProviderFailureMapped(t *testing.T) {
	t.Parallel()
	vs := newFakeVectorStore()
	vs.uploadErr = provider.NewError(provider.KindRateLimit, "slow down")
	s := newTestServerWith(t, withProviders(registryWith(vs, nil, nil)))
	camp := createCamp(t, s, "Forest Camp", 10)

	w := uploadDocument(t, s, camp.ID, "a.pdf", "a")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("rate-limited ingestion: want 503, got %d — %s", w.Code, w.Body.String())
	}
}

func Test_Documents_UploadMissingFilePart(t *testing.T) {
	t.Parallel()
	vs := newFakeVectorStore()
	s := newTestServerWith(t, withProviders(registryWith(vs, nil, nil)))
	camp := createCamp(t, s, "Forest Camp", 10)

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/camps/%d/documents", camp.ID),
		strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	w := httptest.NewRecorder()
	s.handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("want 400 without file part, got %d", w.Code)
	}
}

func Test_Documents_ListAndDelete(t *testing.T) {
	t.Parallel()
	vs := newFakeVectorStore()
	objStore := newFakeObjectStorage()
	s := newTestServerWith(t, withProviders(registryWith(vs, objStore, nil)))
	camp := createCamp(t, s, "Forest Camp", 10)

	uploadDocument(t, s, camp.ID, "schedule.pdf", "pdf bytes")

	var docs []store.Document
	w := doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/camps/%d/documents", camp.ID), "", &docs)
	if w.Code != http.StatusOK || len(docs) != 1 {
		t.Fatalf("list: got %d with %d documents", w.Code, len(docs))
	}

	w = doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/camps/%d/documents/%d", camp.ID, docs[0].ID), "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: want 204, got %d — %s", w.Code, w.Body.String())
	}
	if len(objStore.objects) != 0 {
		t.Errorf("stored object not cleaned up")
	}

	docs = nil
	doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/camps/%d/documents", camp.ID), "", &docs)
	if len(docs) != 0 {
		t.Errorf("document record not removed")
	}
}

func Test_Documents_DeleteToleratesDetachedFile(t *testing.T) {
	t.Parallel()
	vs := newFakeVectorStore()
	s := newTestServerWith(t, withProviders(registryWith(vs, nil, nil)))
	camp := createCamp(t, s, "Forest Camp", 10)

	uploadDocument(t, s, camp.ID, "schedule.pdf", "pdf bytes")
	var docs []store.Document
	doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/camps/%d/documents", camp.ID), "", &docs)

	// The vendor already lost the file: deletion still succeeds.
	vs.detachErr = provider.NewError(provider.KindNotFound, "no such file")
	w := doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/camps/%d/documents/%d", camp.ID, docs[0].ID), "", nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("want 204 for already-detached file, got %d", w.Code)
	}
}

func Test_Documents_DeleteToleratesUnconfirmedDetach(t *testing.T) {
	t.Parallel()
	vs := newFakeVectorStore()
	s := newTestServerWith(t, withProviders(registryWith(vs, nil, nil)))
	camp := createCamp(t, s, "Forest Camp", 10)

	uploadDocument(t, s, camp.ID, "schedule.pdf", "pdf bytes")
	var docs []store.Document
	doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/camps/%d/documents", camp.ID), "", &docs)

	// The vendor answers the detach but does not confirm it; the record is
	// still removed.
	vs.detachUnconfirmed = true
	w := doJSON(t, s, http.MethodDelete, fmt.Sprintf("/api/camps/%d/documents/%d", camp.ID, docs[0].ID), "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("want 204 for unconfirmed detach, got %d", w.Code)
	}
	doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/camps/%d/documents", camp.ID), "", &docs)
	if len(docs) != 0 {
		t.Errorf("document record not removed after unconfirmed detach")
	}
}

func Test_Documents_DownloadURL(t *testing.T) {
	t.Parallel()
	vs := newFakeVectorStore()
	objStore := newFakeObjectStorage()
	s := newTestServerWith(t, withProviders(registryWith(vs, objStore, nil)))
	camp := createCamp(t, s, "Forest Camp", 10)

	uploadDocument(t, s, camp.ID, "schedule.pdf", "pdf bytes")
	var docs []store.Document
	doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/camps/%d/documents", camp.ID), "", &docs)

	var signed provider.PresignedURL
	w := doJSON(t, s, http.MethodGet,
		fmt.Sprintf("/api/camps/%d/documents/%d/url", camp.ID, docs[0].ID), "", &signed)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d — %s", w.Code, w.Body.String())
	}
	if !strings.Contains(signed.URL, docs[0].ObjectKey) {
		t.Errorf("signed URL %q does not reference object key %q", signed.URL, docs[0].ObjectKey)
	}
}

func Test_Documents_DownloadURLWithoutObject(t *testing.T) {
	t.Parallel()
	vs := newFakeVectorStore()
	// No object storage configured, so uploads carry no object key.
	s := newTestServerWith(t, withProviders(registryWith(vs, nil, nil)))
	camp := createCamp(t, s, "Forest Camp", 10)

	uploadDocument(t, s, camp.ID, "schedule.pdf", "pdf bytes")
	var docs []store.Document
	doJSON(t, s, http.MethodGet, fmt.Sprintf("/api/camps/%d/documents", camp.ID), "", &docs)

	w := doJSON(t, s, http.MethodGet,
		fmt.Sprintf("/api/camps/%d/documents/%d/url", camp.ID, docs[0].ID), "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("want 404 for document without stored object, got %d", w.Code)
	}
}

func Test_PresignUpload(t *testing.T) {
	t.Parallel()
	objStore := newFakeObjectStorage()
	s := newTestServerWith(t, withProviders(registryWith(nil, objStore, nil)))

	var signed provider.PresignedURL
	w := doJSON(t, s, http.MethodPost, "/api/uploads/presign",
		`{"key":"camps/1/brochure.pdf","content_type":"application/pdf","ttl_seconds":600}`, &signed)
	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d — %s", w.Code, w.Body.String())
	}
	if signed.TTLSeconds != 600 {
		t.Errorf("want ttl 600, got %d", signed.TTLSeconds)
	}
	if !strings.Contains(signed.URL, "camps/1/brochure.pdf") {
		t.Errorf("unexpected signed URL %q", signed.URL)
	}
}

func Test_PresignUpload_Validation(t *testing.T) {
	t.Parallel()
	objStore := newFakeObjectStorage()
	s := newTestServerWith(t, withProviders(registryWith(nil, objStore, nil)))

	tests := []struct {
		name string
		body string
		want int
	}{
		{"missing key", `{"content_type":"application/pdf"}`, http.StatusBadRequest},
		{"traversal", `{"key":"../etc/passwd"}`, http.StatusBadRequest},
		{"absolute", `{"key":"/camps/1/a.pdf"}`, http.StatusBadRequest},
		{"ttl too long", `{"key":"camps/1/a.pdf","ttl_seconds":7200}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/api/uploads/presign", tt.body, nil)
			if w.Code != tt.want {
				t.Errorf("want %d, got %d — %s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func Test_PresignUpload_NoProvider(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)

	w := doJSON(t, s, http.MethodPost, "/api/uploads/presign", `{"key":"camps/1/a.pdf"}`, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("want 503 without object storage, got %d", w.Code)
	}
}
