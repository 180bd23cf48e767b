package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/opencamphq/campd/internal/provider"
	"github.com/opencamphq/campd/internal/search"
	"github.com/opencamphq/campd/internal/store"
)

// testLogger returns a logger that discards all output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testServerOption customises the server built by newTestServerWith.
type testServerOption func(*testServerSetup)

// testServerSetup collects the dependencies for a test server.
type testServerSetup struct {
	registry *provider.Registry
	search   Searcher
}

// withProviders installs a pre-populated provider registry.
func withProviders(r *provider.Registry) testServerOption {
	return func(s *testServerSetup) { s.registry = r }
}

// withSearch installs a similarity index fake.
func withSearch(idx Searcher) testServerOption {
	return func(s *testServerSetup) { s.search = idx }
}

// newTestServerWith builds a fully wired Server over an in-memory store.
func newTestServerWith(t *testing.T, opts ...testServerOption) *Server {
	t.Helper()

	setup := &testServerSetup{
		registry: provider.NewRegistry(testLogger()),
	}
	for _, opt := range opts {
		opt(setup)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	s, err := New(st, setup.registry, setup.search, &Config{
		Logger:          testLogger(),
		MetricsRegistry: prometheus.NewRegistry(),
		// High limits so rate limiting never interferes with handler tests.
		RateLimit: 10_000,
		RateBurst: 10_000,
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s
}

// newTestServer builds a Server with no providers and no search index.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t)
}

// handler returns the server's full middleware-wrapped handler for route tests.
func (s *Server) handler() http.Handler {
	return s.httpServer.Handler
}

// ---------------------------------------------------------------------------
// Provider fakes
// ---------------------------------------------------------------------------

// fakeVectorStore is an in-memory provider.VectorStore double.
type fakeVectorStore struct {
	// stores maps store ID to its info.
	stores map[string]*provider.StoreInfo
	// attached maps store ID to attached file IDs.
	attached map[string][]string
	// nextID numbers created stores and files.
	nextID int
	// uploadErr, when set, fails UploadAndAttach.
	uploadErr error
	// detachErr, when set, fails DetachFile.
	detachErr error
	// detachUnconfirmed makes DetachFile succeed without vendor confirmation.
	detachUnconfirmed bool
	// uploads records every UploadAndAttach call.
	uploads []fakeUpload
}

// fakeUpload captures the arguments of one UploadAndAttach call.
type fakeUpload struct {
	storeID  string
	content  []byte
	filename string
	mimeType string
}

// The doubles must track the real capability contracts.
var (
	_ provider.VectorStore   = (*fakeVectorStore)(nil)
	_ provider.ObjectStorage = (*fakeObjectStorage)(nil)
	_ provider.Mailer        = (*fakeMailer)(nil)
)

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{
		stores:   make(map[string]*provider.StoreInfo),
		attached: make(map[string][]string),
	}
}

func (f *fakeVectorStore) Name() string                     { return "fake-vs" }
func (f *fakeVectorStore) Ping(_ context.Context) error     { return nil }
func (f *fakeVectorStore) CreateStore(_ context.Context, p provider.StoreParams) (*provider.StoreInfo, error) {
	f.nextID++
	info := &provider.StoreInfo{
		ID:        newFakeID("vs", f.nextID),
		Name:      p.Name,
		Status:    provider.StoreReady,
		Metadata:  p.Metadata,
		CreatedAt: time.Now().UTC(),
	}
	f.stores[info.ID] = info
	return info, nil
}
func (f *fakeVectorStore) GetStore(_ context.Context, id string) (*provider.StoreInfo, error) {
	info, ok := f.stores[id]
	if !ok {
		return nil, provider.NewError(provider.KindNotFound, "no such store")
	}
	return info, nil
}
func (f *fakeVectorStore) UpdateStore(_ context.Context, id string, p provider.StoreParams) (*provider.StoreInfo, error) {
	info, err := f.GetStore(context.Background(), id)
	if err != nil {
		return nil, err
	}
	if p.Name != "" {
		info.Name = p.Name
	}
	return info, nil
}
func (f *fakeVectorStore) DeleteStore(_ context.Context, id string) (bool, error) {
	if _, ok := f.stores[id]; !ok {
		return false, provider.NewError(provider.KindNotFound, "no such store")
	}
	delete(f.stores, id)
	delete(f.attached, id)
	return true, nil
}
func (f *fakeVectorStore) ListFiles(_ context.Context, storeID string) ([]provider.FileInfo, error) {
	var out []provider.FileInfo
	for _, id := range f.attached[storeID] {
		out = append(out, provider.FileInfo{ID: id, Status: provider.FileCompleted})
	}
	return out, nil
}
func (f *fakeVectorStore) AttachFile(_ context.Context, storeID, fileID string) (*provider.FileInfo, error) {
	f.attached[storeID] = append(f.attached[storeID], fileID)
	return &provider.FileInfo{ID: fileID, Status: provider.FileCompleted}, nil
}
func (f *fakeVectorStore) DetachFile(_ context.Context, storeID, fileID string) (bool, error) {
	if f.detachErr != nil {
		return false, f.detachErr
	}
	files := f.attached[storeID]
	for i, id := range files {
		if id == fileID {
			f.attached[storeID] = append(files[:i], files[i+1:]...)
			return !f.detachUnconfirmed, nil
		}
	}
	return false, provider.NewError(provider.KindNotFound, "no such file")
}
func (f *fakeVectorStore) UploadAndAttach(_ context.Context, storeID string, content []byte, filename, mimeType string) (*provider.FileInfo, error) {
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploads = append(f.uploads, fakeUpload{
		storeID:  storeID,
		content:  content,
		filename: filename,
		mimeType: mimeType,
	})
	f.nextID++
	fileID := newFakeID("file", f.nextID)
	f.attached[storeID] = append(f.attached[storeID], fileID)
	return &provider.FileInfo{ID: fileID, Status: provider.FileCompleted}, nil
}

// fakeObjectStorage is an in-memory provider.ObjectStorage double.
type fakeObjectStorage struct {
	// objects maps keys to stored content.
	objects map[string][]byte
	// putErr, when set, fails Put.
	putErr error
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{objects: make(map[string][]byte)}
}

func (f *fakeObjectStorage) Name() string                 { return "fake-s3" }
func (f *fakeObjectStorage) Ping(_ context.Context) error { return nil }
func (f *fakeObjectStorage) Put(_ context.Context, key string, content []byte, _ string, _ map[string]string) (*provider.ObjectRef, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	f.objects[key] = content
	return &provider.ObjectRef{Bucket: "test", Key: key}, nil
}
func (f *fakeObjectStorage) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}
func (f *fakeObjectStorage) PresignPut(_ context.Context, key, _ string, ttl time.Duration) (*provider.PresignedURL, error) {
	return &provider.PresignedURL{URL: "https://signed.test/" + key + "?put", Key: key, TTLSeconds: int(ttl.Seconds())}, nil
}
func (f *fakeObjectStorage) PresignGet(_ context.Context, key string, ttl time.Duration) (*provider.PresignedURL, error) {
	return &provider.PresignedURL{URL: "https://signed.test/" + key + "?get", Key: key, TTLSeconds: int(ttl.Seconds())}, nil
}

// fakeMailer records sent mail.
type fakeMailer struct {
	sent []string
}

func (f *fakeMailer) Name() string                 { return "fake-mail" }
func (f *fakeMailer) Ping(_ context.Context) error { return nil }
func (f *fakeMailer) Send(_ context.Context, to, _, _ string) error {
	f.sent = append(f.sent, to)
	return nil
}

// fakeSearcher records index operations and plays back canned matches.
type fakeSearcher struct {
	indexed []int64
	removed []int64
	matches []search.Match
	err     error
}

func (f *fakeSearcher) IndexCamp(_ context.Context, c store.Camp) error {
	if f.err != nil {
		return f.err
	}
	f.indexed = append(f.indexed, c.ID)
	return nil
}
func (f *fakeSearcher) RemoveCamp(_ context.Context, campID int64) error {
	f.removed = append(f.removed, campID)
	return nil
}
func (f *fakeSearcher) Search(_ context.Context, _ string, _ int) ([]search.Match, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.matches, nil
}

// registryWith builds a provider registry whose constructors return the
// given fakes. Nil fakes stay unregistered.
func registryWith(vs provider.VectorStore, os provider.ObjectStorage, m provider.Mailer) *provider.Registry {
	r := provider.NewRegistry(testLogger())
	if vs != nil {
		r.Register(provider.TypeVectorStore, func(context.Context) (provider.Provider, error) { return vs, nil })
	}
	if os != nil {
		r.Register(provider.TypeObjectStorage, func(context.Context) (provider.Provider, error) { return os, nil })
	}
	if m != nil {
		r.Register(provider.TypeMail, func(context.Context) (provider.Provider, error) { return m, nil })
	}
	return r
}

// newFakeID renders a stable fake vendor identifier.
func newFakeID(prefix string, n int) string {
	return prefix + "_" + string(rune('0'+n))
}
