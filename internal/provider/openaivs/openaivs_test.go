package openaivs

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/openai/openai-go"

	"github.com/opencamphq/campd/internal/provider"
)

// testLogger returns a logger that discards all output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func Test_New_RejectsMalformedCredential(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		key  string
	}{
		{"empty", ""},
		{"wrong prefix", "pk-abcdefghijklmnopqrstuvwxyz"},
		{"too short", "sk-short"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(provider.Config{APIKey: tc.key}, testLogger())
			if !provider.IsKind(err, provider.KindConfiguration) {
				t.Errorf("want configuration error, got %v", err)
			}
		})
	}
}

func Test_New_ValidCredential(t *testing.T) {
	t.Parallel()

	c, err := New(provider.Config{APIKey: "sk-abcdefghijklmnopqrstuvwxyz"}, testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if c.Name() != "openai" {
		t.Errorf("name: want openai, got %s", c.Name())
	}
	if c.cfg.Timeout != provider.DefaultTimeout || c.cfg.MaxRetries != provider.DefaultMaxRetries {
		t.Errorf("defaults not applied: %v/%d", c.cfg.Timeout, c.cfg.MaxRetries)
	}
}

func Test_classify_VendorError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  *openai.Error
		want provider.Kind
	}{
		{
			"invalid api key code",
			&openai.Error{StatusCode: 401, Code: "invalid_api_key", Message: "bad key"},
			provider.KindAuthentication,
		},
		{
			"rate limit by status",
			&openai.Error{StatusCode: 429, Message: "slow down"},
			provider.KindRateLimit,
		},
		{
			"quota tag beats 429 status",
			&openai.Error{StatusCode: 429, Code: "insufficient_quota", Message: "quota gone"},
			provider.KindQuota,
		},
		{
			"type tag used when code absent",
			&openai.Error{StatusCode: 400, Type: "invalid_request_error", Message: "bad body"},
			provider.KindValidation,
		},
		{
			"missing store",
			&openai.Error{StatusCode: 404, Message: "no such vector store"},
			provider.KindNotFound,
		},
		{
			"server side",
			&openai.Error{StatusCode: 503, Message: "overloaded"},
			provider.KindServer,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := classify(fmt.Errorf("request: %w", tc.err))
			if !provider.IsKind(got, tc.want) {
				t.Errorf("want %s, got %v", tc.want, got)
			}
			if !errors.Is(got, tc.err) {
				t.Error("classified error must retain the vendor error as cause")
			}
		})
	}
}

func Test_classify_OpaqueError(t *testing.T) {
	t.Parallel()

	got := classify(errors.New("dial tcp: connection refused"))
	if !provider.IsKind(got, provider.KindUnknown) {
		t.Errorf("want unknown, got %v", got)
	}
}

func Test_toStoreInfo(t *testing.T) {
	t.Parallel()

	vs := &openai.VectorStore{
		ID:         "vs_123",
		Name:       "pinewood-docs",
		Status:     openai.VectorStoreStatusCompleted,
		UsageBytes: 2048,
		CreatedAt:  1700000000,
		FileCounts: openai.VectorStoreFileCounts{
			InProgress: 1, Completed: 4, Failed: 1, Cancelled: 0, Total: 6,
		},
	}
	got := toStoreInfo(vs)

	if got.ID != "vs_123" || got.Name != "pinewood-docs" {
		t.Errorf("identity fields: got %+v", got)
	}
	if got.Status != provider.StoreReady {
		t.Errorf("status: want ready, got %s", got.Status)
	}
	if got.FileCounts.Total != 6 || got.FileCounts.Completed != 4 {
		t.Errorf("file counts: got %+v", got.FileCounts)
	}
	if got.CreatedAt != time.Unix(1700000000, 0).UTC() {
		t.Errorf("created at: got %v", got.CreatedAt)
	}
}

func Test_storeStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   openai.VectorStoreStatus
		want provider.StoreStatus
	}{
		{openai.VectorStoreStatusCompleted, provider.StoreReady},
		{openai.VectorStoreStatusInProgress, provider.StoreCreating},
		{openai.VectorStoreStatusExpired, provider.StoreFailed},
	}
	for _, tc := range cases {
		if got := storeStatus(tc.in); got != tc.want {
			t.Errorf("%s: want %s, got %s", tc.in, tc.want, got)
		}
	}
}

func Test_toFileInfo_FailureReason(t *testing.T) {
	t.Parallel()

	f := &openai.VectorStoreFile{
		ID:        "file_9",
		Status:    openai.VectorStoreFileStatusFailed,
		CreatedAt: 1700000100,
	}
	f.LastError.Message = "unsupported file format"

	got := toFileInfo(f)
	if got.Status != provider.FileFailed {
		t.Errorf("status: want failed, got %s", got.Status)
	}
	if got.FailureReason != "unsupported file format" {
		t.Errorf("failure reason: got %q", got.FailureReason)
	}
}

func Test_wireMetadata(t *testing.T) {
	t.Parallel()

	got := wireMetadata(map[string]any{
		"camp_id": 12,
		"name":    "pinewood",
		"skip":    nil,
	})
	if got["camp_id"] != "12" || got["name"] != "pinewood" {
		t.Errorf("got %v", got)
	}
	if _, ok := got["skip"]; ok {
		t.Error("null values must be dropped")
	}

	if got := wireMetadata(nil); got != nil {
		t.Errorf("nil metadata must stay nil, got %v", got)
	}
}
