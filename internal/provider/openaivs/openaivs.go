// Package openaivs implements the provider.VectorStore capability against
// the OpenAI vector-store API. All vendor calls go through the shared retry
// executor, every failure is classified into the typed taxonomy, and the
// normalized records defined by the provider package are the only types that
// cross the package boundary — no openai-go type leaks to callers.
package openaivs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/opencamphq/campd/internal/provider"
)

// apiKeyPrefix is the shape check applied to OpenAI credentials.
const apiKeyPrefix = "sk-"

// Client implements provider.VectorStore backed by the OpenAI API.
// Safe for concurrent use.
type Client struct {
	// api is the vendor SDK client. Owned exclusively by this adapter.
	api *openai.Client
	// cfg is the validated, immutable configuration.
	cfg provider.Config
	// poll bounds the wait for asynchronous file ingestion.
	poll provider.PollPolicy
	// log is the structured logger, tagged with the provider name.
	log *slog.Logger
}

// New validates cfg and constructs a Client. SDK-level retries are disabled;
// the shared retry executor owns all retry behavior so 4xx short-circuiting
// and backoff stay consistent across providers.
func New(cfg provider.Config, log *slog.Logger) (*Client, error) {
	validated, err := cfg.Validate(apiKeyPrefix)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(validated.APIKey),
		option.WithRequestTimeout(validated.Timeout),
		option.WithMaxRetries(0),
	}
	if validated.Organization != "" {
		opts = append(opts, option.WithOrganization(validated.Organization))
	}
	if validated.BaseEndpoint != "" {
		opts = append(opts, option.WithBaseURL(validated.BaseEndpoint))
	}

	api := openai.NewClient(opts...)
	return &Client{
		api:  &api,
		cfg:  validated,
		poll: provider.DefaultPollPolicy(),
		log:  log.With(slog.String("provider", "openai")),
	}, nil
}

// Name returns the vendor label.
func (c *Client) Name() string { return "openai" }

// Ping checks API reachability and credential validity with a minimal
// single-item list call.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.VectorStores.List(ctx, openai.VectorStoreListParams{
		Limit: openai.Int(1),
	})
	if err != nil {
		return classify(err)
	}
	return nil
}

// CreateStore provisions a new vector store with sanitized metadata.
func (c *Client) CreateStore(ctx context.Context, params provider.StoreParams) (*provider.StoreInfo, error) {
	body := openai.VectorStoreNewParams{
		Metadata: wireMetadata(params.Metadata),
	}
	if params.Name != "" {
		body.Name = openai.String(params.Name)
	}
	if params.ExpiresAfterDays > 0 {
		body.ExpiresAfter = openai.VectorStoreNewParamsExpiresAfter{
			Days: int64(params.ExpiresAfterDays),
		}
	}

	vs, err := provider.Retry(ctx, c.log, c.cfg.MaxRetries, provider.DefaultRetryDelay,
		func(ctx context.Context) (*openai.VectorStore, error) {
			vs, err := c.api.VectorStores.New(ctx, body)
			if err != nil {
				return nil, classify(err)
			}
			return vs, nil
		})
	if err != nil {
		return nil, err
	}

	c.log.Info("vector store created", slog.String("store_id", vs.ID))
	return toStoreInfo(vs), nil
}

// GetStore fetches the current state of a store.
func (c *Client) GetStore(ctx context.Context, storeID string) (*provider.StoreInfo, error) {
	vs, err := provider.Retry(ctx, c.log, c.cfg.MaxRetries, provider.DefaultRetryDelay,
		func(ctx context.Context) (*openai.VectorStore, error) {
			vs, err := c.api.VectorStores.Get(ctx, storeID)
			if err != nil {
				return nil, classify(err)
			}
			return vs, nil
		})
	if err != nil {
		return nil, err
	}
	return toStoreInfo(vs), nil
}

// UpdateStore modifies name, metadata, or expiry of a store.
func (c *Client) UpdateStore(ctx context.Context, storeID string, params provider.StoreParams) (*provider.StoreInfo, error) {
	body := openai.VectorStoreUpdateParams{
		Metadata: wireMetadata(params.Metadata),
	}
	if params.Name != "" {
		body.Name = openai.String(params.Name)
	}
	if params.ExpiresAfterDays > 0 {
		body.ExpiresAfter = openai.VectorStoreUpdateParamsExpiresAfter{
			Days: int64(params.ExpiresAfterDays),
		}
	}

	vs, err := provider.Retry(ctx, c.log, c.cfg.MaxRetries, provider.DefaultRetryDelay,
		func(ctx context.Context) (*openai.VectorStore, error) {
			vs, err := c.api.VectorStores.Update(ctx, storeID, body)
			if err != nil {
				return nil, classify(err)
			}
			return vs, nil
		})
	if err != nil {
		return nil, err
	}

	c.log.Info("vector store updated", slog.String("store_id", storeID))
	return toStoreInfo(vs), nil
}

// DeleteStore removes a store.
func (c *Client) DeleteStore(ctx context.Context, storeID string) (bool, error) {
	deleted, err := provider.Retry(ctx, c.log, c.cfg.MaxRetries, provider.DefaultRetryDelay,
		func(ctx context.Context) (*openai.VectorStoreDeleted, error) {
			out, err := c.api.VectorStores.Delete(ctx, storeID)
			if err != nil {
				return nil, classify(err)
			}
			return out, nil
		})
	if err != nil {
		return false, err
	}

	c.log.Info("vector store deleted", slog.String("store_id", storeID))
	return deleted.Deleted, nil
}

// ListFiles returns all files attached to a store, following pagination.
func (c *Client) ListFiles(ctx context.Context, storeID string) ([]provider.FileInfo, error) {
	return provider.Retry(ctx, c.log, c.cfg.MaxRetries, provider.DefaultRetryDelay,
		func(ctx context.Context) ([]provider.FileInfo, error) {
			var out []provider.FileInfo
			iter := c.api.VectorStores.Files.ListAutoPaging(ctx, storeID, openai.VectorStoreFileListParams{})
			for iter.Next() {
				f := iter.Current()
				out = append(out, *toFileInfo(&f))
			}
			if err := iter.Err(); err != nil {
				return nil, classify(err)
			}
			return out, nil
		})
}

// AttachFile attaches an already-uploaded file to a store and blocks until
// ingestion reaches a terminal state or the poll budget is exhausted.
func (c *Client) AttachFile(ctx context.Context, storeID, fileID string) (*provider.FileInfo, error) {
	_, err := provider.Retry(ctx, c.log, c.cfg.MaxRetries, provider.DefaultRetryDelay,
		func(ctx context.Context) (*openai.VectorStoreFile, error) {
			f, err := c.api.VectorStores.Files.New(ctx, storeID, openai.VectorStoreFileNewParams{
				FileID: fileID,
			})
			if err != nil {
				return nil, classify(err)
			}
			return f, nil
		})
	if err != nil {
		return nil, err
	}

	return c.waitForIngestion(ctx, storeID, fileID)
}

// DetachFile removes a file from a store. The underlying file object is kept.
func (c *Client) DetachFile(ctx context.Context, storeID, fileID string) (bool, error) {
	deleted, err := provider.Retry(ctx, c.log, c.cfg.MaxRetries, provider.DefaultRetryDelay,
		func(ctx context.Context) (*openai.VectorStoreFileDeleted, error) {
			out, err := c.api.VectorStores.Files.Delete(ctx, storeID, fileID)
			if err != nil {
				return nil, classify(err)
			}
			return out, nil
		})
	if err != nil {
		return false, err
	}

	c.log.Info("file detached",
		slog.String("store_id", storeID),
		slog.String("file_id", fileID),
	)
	return deleted.Deleted, nil
}

// UploadAndAttach uploads raw content as a new vendor file, attaches it to
// the store, and blocks until ingestion reaches a terminal state.
func (c *Client) UploadAndAttach(ctx context.Context, storeID string, content []byte, filename, mimeType string) (*provider.FileInfo, error) {
	uploaded, err := provider.Retry(ctx, c.log, c.cfg.MaxRetries, provider.DefaultRetryDelay,
		func(ctx context.Context) (*openai.FileObject, error) {
			f, err := c.api.Files.New(ctx, openai.FileNewParams{
				File:    openai.File(bytes.NewReader(content), filename, mimeType),
				Purpose: openai.FilePurposeAssistants,
			})
			if err != nil {
				return nil, classify(err)
			}
			return f, nil
		})
	if err != nil {
		return nil, err
	}

	c.log.Info("file uploaded",
		slog.String("file_id", uploaded.ID),
		slog.String("filename", filename),
		slog.Int("bytes", len(content)),
	)
	return c.AttachFile(ctx, storeID, uploaded.ID)
}

// waitForIngestion runs the attach polling state machine against the
// vendor's file-status endpoint. A 404 here means the attachment record is
// not yet visible and is retried, unlike the generic retry path where a 404
// is terminal.
func (c *Client) waitForIngestion(ctx context.Context, storeID, fileID string) (*provider.FileInfo, error) {
	return c.poll.WaitForFile(ctx, c.log, fileID, func(ctx context.Context) (*provider.FileInfo, error) {
		f, err := c.api.VectorStores.Files.Get(ctx, storeID, fileID)
		if err != nil {
			return nil, classify(err)
		}
		return toFileInfo(f), nil
	})
}

// toStoreInfo converts the vendor record into the normalized result shape.
func toStoreInfo(vs *openai.VectorStore) *provider.StoreInfo {
	info := &provider.StoreInfo{
		ID:     vs.ID,
		Name:   vs.Name,
		Status: storeStatus(vs.Status),
		FileCounts: provider.FileCounts{
			InProgress: int(vs.FileCounts.InProgress),
			Completed:  int(vs.FileCounts.Completed),
			Failed:     int(vs.FileCounts.Failed),
			Cancelled:  int(vs.FileCounts.Cancelled),
			Total:      int(vs.FileCounts.Total),
		},
		UsageBytes: vs.UsageBytes,
		CreatedAt:  time.Unix(vs.CreatedAt, 0).UTC(),
	}
	if len(vs.Metadata) > 0 {
		info.Metadata = make(map[string]any, len(vs.Metadata))
		for k, v := range vs.Metadata {
			info.Metadata[k] = v
		}
	}
	if vs.ExpiresAfter.Days > 0 {
		info.ExpiresAfterDays = int(vs.ExpiresAfter.Days)
	}
	return info
}

// storeStatus maps the vendor lifecycle state onto the normalized one.
func storeStatus(s openai.VectorStoreStatus) provider.StoreStatus {
	switch s {
	case openai.VectorStoreStatusCompleted:
		return provider.StoreReady
	case openai.VectorStoreStatusInProgress:
		return provider.StoreCreating
	default:
		// "expired" and anything the vendor adds later.
		return provider.StoreFailed
	}
}

// toFileInfo converts the vendor attachment record into the normalized shape.
func toFileInfo(f *openai.VectorStoreFile) *provider.FileInfo {
	info := &provider.FileInfo{
		ID:        f.ID,
		Status:    fileStatus(f.Status),
		CreatedAt: time.Unix(f.CreatedAt, 0).UTC(),
	}
	if f.LastError.Message != "" {
		info.FailureReason = f.LastError.Message
	} else if f.LastError.Code != "" {
		info.FailureReason = string(f.LastError.Code)
	}
	return info
}

// fileStatus maps the vendor ingestion state onto the normalized one.
func fileStatus(s openai.VectorStoreFileStatus) provider.FileStatus {
	switch s {
	case openai.VectorStoreFileStatusCompleted:
		return provider.FileCompleted
	case openai.VectorStoreFileStatusFailed:
		return provider.FileFailed
	case openai.VectorStoreFileStatusCancelled:
		return provider.FileCancelled
	default:
		return provider.FileInProgress
	}
}

// wireMetadata sanitizes caller metadata and renders it in the flat string
// map the vendor wire format requires.
func wireMetadata(metadata map[string]any) shared.Metadata {
	strs := provider.MetadataStrings(metadata)
	if strs == nil {
		return nil
	}
	return shared.Metadata(strs)
}

// classify maps an openai-go failure onto the typed taxonomy, preferring the
// vendor's machine tag over the numeric status. The raw error is kept as the
// cause; credential material never appears in the result.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		tag := apierr.Code
		if tag == "" {
			tag = apierr.Type
		}
		msg := apierr.Message
		if msg == "" {
			msg = fmt.Sprintf("openai request failed with HTTP %d", apierr.StatusCode)
		}
		return provider.ClassifyResponse(apierr.StatusCode, tag, msg, err)
	}
	return provider.Classify(err)
}

// Compile-time capability check.
var _ provider.VectorStore = (*Client)(nil)
