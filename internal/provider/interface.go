// Package provider defines the capability contracts, typed error taxonomy,
// retry executor, and registry for the external providers campd integrates
// with: the AI vector-store vendor, the object-storage vendor, and email
// delivery. Route handlers obtain providers from the Registry and call
// capability methods with plain data records — no vendor SDK type ever
// crosses this boundary in either direction.
package provider

import (
	"context"
	"time"
)

// Type identifies a provider slot in the registry. One instance exists per
// type for the lifetime of the process.
type Type string

const (
	// TypeVectorStore is the AI vector-store provider (document retrieval).
	TypeVectorStore Type = "vectorstore"
	// TypeObjectStorage is the object-storage provider (documents, assets).
	TypeObjectStorage Type = "objectstorage"
	// TypeMail is the outbound email provider.
	TypeMail Type = "mail"
)

// Provider is the contract every concrete provider satisfies regardless of
// capability. Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the vendor label used in logs and readiness responses
	// (e.g. "openai", "s3", "smtp").
	Name() string

	// Ping checks whether the vendor is reachable with the configured
	// credentials. Returns nil on success, a classified error otherwise.
	Ping(ctx context.Context) error
}

// StoreStatus is the lifecycle state of a vector store. Transitions are
// vendor-driven: the adapter observes them, it never computes them locally.
type StoreStatus string

const (
	// StoreCreating means the store is still being provisioned.
	StoreCreating StoreStatus = "creating"
	// StoreReady means the store accepts file operations.
	StoreReady StoreStatus = "ready"
	// StoreFailed means provisioning failed; the store is unusable.
	StoreFailed StoreStatus = "failed"
)

// FileStatus is the ingestion state of a file attached to a vector store.
// Completed, Failed, and Cancelled are terminal.
type FileStatus string

const (
	// FileInProgress means the vendor is still ingesting the file.
	FileInProgress FileStatus = "in_progress"
	// FileCompleted means the file is fully ingested and searchable.
	FileCompleted FileStatus = "completed"
	// FileFailed means ingestion failed.
	FileFailed FileStatus = "failed"
	// FileCancelled means ingestion was cancelled before completion.
	FileCancelled FileStatus = "cancelled"
)

// Terminal reports whether no further transition is expected for s without
// a new operation.
func (s FileStatus) Terminal() bool {
	return s == FileCompleted || s == FileFailed || s == FileCancelled
}

// FileCounts summarizes the ingestion state of all files in a vector store.
type FileCounts struct {
	// InProgress is the number of files still being ingested.
	InProgress int `json:"inProgress"`
	// Completed is the number of fully ingested files.
	Completed int `json:"completed"`
	// Failed is the number of files whose ingestion failed.
	Failed int `json:"failed"`
	// Cancelled is the number of files whose ingestion was cancelled.
	Cancelled int `json:"cancelled"`
	// Total is the total number of files attached to the store.
	Total int `json:"total"`
}

// StoreInfo is the normalized, vendor-agnostic description of a vector store.
type StoreInfo struct {
	// ID is the vendor-assigned store identifier.
	ID string `json:"id"`
	// Name is the caller-supplied display name, if any.
	Name string `json:"name,omitempty"`
	// Status is the store lifecycle state.
	Status StoreStatus `json:"status"`
	// FileCounts summarizes attached file ingestion states.
	FileCounts FileCounts `json:"fileCounts"`
	// UsageBytes is the storage consumed by the store.
	UsageBytes int64 `json:"usageBytes"`
	// Metadata holds the flat scalar map stored with the record.
	Metadata map[string]any `json:"metadata,omitempty"`
	// ExpiresAfterDays is the expiry policy in days from last activity.
	// Zero means no expiry is set.
	ExpiresAfterDays int `json:"expiresAfterDays,omitempty"`
	// CreatedAt is when the vendor created the store.
	CreatedAt time.Time `json:"createdAt"`
}

// FileInfo is the normalized description of a file attached to a vector store.
type FileInfo struct {
	// ID is the vendor-assigned file identifier.
	ID string `json:"id"`
	// Status is the ingestion state.
	Status FileStatus `json:"status"`
	// FailureReason carries the vendor's explanation when Status is failed.
	FailureReason string `json:"failureReason,omitempty"`
	// CreatedAt is when the attachment was created.
	CreatedAt time.Time `json:"createdAt"`
}

// StoreParams are the caller-supplied attributes for creating or updating a
// vector store. Metadata is sanitized before transmission — see
// SanitizeMetadata.
type StoreParams struct {
	// Name is the display name for the store.
	Name string
	// Metadata holds arbitrary caller key-values. Non-scalar values are
	// JSON-stringified on the wire.
	Metadata map[string]any
	// ExpiresAfterDays sets the expiry policy in days from last activity.
	// Zero leaves the vendor default in place.
	ExpiresAfterDays int
}

// VectorStore is the capability contract for AI vector-store backends.
// Implementations must be safe for concurrent use. Operations against the
// same store ID from concurrent callers are not serialized by this layer;
// the vendor's consistency model governs outcomes.
type VectorStore interface {
	Provider

	// CreateStore provisions a new vector store.
	CreateStore(ctx context.Context, params StoreParams) (*StoreInfo, error)

	// GetStore fetches the current state of a store.
	GetStore(ctx context.Context, storeID string) (*StoreInfo, error)

	// UpdateStore modifies name, metadata, or expiry of a store.
	UpdateStore(ctx context.Context, storeID string, params StoreParams) (*StoreInfo, error)

	// DeleteStore removes a store. Returns true when the vendor confirms
	// the deletion.
	DeleteStore(ctx context.Context, storeID string) (bool, error)

	// ListFiles returns the files attached to a store.
	ListFiles(ctx context.Context, storeID string) ([]FileInfo, error)

	// AttachFile attaches an already-uploaded file to a store and blocks
	// until ingestion reaches a terminal state or the poll budget is
	// exhausted.
	AttachFile(ctx context.Context, storeID, fileID string) (*FileInfo, error)

	// DetachFile removes a file from a store without deleting the
	// underlying file object. Returns true when the vendor confirms.
	DetachFile(ctx context.Context, storeID, fileID string) (bool, error)

	// UploadAndAttach uploads raw content as a new file, attaches it to the
	// store, and blocks until ingestion reaches a terminal state.
	UploadAndAttach(ctx context.Context, storeID string, content []byte, filename, mimeType string) (*FileInfo, error)
}

// ObjectRef identifies an object produced by an upload. It is referenced,
// never mutated.
type ObjectRef struct {
	// Bucket is the bucket the object lives in.
	Bucket string `json:"bucket"`
	// Key is the object key within the bucket.
	Key string `json:"key"`
	// ETag is the entity tag the vendor assigned on upload.
	ETag string `json:"etag,omitempty"`
	// PublicURL is a browsable link when the bucket is public. Empty for
	// private buckets.
	PublicURL string `json:"publicUrl,omitempty"`
}

// PresignedURL is a time-limited credential-bearing URL for a single
// object-storage operation.
type PresignedURL struct {
	// URL is the presigned request URL.
	URL string `json:"url"`
	// PublicURL is the non-expiring browsable link, when available.
	PublicURL string `json:"publicUrl,omitempty"`
	// Key is the object key the URL operates on.
	Key string `json:"key"`
	// TTLSeconds is the validity window of the URL.
	TTLSeconds int `json:"ttlSeconds"`
}

// ObjectStorage is the capability contract for object-storage backends.
// Implementations must be safe for concurrent use.
type ObjectStorage interface {
	Provider

	// Put uploads content under the given key. contentType and metadata
	// are optional.
	Put(ctx context.Context, key string, content []byte, contentType string, metadata map[string]string) (*ObjectRef, error)

	// Delete removes the object at key. Deleting a missing key is not an
	// error — object deletion is idempotent.
	Delete(ctx context.Context, key string) error

	// PresignPut returns a time-limited URL permitting a single upload to key.
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (*PresignedURL, error)

	// PresignGet returns a time-limited URL permitting a single download of key.
	PresignGet(ctx context.Context, key string, ttl time.Duration) (*PresignedURL, error)
}

// Mailer is the capability contract for outbound email delivery.
type Mailer interface {
	Provider

	// Send delivers a single plain-text message to one recipient.
	Send(ctx context.Context, to, subject, body string) error
}
