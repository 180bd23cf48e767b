package commands

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/opencamphq/campd/internal/mail"
	"github.com/opencamphq/campd/internal/provider"
	"github.com/opencamphq/campd/internal/provider/openaivs"
	"github.com/opencamphq/campd/internal/provider/s3store"
	"github.com/opencamphq/campd/internal/search"
)

// envInt parses an integer env var, falling back to def when unset or
// malformed.
func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

// envBool parses a boolean env var; anything strconv rejects counts as false.
func envBool(name string) bool {
	v, _ := strconv.ParseBool(os.Getenv(name))
	return v
}

// buildRegistry registers constructors for every provider type. Each
// constructor validates its own configuration and returns a
// Configuration-kind error when it is absent, so the registry records the
// slot as unavailable instead of failing startup.
func buildRegistry(log *slog.Logger) *provider.Registry {
	registry := provider.NewRegistry(log)

	registry.Register(provider.TypeVectorStore, func(_ context.Context) (provider.Provider, error) {
		return openaivs.New(provider.Config{
			APIKey:       os.Getenv("OPENAI_API_KEY"),
			Organization: os.Getenv("OPENAI_ORGANIZATION"),
			BaseEndpoint: os.Getenv("OPENAI_BASE_URL"),
		}, log)
	})

	registry.Register(provider.TypeObjectStorage, func(_ context.Context) (provider.Provider, error) {
		return s3store.New(s3store.Config{
			Region:          os.Getenv("AWS_REGION"),
			Bucket:          os.Getenv("S3_BUCKET"),
			AccessKeyID:     os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			UsePathStyle:    envBool("S3_PATH_STYLE"),
			PublicBaseURL:   os.Getenv("S3_PUBLIC_BASE_URL"),
		}, log)
	})

	registry.Register(provider.TypeMail, func(_ context.Context) (provider.Provider, error) {
		return mail.New(mail.Config{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     envInt("SMTP_PORT", 0),
			Username: os.Getenv("SMTP_USERNAME"),
			Password: os.Getenv("SMTP_PASSWORD"),
			From:     os.Getenv("SMTP_FROM"),
		}, log)
	})

	return registry
}

// searchConfigFromEnv reads the Qdrant connection settings. The similarity
// index is considered configured when QDRANT_HOST is set.
func searchConfigFromEnv() (search.Config, bool) {
	host := os.Getenv("QDRANT_HOST")
	if host == "" {
		return search.Config{}, false
	}
	return search.Config{
		Host:       host,
		Port:       envInt("QDRANT_PORT", 0),
		Collection: os.Getenv("QDRANT_COLLECTION"),
		VectorSize: uint64(envInt("EMBEDDING_DIMENSIONS", 0)),
		APIKey:     os.Getenv("QDRANT_API_KEY"),
		UseTLS:     envBool("QDRANT_TLS"),
	}, true
}
