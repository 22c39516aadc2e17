package generation

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"time"

	"menu3d/internal/infra"
	"menu3d/internal/storage"
)

// Materialized is the outcome of persisting a provider asset.
type Materialized struct {
	URL       string
	SizeBytes *int64
	// Local is false when the remote URL is used as a fallback.
	Local bool
}

// Materializer copies provider output into the models namespace.
type Materializer struct {
	store    ObjectStore
	client   *http.Client
	timeout  time.Duration
	maxBytes int64
	logger   infra.Logger
	now      func() time.Time
}

// MaterializerOptions configures a Materializer; zero values get defaults.
type MaterializerOptions struct {
	Store      ObjectStore
	HTTPClient *http.Client
	Timeout    time.Duration
	MaxBytes   int64
	Logger     infra.Logger
}

// NewMaterializer builds a Materializer with a two minute download timeout by default.
func NewMaterializer(opts MaterializerOptions) *Materializer {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Materializer{
		store:    opts.Store,
		client:   client,
		timeout:  timeout,
		maxBytes: opts.MaxBytes,
		logger:   infra.Component(opts.Logger, "materializer"),
		now:      time.Now,
	}
}

// Materialize downloads remoteURL into durable storage. It never fails: on any
// fetch or write error the remote URL itself is returned.
func (m *Materializer) Materialize(ctx context.Context, jobID, dishID, remoteURL string) Materialized {
	logger := m.logger.With().Str("job_id", jobID).Str("remote_url", remoteURL).Logger()

	key, size, err := m.download(ctx, jobID, dishID, remoteURL)
	if err != nil {
		logger.Warn().Err(err).Msg("materialization failed, falling back to remote url")
		return Materialized{URL: remoteURL}
	}
	logger.Info().Str("key", key).Int64("bytes", size).Msg("model materialized")
	return Materialized{URL: m.store.PublicURL(key), SizeBytes: &size, Local: true}
}

func (m *Materializer) download(ctx context.Context, jobID, dishID, remoteURL string) (string, int64, error) {
	parsed, err := url.Parse(remoteURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", 0, fmt.Errorf("unsupported asset url %q", remoteURL)
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return "", 0, fmt.Errorf("build download request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download asset: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("download status %d", resp.StatusCode)
	}
	if m.maxBytes > 0 && resp.ContentLength > m.maxBytes {
		return "", 0, storage.ErrTooLarge
	}

	key := path.Join(storage.NamespaceModels, modelFilename(jobID, dishID, remoteURL, m.now()))
	storedKey, size, err := m.store.WriteStream(ctx, key, resp.Body, m.maxBytes)
	if err != nil {
		return "", 0, fmt.Errorf("store asset: %w", err)
	}
	return storedKey, size, nil
}
