package metadata

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/devilmonastery/fedmet/internal/config"
	"github.com/devilmonastery/fedmet/internal/pkg/metrics"
)

// Fetcher downloads federation metadata documents. It never mutates
// persisted state; classification of failures is done through the
// package error sentinels.
type Fetcher struct {
	client *http.Client
	log    *slog.Logger
}

// NewFetcher creates a fetcher with a connect timeout (dial) and a
// total-transfer timeout (whole request including body read).
func NewFetcher(cfg config.FetcherConfig, log *slog.Logger) *Fetcher {
	dialer := &net.Dialer{Timeout: cfg.ConnectTimeout}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ConnectTimeout,
	}
	return &Fetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.TransferTimeout,
		},
		log: log,
	}
}

// Fetch retrieves the metadata document at source. Sources are http(s)
// URLs, file:// URLs, or bare filesystem paths (local blob reference).
// An empty source yields ErrNoSource so callers can skip the federation
// without treating it as a failure.
func (f *Fetcher) Fetch(ctx context.Context, source string) ([]byte, error) {
	if source == "" {
		metrics.MetadataFetches.WithLabelValues("no_source").Inc()
		return nil, ErrNoSource
	}

	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return f.fetchHTTP(ctx, source)
	}

	path := strings.TrimPrefix(source, "file://")
	data, err := os.ReadFile(path)
	if err != nil {
		metrics.MetadataFetches.WithLabelValues("transient").Inc()
		return nil, fmt.Errorf("%w: reading %s: %v", ErrTransient, path, err)
	}
	metrics.MetadataFetches.WithLabelValues("ok").Inc()
	return data, nil
}

func (f *Fetcher) fetchHTTP(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		metrics.MetadataFetches.WithLabelValues("transient").Inc()
		return nil, fmt.Errorf("%w: %v", ErrTransient, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		metrics.MetadataFetches.WithLabelValues("transient").Inc()
		return nil, fmt.Errorf("%w: %s: %v", ErrTransient, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.MetadataFetches.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %s returned %s", ErrRemoteRejected, url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.MetadataFetches.WithLabelValues("transient").Inc()
		return nil, fmt.Errorf("%w: reading response from %s: %v", ErrTransient, url, err)
	}

	metrics.MetadataFetches.WithLabelValues("ok").Inc()
	f.log.Debug("fetched metadata document",
		slog.String("url", url),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)))

	return data, nil
}
