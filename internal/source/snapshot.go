package source

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"vigil/internal/config"
)

// SnapshotSource polls an HTTP endpoint that returns a single JPEG per
// request, the lowest common denominator across IP cameras.
type SnapshotSource struct {
	client   *resty.Client
	endpoint string
	redacted string
	interval time.Duration
	maxBytes int

	last time.Time
}

// NewSnapshotSource builds the HTTP client. Credentials embedded in the URL are
// moved to basic auth so they never appear in request logs.
func NewSnapshotSource(cfg config.Source) (*SnapshotSource, error) {
	parsed, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse snapshot url %s: %w", RedactURL(cfg.URL), err)
	}
	client := resty.New().
		SetTimeout(seconds(cfg.ReadTimeoutSeconds)).
		SetRetryCount(cfg.SnapshotRetryCount).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "image/jpeg").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= http.StatusInternalServerError)
		})
	if parsed.User != nil {
		password, _ := parsed.User.Password()
		client.SetBasicAuth(parsed.User.Username(), password)
		parsed.User = nil
	}
	if cfg.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true}) //nolint:gosec // opt-in for self-signed cameras
	}
	return &SnapshotSource{
		client:   client,
		endpoint: parsed.String(),
		redacted: RedactURL(cfg.URL),
		interval: millis(cfg.PollIntervalMillis),
		maxBytes: cfg.MaxFrameBytes,
	}, nil
}

// Open verifies the endpoint answers with an image.
func (s *SnapshotSource) Open(ctx context.Context) error {
	_, err := s.fetch(ctx)
	return err
}

// Read waits for the poll interval and fetches the next snapshot.
func (s *SnapshotSource) Read(ctx context.Context) ([]byte, error) {
	if err := pace(ctx, s.last, s.interval); err != nil {
		return nil, err
	}
	return s.fetch(ctx)
}

// Close is a no-op; the HTTP client keeps no per-connection state.
func (s *SnapshotSource) Close() error {
	return nil
}

func (s *SnapshotSource) fetch(ctx context.Context) ([]byte, error) {
	s.last = time.Now()
	resp, err := s.client.R().SetContext(ctx).Get(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.redacted, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("snapshot %s: unexpected status %d", s.redacted, resp.StatusCode())
	}
	body := resp.Body()
	if s.maxBytes > 0 && len(body) > s.maxBytes {
		return nil, fmt.Errorf("snapshot %s: frame of %d bytes exceeds limit %d", s.redacted, len(body), s.maxBytes)
	}
	if !looksLikeJPEG(body) {
		return nil, fmt.Errorf("snapshot %s: response is not a JPEG (content-type %q)", s.redacted, resp.Header().Get("Content-Type"))
	}
	return body, nil
}
