package inference

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"vigil/internal/config"
	"vigil/internal/event"
)

// Detector finds objects in a JPEG frame.
type Detector interface {
	Detect(ctx context.Context, jpeg []byte) ([]event.Detection, error)
}

// HTTPDetector posts frames to an object detection service. The service
// answers with {"objects":[{"label":..,"confidence":..,"bbox":{"x":..,"y":..,"w":..,"h":..}}]}.
type HTTPDetector struct {
	client   *resty.Client
	endpoint string
}

type detectResponse struct {
	Objects []event.Detection `json:"objects"`
	Error   string            `json:"error"`
}

// NewHTTPDetector builds the client. Retries cover transport errors and 5xx
// answers; the coordinator's timeout bounds the whole exchange.
func NewHTTPDetector(cfg config.Detector) (*HTTPDetector, error) {
	endpoint := strings.TrimSpace(cfg.URL)
	parsed, err := url.Parse(endpoint)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("detector url %q is not an absolute URL", endpoint)
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(max(cfg.RetryCount, 0)).
		SetRetryWaitTime(100*time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= http.StatusInternalServerError)
		})
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		client.SetAuthToken(key)
	}
	return &HTTPDetector{client: client, endpoint: endpoint}, nil
}

// Detect implements Detector.
func (d *HTTPDetector) Detect(ctx context.Context, jpeg []byte) ([]event.Detection, error) {
	var result detectResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "image/jpeg").
		SetBody(jpeg).
		SetResult(&result).
		SetError(&result).
		Post(d.endpoint)
	if err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	if resp.IsError() {
		msg := strings.TrimSpace(result.Error)
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, fmt.Errorf("detector request: http %d: %s", resp.StatusCode(), msg)
	}
	return result.Objects, nil
}

// HealthCheck reports whether the service answers at all. Any response below
// 500 counts, since detection endpoints commonly reject GET.
func (d *HTTPDetector) HealthCheck(ctx context.Context) error {
	resp, err := d.client.R().SetContext(ctx).Get(d.endpoint)
	if err != nil {
		return fmt.Errorf("detector health: %w", err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("detector health: http %d", resp.StatusCode())
	}
	return nil
}
