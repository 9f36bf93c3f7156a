package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

var (
	ErrNotConfigured = errors.New("platform base url or project id not configured")
	ErrNoVersion     = errors.New("platform returned no version for mini-app")
)

// StatusError is a non-2xx response from the platform.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
}

// Config configures the platform client.
type Config struct {
	BaseURL         string
	ProjectID       string
	SubscriptionKey string
	HostVersion     string
	Preview         bool
	Timeout         time.Duration
	MaxRetries      int
	RequestsPerSec  float64
}

// Client is the platform API client.
type Client struct {
	cfg     Config
	resty   *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// NewClient creates a client with retries, rate limiting and a breaker.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" || cfg.ProjectID == "" {
		return nil, ErrNotConfigured
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid platform base url: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	logger = logger.Named("platform")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = max(cfg.MaxRetries, 0)
	retryClient.RetryWaitMin = 250 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = nil
	retryClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	restyClient := resty.NewWithClient(retryClient.StandardClient()).
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "miniapp-host/"+cfg.HostVersion).
		SetHeader("Accept", "application/json").
		SetJSONMarshaler(sonic.Marshal).
		SetJSONUnmarshaler(sonic.Unmarshal)
	if cfg.SubscriptionKey != "" {
		restyClient.SetHeader("apiKey", "ras-"+cfg.SubscriptionKey)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), max(int(cfg.RequestsPerSec), 1))
	}

	breaker := resilience.New("platform", resilience.Settings{
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var status *StatusError
			if errors.As(err, &status) {
				return status.Code < 500
			}
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Platform breaker changed state",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Client{cfg: cfg, resty: restyClient, limiter: limiter, breaker: breaker, logger: logger}, nil
}

// Breaker exposes the client's circuit breaker.
func (c *Client) Breaker() *resilience.Breaker {
	return c.breaker
}

func (c *Client) appPath(appID string) string {
	project := url.PathEscape(c.cfg.ProjectID)
	if c.cfg.Preview {
		return "/host/" + project + "/preview/miniapp/" + url.PathEscape(appID)
	}
	return "/host/" + project + "/miniapp/" + url.PathEscape(appID)
}

func (c *Client) versionPath(appID, versionID string) string {
	return c.appPath(appID) + "/version/" + url.PathEscape(versionID)
}

// getJSON fetches path into out through the limiter and breaker.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.breaker.Call(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit error: %w", err)
		}
		resp, err := c.resty.R().SetContext(ctx).SetHeaders(tracing.Headers(ctx)).ForceContentType("application/json").SetResult(out).Get(path)
		if err != nil {
			return fmt.Errorf("failed to get %s: %w", path, err)
		}
		if resp.IsError() {
			return &StatusError{Method: http.MethodGet, URL: path, Code: resp.StatusCode()}
		}
		return nil
	})
}

// Info returns the latest published info of appID.
func (c *Client) Info(ctx context.Context, appID string) (*types.Info, error) {
	if err := types.ValidateKey(appID); err != nil {
		return nil, err
	}
	var infos []types.Info
	if err := c.getJSON(ctx, c.appPath(appID)+"/info", &infos); err != nil {
		return nil, err
	}
	if len(infos) == 0 || infos[0].Version.VersionID == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoVersion, appID)
	}
	info := infos[0]
	if info.ID == "" {
		info.ID = appID
	}
	return &info, nil
}

type metadataResponse struct {
	BundleManifest *types.Manifest `json:"bundleManifest"`
}

// Metadata returns the manifest of one version.
func (c *Client) Metadata(ctx context.Context, appID, versionID string) (*types.Manifest, error) {
	var out metadataResponse
	if err := c.getJSON(ctx, c.versionPath(appID, versionID)+"/metadata", &out); err != nil {
		return nil, err
	}
	m := out.BundleManifest
	if m == nil {
		m = &types.Manifest{}
	}
	m.VersionID = versionID
	return m, nil
}

type fileListResponse struct {
	Manifest []string `json:"manifest"`
}

// Files returns the file URLs of one version.
func (c *Client) Files(ctx context.Context, appID, versionID string) ([]string, error) {
	var out fileListResponse
	if err := c.getJSON(ctx, c.versionPath(appID, versionID)+"/manifest", &out); err != nil {
		return nil, err
	}
	return out.Manifest, nil
}

// Download streams fileURL to w.
func (c *Client) Download(ctx context.Context, fileURL string, w io.Writer) (int64, error) {
	return resilience.Execute(ctx, c.breaker, func(ctx context.Context) (int64, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("rate limit error: %w", err)
		}
		resp, err := c.resty.R().SetContext(ctx).SetHeaders(tracing.Headers(ctx)).SetDoNotParseResponse(true).Get(fileURL)
		if err != nil {
			return 0, fmt.Errorf("failed to download %s: %w", fileURL, err)
		}
		body := resp.RawBody()
		defer body.Close()
		if resp.StatusCode() >= 300 {
			return 0, &StatusError{Method: http.MethodGet, URL: fileURL, Code: resp.StatusCode()}
		}
		n, err := io.Copy(w, body)
		if err != nil {
			return n, fmt.Errorf("failed to read %s: %w", fileURL, err)
		}
		return n, nil
	})
}
