package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caffeineduck/creek/internal/logger"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 16 << 20
	DefaultRequestTimeout = 30 * time.Second
)

// HTTPConfig limits outbound requests made on behalf of scripts, such as the
// Instagram downloader fetching post media.
type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
	UserAgent      string
}

type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

// DefaultUserAgent is sent when HTTPConfig.UserAgent is empty.
const DefaultUserAgent = "creek/1"

const maxRedirects = 10

func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	h := &HTTP{cfg: cfg}
	h.client = &http.Client{
		Timeout: cfg.RequestTimeout,
		// Media URLs redirect to CDN hosts; every hop must be allowed too.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return h.checkURL(req.URL)
		},
	}
	return h
}

// Register installs http_request and http_get on r.
func (h *HTTP) Register(r *Registry) {
	r.Register("http_request", h.Request)
	r.Register("http_get", h.Get)
}

// Get is Request with the method forced to GET.
func (h *HTTP) Get(ctx context.Context, args map[string]any) (any, error) {
	withMethod := make(map[string]any, len(args)+1)
	for k, v := range args {
		withMethod[k] = v
	}
	withMethod["method"] = http.MethodGet
	return h.Request(ctx, withMethod)
}

// Request performs an HTTP request. Args: url, method, body, headers,
// encoding of the response body ("text" or "base64"). The result holds
// status, body, headers and final_url after redirects.
func (h *HTTP) Request(ctx context.Context, args map[string]any) (any, error) {
	method := strings.ToUpper(optionalString(args, "method", http.MethodGet))
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodHead:
	default:
		return nil, fmt.Errorf("unsupported method: %s", method)
	}

	rawURL, err := stringArg(args, "url")
	if err != nil {
		return nil, err
	}
	if len(rawURL) > h.cfg.MaxURLLength {
		return nil, fmt.Errorf("url exceeds max length of %d", h.cfg.MaxURLLength)
	}
	enc, err := encodingArg(args)
	if err != nil {
		return nil, err
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if err := h.checkURL(parsed); err != nil {
		return nil, err
	}

	var body io.Reader
	if s, ok := args["body"].(string); ok && s != "" {
		if int64(len(s)) > h.cfg.MaxBodySize {
			return nil, fmt.Errorf("request body exceeds max size of %d bytes", h.cfg.MaxBodySize)
		}
		body = strings.NewReader(s)
	}

	req, err := http.NewRequestWithContext(ctx, method, parsed.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", h.cfg.UserAgent)
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if vs, ok := v.(string); ok {
				req.Header.Set(k, vs)
			}
		}
	}

	start := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := h.readBody(resp.Body)
	if err != nil {
		return nil, err
	}
	logger.DebugCtx(ctx, "script http request",
		logger.KeyHost, parsed.Hostname(), "status", resp.StatusCode, "bytes", len(data),
		logger.KeyDurationMs, logger.Duration(start))

	respHeaders := make(map[string]string, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	return map[string]any{
		"status":    resp.StatusCode,
		"body":      encode(data, enc),
		"headers":   respHeaders,
		"final_url": resp.Request.URL.String(),
	}, nil
}

func (h *HTTP) readBody(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, h.cfg.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > h.cfg.MaxBodySize {
		return nil, fmt.Errorf("response body exceeds max size of %d bytes", h.cfg.MaxBodySize)
	}
	return data, nil
}

// checkURL applies the scheme and host allow-list to u.
func (h *HTTP) checkURL(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if len(h.cfg.AllowedHosts) == 0 {
		return errors.New("http not enabled")
	}
	if host := u.Hostname(); !h.isHostAllowed(host) {
		return fmt.Errorf("host not allowed: %s", host)
	}
	return nil
}

// isHostAllowed matches exact hosts and their subdomains, so
// "cdninstagram.com" admits "scontent-ams2-1.cdninstagram.com".
func (h *HTTP) isHostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, allowed := range h.cfg.AllowedHosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
