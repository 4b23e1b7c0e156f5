// Package probe measures round-trip latency with a single HTTP GET.
package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/John-Robertt/v2ray-mvp/internal/model"
)

const (
	DefaultURL     = "https://8.8.8.8"
	DefaultTimeout = 10 * time.Second

	stage = "ping"
	// Only a prefix of the body is read; the response is not used.
	drainLimit = 64 << 10
)

type Options struct {
	URL          string
	Timeout      time.Duration // default 10s
	MaxRedirects int           // default 5
	Transport    http.RoundTripper
}

func (o Options) withDefaults() Options {
	if o.URL == "" {
		o.URL = DefaultURL
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.MaxRedirects <= 0 {
		o.MaxRedirects = 5
	}
	if o.Transport == nil {
		o.Transport = http.DefaultTransport
	}
	return o
}

// Error carries the HTTP status the API layer should answer with.
type Error struct {
	Status   int
	AppError model.AppError
	Cause    error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.AppError.Code, e.AppError.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.AppError.Code, e.AppError.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

var (
	errTooManyRedirects   = errors.New("too many redirects")
	errRedirectBadScheme  = errors.New("redirect target scheme is not http/https")
	errInvalidURLOrScheme = errors.New("invalid url or scheme")
)

func newError(status int, code, message, rawURL string, cause error) error {
	return &Error{
		Status: status,
		AppError: model.AppError{
			Code:    code,
			Message: message,
			Stage:   stage,
			URL:     rawURL,
		},
		Cause: cause,
	}
}

// Latency issues a GET and returns the time until the response headers
// arrived. Any non-2xx status is an error.
func Latency(ctx context.Context, opt Options) (time.Duration, error) {
	opt = opt.withDefaults()
	rawURL := opt.URL

	u, err := url.Parse(rawURL)
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") {
		return 0, newError(http.StatusBadRequest, "INVALID_ARGUMENT", "仅允许 http/https URL", rawURL,
			errors.Join(errInvalidURLOrScheme, err))
	}

	client := &http.Client{
		Timeout:   opt.Timeout,
		Transport: opt.Transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) > opt.MaxRedirects {
				return errTooManyRedirects
			}
			if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
				return errRedirectBadScheme
			}
			return nil
		},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, newError(http.StatusBadRequest, "INVALID_ARGUMENT", "请求 URL 不合法", rawURL, err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		var ne net.Error
		switch {
		case errors.Is(err, errTooManyRedirects):
			return 0, newError(http.StatusBadGateway, "PING_FAILED",
				fmt.Sprintf("重定向次数超过上限（>%d）", opt.MaxRedirects), rawURL, err)
		case errors.Is(err, errRedirectBadScheme):
			return 0, newError(http.StatusBadGateway, "PING_FAILED", "重定向目标仅允许 http/https", rawURL, err)
		case errors.As(err, &ne) && ne.Timeout(), errors.Is(err, context.DeadlineExceeded):
			return 0, newError(http.StatusGatewayTimeout, "PING_TIMEOUT", "Ping 超时", rawURL, err)
		default:
			return 0, newError(http.StatusBadGateway, "PING_FAILED", "Ping failed", rawURL, err)
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, drainLimit))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, newError(http.StatusBadGateway, "PING_FAILED",
			fmt.Sprintf("Ping request returned non-OK status: %d", resp.StatusCode), rawURL, nil)
	}
	return elapsed, nil
}
