// Package httpx builds the HTTP client used for every upstream call.
package httpx

import (
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	logx "crest/pkg/logx"
)

// UserAgent is sent on every upstream request.
const UserAgent = "crest/1.0"

type Config struct {
	Timeout      time.Duration // per attempt; 0 means 30s
	RetryMax     int           // 0 disables retries
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryWaitMin <= 0 {
		c.RetryWaitMin = 500 * time.Millisecond
	}
	if c.RetryWaitMax < c.RetryWaitMin {
		c.RetryWaitMax = 10 * time.Second
	}
	return c
}

// New returns a *http.Client that retries connection errors and 5xx/429 responses
// with backoff. 4xx responses are returned to the caller untouched.
func New(cfg Config, log logx.Logger) *http.Client {
	cfg = cfg.withDefaults()
	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.Logger = leveled{log: log.With(logx.String("comp", "http"))}
	rc.HTTPClient.Transport = userAgent{base: rc.HTTPClient.Transport}
	// Hand the final response back instead of retryablehttp's "giving up" error,
	// so callers can read status and body.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc.StandardClient()
}

// NoRetry is for calls whose response status is itself the answer, e.g. webhook probes.
func NoRetry(timeout time.Duration, log logx.Logger) *http.Client {
	return New(Config{Timeout: timeout, RetryMax: 0}, log)
}

// leveled adapts logx to retryablehttp.LeveledLogger. Its chatty per-request
// lines go to Trace/Debug.
type leveled struct{ log logx.Logger }

func (l leveled) Error(msg string, kv ...interface{}) { l.log.Warn(msg, fields(kv)...) }
func (l leveled) Warn(msg string, kv ...interface{})  { l.log.Debug(msg, fields(kv)...) }
func (l leveled) Info(msg string, kv ...interface{})  { l.log.Trace(msg, fields(kv)...) }
func (l leveled) Debug(msg string, kv ...interface{}) { l.log.Trace(msg, fields(kv)...) }

func fields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		if err, ok := kv[i+1].(error); ok {
			out = append(out, logx.String(k, err.Error()))
			continue
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}

type userAgent struct{ base http.RoundTripper }

func (u userAgent) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", UserAgent)
	}
	base := u.base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req)
}
