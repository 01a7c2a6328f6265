// Package downloader performs the streaming HTTP fetch for one transfer.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"webdl/internal/config"
)

var (
	ErrInvalidURL        = errors.New("invalid URL")
	ErrUnsupportedScheme = errors.New("only http/https URLs are allowed")
)

// Sample is one throttled progress measurement. Percent is nil while the
// total size is unknown.
type Sample struct {
	Downloaded int64
	Total      int64
	Speed      int64 // bytes/sec averaged since transfer start
	Percent    *float64
}

// Fetcher streams remote resources to local files. The client has a
// connect-phase timeout only; the body transfer may run indefinitely.
type Fetcher struct {
	client  *http.Client
	headers map[string]string
	limiter *rate.Limiter
}

func New(cfg config.Config) *Fetcher {
	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	f := &Fetcher{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: time.Duration(cfg.ConnectTimeout),
				}).DialContext,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		headers: cfg.Headers,
	}
	if cfg.RateLimit > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), int(cfg.RateLimit))
	}
	return f
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, ErrInvalidURL
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrUnsupportedScheme
	}
	return u, nil
}

// Fetch GETs rawURL and copies the body to dst as it arrives. onProgress
// is called at most every 250ms with the running statistics. Returns the
// number of bytes written; the caller owns dst and partial-file cleanup.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, dst io.Writer, onProgress func(Sample)) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	for k, v := range f.headers {
		req.Header.Set(k, v)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	total := resp.ContentLength
	if total < 0 {
		total = 0 // unknown, typically chunked
	}

	var body io.Reader = resp.Body
	if f.limiter != nil {
		body = &limitedReader{r: body, limiter: f.limiter, ctx: ctx}
	}

	pr := &progressReader{
		r:          body,
		total:      total,
		onProgress: onProgress,
		start:      time.Now(),
		interval:   250 * time.Millisecond,
	}
	return io.Copy(dst, pr)
}

// progressReader counts bytes and emits throttled samples.
type progressReader struct {
	r          io.Reader
	total      int64
	downloaded int64
	onProgress func(Sample)
	start      time.Time
	interval   time.Duration
	lastEmit   time.Time
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.downloaded += int64(n)
		now := time.Now()
		if p.onProgress != nil && now.Sub(p.lastEmit) >= p.interval {
			p.lastEmit = now
			p.onProgress(p.sample(now))
		}
	}
	return n, err
}

func (p *progressReader) sample(now time.Time) Sample {
	s := Sample{
		Downloaded: p.downloaded,
		Total:      p.total,
		Speed:      averageSpeed(p.downloaded, now.Sub(p.start)),
	}
	if p.total > 0 {
		pct := math.Round(float64(p.downloaded)/float64(p.total)*1000) / 10
		s.Percent = &pct
	}
	return s
}

func averageSpeed(downloaded int64, elapsed time.Duration) int64 {
	if downloaded <= 0 {
		return 0
	}
	return int64(math.Round(float64(downloaded) / math.Max(elapsed.Seconds(), 0.001)))
}

// limitedReader caps throughput at the configured bytes/sec.
type limitedReader struct {
	r       io.Reader
	limiter *rate.Limiter
	ctx     context.Context
}

func (l *limitedReader) Read(buf []byte) (int, error) {
	if burst := l.limiter.Burst(); len(buf) > burst {
		buf = buf[:burst]
	}
	n, err := l.r.Read(buf)
	if n > 0 {
		if werr := l.limiter.WaitN(l.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
