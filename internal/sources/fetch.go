package sources

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"clipforge/internal/fileutil"
	"clipforge/internal/logging"
	"clipforge/internal/queue"
	"clipforge/internal/services"
)

const (
	defaultDownloadTimeout = 30 * time.Minute
	stageName              = "prepare"
)

// ObjectResolver maps an object key onto a local path.
type ObjectResolver interface {
	Path(key string) (string, error)
}

// Fetched is a resolved source.
type Fetched struct {
	Path string
	// Downloaded marks Path as a staging copy owned by the item.
	Downloaded bool
	Size       int64
}

// Fetcher resolves item sources.
type Fetcher struct {
	objects    ObjectResolver
	httpClient *http.Client
	logger     *slog.Logger
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the client used for URL downloads.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.httpClient = c
		}
	}
}

// WithLogger sets the fetcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFetcher builds a fetcher. objects may be nil when object sources are
// not supported.
func NewFetcher(objects ObjectResolver, opts ...Option) *Fetcher {
	f := &Fetcher{
		objects:    objects,
		httpClient: &http.Client{Timeout: defaultDownloadTimeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch resolves item's source. URL downloads are written into dir.
func (f *Fetcher) Fetch(ctx context.Context, item *queue.Item, dir string) (Fetched, error) {
	if item == nil {
		return Fetched{}, services.Wrap(services.ErrValidation, stageName, "fetch", "item is nil", nil)
	}
	location := strings.TrimSpace(item.SourceLocation)
	switch item.SourceKind {
	case queue.SourceLocal:
		return statLocal(location, "local source")
	case queue.SourceObject:
		if f.objects == nil {
			return Fetched{}, services.Wrap(services.ErrConfiguration, stageName, "resolve object", "no object store configured", nil)
		}
		p, err := f.objects.Path(location)
		if err != nil {
			return Fetched{}, services.Wrap(services.ErrItemFatal, stageName, "resolve object", location, err)
		}
		return statLocal(p, "object "+location)
	case queue.SourceURL:
		return f.download(ctx, location, dir)
	default:
		return Fetched{}, services.Wrap(services.ErrItemFatal, stageName, "fetch",
			fmt.Sprintf("unknown source kind %q", item.SourceKind), nil)
	}
}

func statLocal(p, label string) (Fetched, error) {
	if !filepath.IsAbs(p) {
		return Fetched{}, services.Wrap(services.ErrItemFatal, stageName, "stat source", label+" is not an absolute path", nil)
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fetched{}, services.Wrap(services.ErrItemFatal, stageName, "stat source", label+" does not exist", err)
		}
		return Fetched{}, services.Wrap(services.ErrTransient, stageName, "stat source", label, err)
	}
	if info.IsDir() {
		return Fetched{}, services.Wrap(services.ErrItemFatal, stageName, "stat source", label+" is a directory", nil)
	}
	return Fetched{Path: p, Size: info.Size()}, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dir string) (Fetched, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Fetched{}, services.Wrap(services.ErrItemFatal, stageName, "download", fmt.Sprintf("invalid url %q", rawURL), err)
	}
	if strings.TrimSpace(dir) == "" {
		return Fetched{}, services.Wrap(services.ErrConfiguration, stageName, "download", "no staging directory", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Fetched{}, services.Wrap(services.ErrItemFatal, stageName, "download", "build request", err)
	}
	started := time.Now()
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Fetched{}, classifyTransport(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		marker := services.ErrItemFatal
		if resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			marker = services.ErrTransient
		}
		return Fetched{}, services.Wrap(marker, stageName, "download", fmt.Sprintf("GET %s: %s", u.Redacted(), resp.Status), nil)
	}

	target := filepath.Join(dir, "source"+extensionFor(u, resp.Header.Get("Content-Type")))
	size, _, err := fileutil.WriteAtomic(target, resp.Body, 0o644)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Fetched{}, ctxErr
		}
		return Fetched{}, services.Wrap(services.ErrTransient, stageName, "download", "write body", err)
	}
	if resp.ContentLength > 0 && size != resp.ContentLength {
		_ = os.Remove(target)
		return Fetched{}, services.Wrap(services.ErrTransient, stageName, "download",
			fmt.Sprintf("short body: got %d of %d bytes", size, resp.ContentLength), nil)
	}
	logging.WithContext(ctx, f.logger).Info("source downloaded",
		logging.String(logging.FieldEventType, "source_downloaded"),
		logging.String("url", u.Redacted()),
		logging.Int64("bytes", size),
		logging.Duration("elapsed", time.Since(started)),
	)
	return Fetched{Path: target, Downloaded: true, Size: size}, nil
}

func classifyTransport(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, stageName, "download", "request timed out", err)
	}
	return services.Wrap(services.ErrTransient, stageName, "download", "request failed", err)
}

func extensionFor(u *url.URL, contentType string) string {
	if ext := strings.ToLower(path.Ext(u.Path)); ext != "" && len(ext) <= 6 {
		return ext
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			return exts[0]
		}
	}
	return ".bin"
}
