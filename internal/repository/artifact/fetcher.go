package artifact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"
)

const (
	// DefaultTimeout bounds a single fetch.
	DefaultTimeout = 2 * time.Minute

	// DefaultMaxSize caps how many bytes a fetch may return.
	DefaultMaxSize int64 = 512 << 20
)

var (
	errBadHTTPStatus     = errors.New("unexpected http status")
	errTooLarge          = errors.New("artifact exceeds size limit")
	errUnsupportedScheme = errors.New("unsupported url scheme")
	errNoFileName        = errors.New("url does not name a file")
)

// Fetcher returns the bytes of the artifact at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Option configures fetchers built by this package.
type Option func(*settings)

type settings struct {
	client    *http.Client
	timeout   time.Duration
	maxSize   int64
	mirrorDir string
}

// WithTimeout sets the per-fetch timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(s *settings) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithMaxSize sets the largest artifact accepted.
func WithMaxSize(size int64) Option {
	return func(s *settings) {
		if size > 0 {
			s.maxSize = size
		}
	}
}

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		if client != nil {
			s.client = client
		}
	}
}

// WithMirror serves http(s) URLs from dir, matched by file base name.
func WithMirror(dir string) Option {
	return func(s *settings) {
		s.mirrorDir = dir
	}
}

func newSettings(opts []Option) *settings {
	s := &settings{
		client:  http.DefaultClient,
		timeout: DefaultTimeout,
		maxSize: DefaultMaxSize,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// HTTPFetcher downloads artifacts over HTTP(S).
type HTTPFetcher struct {
	client  *http.Client
	timeout time.Duration
	maxSize int64
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts ...Option) *HTTPFetcher {
	s := newSettings(opts)

	return &HTTPFetcher{
		client:  s.client,
		timeout: s.timeout,
		maxSize: s.maxSize,
	}
}

// Fetch performs a GET and returns the body of a 200 response.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
	if err != nil {
		return nil, err
	}

	response, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = response.Body.Close()
	}()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s, %s: %w", rawURL, response.Status, errBadHTTPStatus)
	}

	return readLimited(response.Body, f.maxSize)
}

// FileFetcher reads file:// URLs.
type FileFetcher struct {
	maxSize int64
}

// NewFileFetcher creates a FileFetcher.
func NewFileFetcher(opts ...Option) *FileFetcher {
	return &FileFetcher{maxSize: newSettings(opts).maxSize}
}

// Fetch reads the file named by a file:// URL.
func (f *FileFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	if parsed.Scheme != "file" {
		return nil, fmt.Errorf("%q: %w", parsed.Scheme, errUnsupportedScheme)
	}

	return readFileLimited(filepath.FromSlash(parsed.Path), f.maxSize)
}

// MirrorFetcher maps a URL onto a file in a local directory by base name.
type MirrorFetcher struct {
	dir     string
	maxSize int64
}

// NewMirrorFetcher creates a MirrorFetcher rooted at dir.
func NewMirrorFetcher(dir string, opts ...Option) *MirrorFetcher {
	return &MirrorFetcher{
		dir:     filepath.Clean(dir),
		maxSize: newSettings(opts).maxSize,
	}
}

// Fetch reads <dir>/<base name of the URL path>.
func (f *MirrorFetcher) Fetch(_ context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	name := path.Base(parsed.Path)
	if name == "." || name == "/" {
		return nil, fmt.Errorf("%s: %w", rawURL, errNoFileName)
	}

	return readFileLimited(filepath.Join(f.dir, name), f.maxSize)
}

// Router dispatches by URL scheme.
type Router struct {
	remote Fetcher
	local  Fetcher
}

// New builds a Router. With WithMirror, http(s) URLs are served from the mirror
// instead of the network.
func New(opts ...Option) *Router {
	s := newSettings(opts)

	var remote Fetcher = NewHTTPFetcher(opts...)
	if s.mirrorDir != "" {
		remote = NewMirrorFetcher(s.mirrorDir, opts...)
	}

	return &Router{
		remote: remote,
		local:  NewFileFetcher(opts...),
	}
}

// Fetch implements Fetcher.
func (r *Router) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}

	switch parsed.Scheme {
	case "http", "https":
		return r.remote.Fetch(ctx, rawURL)
	case "file":
		return r.local.Fetch(ctx, rawURL)
	default:
		return nil, fmt.Errorf("%q: %w", parsed.Scheme, errUnsupportedScheme)
	}
}

func readFileLimited(name string, maxSize int64) ([]byte, error) {
	file, err := os.Open(filepath.Clean(name))
	if err != nil {
		return nil, err
	}

	defer func() {
		_ = file.Close()
	}()

	return readLimited(file, maxSize)
}

func readLimited(r io.Reader, maxSize int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxSize+1))
	if err != nil {
		return nil, err
	}

	if int64(len(data)) > maxSize {
		return nil, fmt.Errorf("more than %d bytes: %w", maxSize, errTooLarge)
	}

	return data, nil
}
