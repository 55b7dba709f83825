// Package assets loads tile images from disk and keeps the decoded images in
// an expiring LRU cache.
package assets

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/pscheid92/tilecast/internal/adapter/metrics"
	"github.com/pscheid92/tilecast/internal/domain"
	"golang.org/x/sync/singleflight"
)

const (
	defaultCacheSize = 64
	defaultCacheTTL  = 10 * time.Minute
)

// Loader resolves a tile to its image, "<dir>/<tile>.png". Missing or
// undecodable files resolve to nil and are remembered as such until the
// cache entry expires.
type Loader struct {
	fsys    fs.FS
	cache   *expirable.LRU[domain.Tile, image.Image]
	group   singleflight.Group
	metrics *metrics.AssetCacheMetrics
}

type Option func(*Loader)

func WithMetrics(m *metrics.AssetCacheMetrics) Option { return func(l *Loader) { l.metrics = m } }

func WithCache(size int, ttl time.Duration) Option {
	return func(l *Loader) { l.cache = expirable.NewLRU[domain.Tile, image.Image](size, nil, ttl) }
}

// NewLoader reads from dir on the local filesystem.
func NewLoader(dir string, opts ...Option) *Loader {
	return NewFSLoader(os.DirFS(filepath.Clean(dir)), opts...)
}

func NewFSLoader(fsys fs.FS, opts ...Option) *Loader {
	l := &Loader{
		fsys:  fsys,
		cache: expirable.NewLRU[domain.Tile, image.Image](defaultCacheSize, nil, defaultCacheTTL),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.metrics == nil {
		l.metrics = metrics.NewAssetCacheMetrics(prometheus.NewRegistry())
	}
	return l
}

// Tile returns the image for t, or nil when there is none.
func (l *Loader) Tile(t domain.Tile) image.Image {
	if img, ok := l.cache.Get(t); ok {
		l.metrics.Hits.Inc()
		return img
	}
	l.metrics.Misses.Inc()

	v, _, _ := l.group.Do(string(t), func() (any, error) {
		img, err := l.load(t)
		if err != nil {
			l.metrics.LoadFails.Inc()
			slog.Debug("Tile asset unavailable", "tile", t, "error", err)
			img = nil
		}
		l.cache.Add(t, img)
		return img, nil
	})
	img, _ := v.(image.Image)
	return img
}

func (l *Loader) load(t domain.Tile) (image.Image, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid tile %q", t)
	}
	f, err := l.fsys.Open(string(t) + ".png")
	if err != nil {
		return nil, fmt.Errorf("open asset: %w", err)
	}
	defer func() { _ = f.Close() }()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}
	if img == nil {
		return nil, errors.New("decode asset: empty image")
	}
	return img, nil
}
