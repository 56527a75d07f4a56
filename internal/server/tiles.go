package server

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/orsmap/internal/cache"
)

// tileTTL bounds how long a proxied basemap tile is reused.
const tileTTL = time.Hour

// TileProxy serves basemap raster tiles from an upstream template such as
// https://tile.openstreetmap.org/{z}/{x}/{y}.png.
type TileProxy struct {
	template string
	client   *http.Client
	cache    *cache.LRU[[]byte]
}

// NewTileProxy creates a proxy. maxEntries of 0 disables caching.
func NewTileProxy(template string, maxEntries int) *TileProxy {
	p := &TileProxy{
		template: template,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
	if maxEntries > 0 {
		p.cache = cache.New[[]byte](maxEntries, tileTTL)
	}
	return p
}

func (p *TileProxy) url(z, x, y int) string {
	return strings.NewReplacer(
		"{s}", "a",
		"{z}", strconv.Itoa(z),
		"{x}", strconv.Itoa(x),
		"{y}", strconv.Itoa(y),
	).Replace(p.template)
}

func tileKey(z, x, y int) string {
	return strconv.Itoa(z) + "/" + strconv.Itoa(x) + "/" + strconv.Itoa(y)
}

// Fetch returns the tile from cache or upstream.
func (p *TileProxy) Fetch(ctx context.Context, z, x, y int) ([]byte, string, bool, error) {
	key := tileKey(z, x, y)
	if p.cache != nil {
		if data, ok := p.cache.Get(key); ok {
			return data, contentType(p.template), true, nil
		}
	}

	url := p.url(z, x, y)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "server: create basemap request")
	}
	req.Header.Set("User-Agent", "orsmap/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "server: fetch basemap tile")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", false, eris.Errorf("server: basemap upstream returned %d for %s", resp.StatusCode, url)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", false, eris.Wrap(err, "server: read basemap tile body")
	}

	if p.cache != nil {
		p.cache.Put(key, data)
	}
	zap.L().Debug("server: fetched basemap tile", zap.String("url", url), zap.Int("bytes", len(data)))

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = contentType(p.template)
	}
	return data, ct, false, nil
}

func contentType(template string) string {
	switch {
	case strings.HasSuffix(template, ".png"):
		return "image/png"
	case strings.HasSuffix(template, ".jpg"), strings.HasSuffix(template, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(template, ".webp"):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// ServeHTTP handles /tiles/{z}/{x}/{y}.png.
func (p *TileProxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	z, errZ := strconv.Atoi(chi.URLParam(r, "z"))
	x, errX := strconv.Atoi(chi.URLParam(r, "x"))
	yParam := chi.URLParam(r, "y")
	if i := strings.IndexByte(yParam, '.'); i >= 0 {
		yParam = yParam[:i]
	}
	y, errY := strconv.Atoi(yParam)
	if errZ != nil || errX != nil || errY != nil || z < 0 || x < 0 || y < 0 {
		http.Error(w, "invalid tile path", http.StatusBadRequest)
		return
	}

	data, ct, hit, err := p.Fetch(r.Context(), z, x, y)
	if err != nil {
		zap.L().Error("server: basemap tile fetch failed", zap.Error(err))
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "public, max-age=3600")
	if hit {
		w.Header().Set("X-Cache", "hit")
	} else {
		w.Header().Set("X-Cache", "miss")
	}
	_, _ = w.Write(data)
}

// Stats returns cache statistics, or zero values when caching is off.
func (p *TileProxy) Stats() cache.Stats {
	if p.cache == nil {
		return cache.Stats{}
	}
	return p.cache.Stats()
}
