package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/store-rating/internal/config"
)

// captureWriter captures response body/status while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status    int
	buf       bytes.Buffer
	size      int64
	limit     int64
	truncated bool
}

func (cw *captureWriter) WriteHeader(code int) { cw.status = code; cw.ResponseWriter.WriteHeader(code) }

func (cw *captureWriter) Write(b []byte) (int, error) {
	if cw.limit > 0 && cw.size+int64(len(b)) > cw.limit {
		cw.truncated = true
	} else {
		cw.buf.Write(b)
	}
	cw.size += int64(len(b))
	return cw.ResponseWriter.Write(b)
}

// Build a stable cache key honoring prefix/strategy.  gen is the cache
// generation read before the handler ran.
func cacheKeyFrom(cfg config.CacheConfig, c echo.Context, gen string) string {
	r := c.Request()
	method := r.Method
	route := c.Path()
	query := r.URL.RawQuery

	parts := []string{cfg.Prefix, "gen", gen}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "route":
		parts = append(parts, "route", route)
	case "method_route":
		parts = append(parts, "method", method, "route", route)
	case "method_route_query":
		parts = append(parts, "method", method, "route", route, "q", query)
	default: // "route_query"
		parts = append(parts, "route", route, "q", query)
	}
	// concrete path params distinguish /v1/stores/1 from /v1/stores/2
	for _, name := range c.ParamNames() {
		parts = append(parts, name, c.Param(name))
	}

	tail := strings.Join(parts[1:], ":")
	sum := sha1.Sum([]byte(tail))
	return fmt.Sprintf("%s:%x", parts[0], sum[:])
}

// encodePayload packs: [4 bytes status][4 bytes headerLen][headerJSON][body]
func encodePayload(status int, header http.Header, body []byte) ([]byte, error) {
	hdrJSON, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	total := 4 + 4 + len(hdrJSON) + len(body)
	out := make([]byte, total)
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdrJSON)))
	copy(out[8:8+len(hdrJSON)], hdrJSON)
	copy(out[8+len(hdrJSON):], body)
	return out, nil
}

func decodePayload(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if hlen < 0 || 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	var hdr http.Header
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &hdr); err != nil {
			return 0, nil, nil, false
		}
	} else {
		hdr = make(http.Header)
	}
	body = bs[8+hlen:]
	return status, hdr, body, true
}

// ResponseCache caches successful public store reads in Redis.  Entries are
// keyed by a generation counter that Purge bumps, so a response filled from
// rows read before a write lands on a key nobody reads again.
type ResponseCache struct {
	cfg config.CacheConfig
	rdb *redis.Client
}

// NewResponseCache returns a cache; a nil client or disabled config makes
// both the middleware and Purge no-ops.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client) *ResponseCache {
	return &ResponseCache{cfg: cfg, rdb: rdb}
}

func (rc *ResponseCache) active() bool { return rc != nil && rc.cfg.Enabled && rc.rdb != nil }

func (rc *ResponseCache) genKey() string { return rc.cfg.Prefix + ":generation" }

// generation returns the current cache generation; a missing counter is "0".
func (rc *ResponseCache) generation(ctx context.Context) (string, error) {
	gen, err := rc.rdb.Get(ctx, rc.genKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "0", nil
	}
	return gen, err
}

// Purge invalidates every cached response by bumping the generation, then
// deletes the stale entries.  It walks the prefix with SCAN so Redis is
// never blocked by KEYS.
func (rc *ResponseCache) Purge(ctx context.Context) error {
	if !rc.active() {
		return nil
	}
	genKey := rc.genKey()
	if err := rc.rdb.Incr(ctx, genKey).Err(); err != nil {
		return err
	}
	iter := rc.rdb.Scan(ctx, 0, rc.cfg.Prefix+":*", 200).Iterator()
	batch := make([]string, 0, 200)
	for iter.Next(ctx) {
		if iter.Val() == genKey {
			continue
		}
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := rc.rdb.Del(ctx, batch...).Err(); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) > 0 {
		return rc.rdb.Del(ctx, batch...).Err()
	}
	return nil
}

// Middleware stores headers + body so clients see identical formatting as the uncached response.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.active() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	cfg, rdb := rc.cfg, rc.rdb
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	maxBody := int64(cfg.MaxBodyBytes)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !cfg.Methods[strings.ToUpper(c.Request().Method)] {
				return next(c)
			}

			ctx := c.Request().Context()
			gen, err := rc.generation(ctx)
			if err != nil {
				return next(c)
			}
			key := cacheKeyFrom(cfg, c, gen)

			// Try get from Redis
			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil && len(bs) >= 8 {
				if status, hdr, body, ok := decodePayload(bs); ok {
					// Restore headers (except hop-by-hop)
					for k, vals := range hdr {
						// X-Cache will be set below; skip Content-Length (Echo will handle)
						// and the request id already issued for this request
						if strings.EqualFold(k, echo.HeaderContentLength) || strings.EqualFold(k, "X-Cache") ||
							strings.EqualFold(k, echo.HeaderXRequestID) {
							continue
						}
						for _, v := range vals {
							c.Response().Header().Add(k, v)
						}
					}
					c.Response().Header().Set("X-Cache", "HIT")
					c.Response().WriteHeader(status)
					if len(body) > 0 {
						_, _ = c.Response().Write(body)
					}
					return nil
				}
			}

			// Miss: capture
			cw := &captureWriter{ResponseWriter: c.Response().Writer, status: http.StatusOK, limit: maxBody}
			c.Response().Writer = cw
			c.Response().Header().Set("X-Cache", "MISS")

			if err := next(c); err != nil {
				return err
			}

			if cw.status == http.StatusOK && !cw.truncated {
				hdr := make(http.Header, len(c.Response().Header()))
				for k, vals := range c.Response().Header() {
					vv := make([]string, len(vals))
					copy(vv, vals)
					hdr[k] = vv
				}
				if payload, err := encodePayload(cw.status, hdr, cw.buf.Bytes()); err == nil {
					_ = rdb.SetEx(context.WithoutCancel(ctx), key, payload, ttl).Err()
				}
			}
			return nil
		}
	}
}
