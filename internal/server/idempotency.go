package server

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/waspershola/hospitech-nexus-sub005/internal/server/authctx"
)

const (
	idempotencyHeader   = "Idempotency-Key"
	idempotencyReplayed = "Idempotent-Replayed"
	idempotencyLockTTL  = 30 * time.Second
)

// captureWriter records status and body while forwarding to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	cw.buf.Write(b)
	return cw.ResponseWriter.Write(b)
}

// idempotencyKey scopes the client key to tenant, user and route.
func idempotencyKey(r *http.Request, clientKey string) string {
	scope := "anonymous"
	if u := authctx.FromContext(r.Context()); u != nil {
		scope = u.TenantID + ":" + u.UserID
	}
	sum := sha1.Sum([]byte(scope + "|" + r.Method + "|" + r.URL.Path + "|" + clientKey))
	return fmt.Sprintf("idem:%x", sum[:])
}

// encodeReplay packs [4 bytes status][4 bytes header length][header JSON][body].
func encodeReplay(status int, header http.Header, body []byte) ([]byte, error) {
	hdr, err := json.Marshal(header)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8+len(hdr)+len(body))
	binary.BigEndian.PutUint32(out[0:4], uint32(status))
	binary.BigEndian.PutUint32(out[4:8], uint32(len(hdr)))
	copy(out[8:], hdr)
	copy(out[8+len(hdr):], body)
	return out, nil
}

func decodeReplay(bs []byte) (status int, header http.Header, body []byte, ok bool) {
	if len(bs) < 8 {
		return 0, nil, nil, false
	}
	status = int(binary.BigEndian.Uint32(bs[0:4]))
	hlen := int(binary.BigEndian.Uint32(bs[4:8]))
	if 8+hlen > len(bs) {
		return 0, nil, nil, false
	}
	header = make(http.Header)
	if hlen > 0 {
		if err := json.Unmarshal(bs[8:8+hlen], &header); err != nil {
			return 0, nil, nil, false
		}
	}
	return status, header, bs[8+hlen:], true
}

// NewIdempotency replays the stored 2xx response of a POST carrying a previously seen
// Idempotency-Key. Requests without the header, or with Redis absent, pass through.
// A duplicate arriving while the first is still running gets 409.
func NewIdempotency(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	if rdb == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
			if r.Method != http.MethodPost || clientKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := idempotencyKey(r, clientKey)

			if bs, err := rdb.Get(ctx, key).Bytes(); err == nil {
				if status, hdr, body, ok := decodeReplay(bs); ok {
					for k, vals := range hdr {
						if strings.EqualFold(k, "Content-Length") {
							continue
						}
						for _, v := range vals {
							w.Header().Add(k, v)
						}
					}
					w.Header().Set(idempotencyReplayed, "true")
					w.WriteHeader(status)
					_, _ = w.Write(body)
					return
				}
			}

			locked, err := rdb.SetNX(ctx, key+":lock", "1", idempotencyLockTTL).Result()
			if err != nil {
				logger.Warn("idempotency lock unavailable", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !locked {
				writeAuthError(w, http.StatusConflict, "request with this Idempotency-Key is in progress")
				return
			}
			defer rdb.Del(context.Background(), key+":lock")

			cw := &captureWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(cw, r)

			if cw.status < 200 || cw.status >= 300 {
				return
			}
			payload, err := encodeReplay(cw.status, w.Header().Clone(), cw.buf.Bytes())
			if err != nil {
				return
			}
			if err := rdb.SetEx(context.Background(), key, payload, ttl).Err(); err != nil {
				logger.Warn("idempotent response not stored", "err", err)
			}
		})
	}
}
