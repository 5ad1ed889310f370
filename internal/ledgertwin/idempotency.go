package ledgertwin

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/decker502/scratchcard/pkg/ledger"
)

// ReplayHeader 标记重放的响应
const ReplayHeader = "X-Idempotent-Replay"

type idemState int

const (
	idemPending idemState = iota
	idemCompleted
)

type idemRecord struct {
	fingerprint string
	state       idemState
	status      int
	contentType string
	body        []byte
}

// idempotencyStore 按幂等键记录第一次请求的响应
type idempotencyStore struct {
	mu      sync.Mutex
	records map[string]*idemRecord
}

func newIdempotencyStore() *idempotencyStore {
	return &idempotencyStore{records: make(map[string]*idemRecord)}
}

func (s *idempotencyStore) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*idemRecord)
}

// reserve 返回已有记录；没有记录时创建一条 pending 记录并返回 nil
func (s *idempotencyStore) reserve(key, fingerprint string) (*idemRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[key]; ok {
		copied := *rec
		return &copied, true
	}
	s.records[key] = &idemRecord{fingerprint: fingerprint, state: idemPending}
	return nil, false
}

func (s *idempotencyStore) complete(key string, status int, contentType string, body []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	if !ok {
		return
	}
	rec.state = idemCompleted
	rec.status = status
	rec.contentType = contentType
	rec.body = append([]byte(nil), body...)
}

// recorder 记录处理器写出的响应，同时透传给客户端
type recorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *recorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.buf.Write(p)
	return r.ResponseWriter.Write(p)
}

// idempotency 对 POST 请求按 Idempotency-Key 重放第一次的响应
//
// 同一个键配合不同的请求体返回 422；第一次请求仍在处理时返回 409。
func (h *Handler) idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}
		key := strings.TrimSpace(r.Header.Get(ledger.IdempotencyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "unable to read request body", nil)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		sum := sha256.Sum256(append([]byte(r.Method+" "+r.URL.Path+"\n"), body...))
		fingerprint := hex.EncodeToString(sum[:])

		rec, exists := h.idem.reserve(key, fingerprint)
		if exists {
			switch {
			case rec.fingerprint != fingerprint:
				writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", "idempotency key was used with a different request", nil)
			case rec.state == idemPending:
				writeError(w, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key", nil)
			default:
				h.logger.Debug("replaying idempotent response")
				w.Header().Set("Content-Type", rec.contentType)
				w.Header().Set(ReplayHeader, "true")
				w.WriteHeader(rec.status)
				_, _ = w.Write(rec.body)
			}
			return
		}

		rw := &recorder{ResponseWriter: w}
		next.ServeHTTP(rw, r)
		status := rw.status
		if status == 0 {
			status = http.StatusOK
		}
		h.idem.complete(key, status, w.Header().Get("Content-Type"), rw.buf.Bytes())
	})
}
