package ledgertwin

import (
	"net/http"
	"strings"
	"sync"
	"time"
)

// Fault 注入到某个接口的故障
type Fault struct {
	Endpoint    string        `json:"endpoint"`              // "reveal"、"credit" 或 "cards"
	Status      int           `json:"status"`                // 返回的 HTTP 状态码
	Code        string        `json:"code,omitempty"`        // 响应体中的错误码
	Delay       time.Duration `json:"delay,omitempty"`       // 响应前的延迟（纳秒）
	Count       int           `json:"count,omitempty"`       // 生效次数，0 表示一直生效
	AfterCommit bool          `json:"afterCommit,omitempty"` // 先真正处理请求，再返回故障（模拟响应丢失）
}

type faultTable struct {
	mu     sync.Mutex
	faults map[string]*Fault
}

func newFaultTable() *faultTable {
	return &faultTable{faults: make(map[string]*Fault)}
}

func (t *faultTable) set(f Fault) {
	t.mu.Lock()
	defer t.mu.Unlock()
	copied := f
	t.faults[f.Endpoint] = &copied
}

func (t *faultTable) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.faults = make(map[string]*Fault)
}

func (t *faultTable) list() []Fault {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Fault, 0, len(t.faults))
	for _, f := range t.faults {
		out = append(out, *f)
	}
	return out
}

// take 取出一次生效的故障
func (t *faultTable) take(endpoint string) (Fault, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.faults[endpoint]
	if !ok {
		return Fault{}, false
	}
	if f.Count > 0 {
		f.Count--
		if f.Count == 0 {
			delete(t.faults, endpoint)
		}
	}
	return *f, true
}

// faultInjection 按接口名注入故障
func (h *Handler) faultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		endpoint := strings.Trim(r.URL.Path, "/")
		f, ok := h.faults.take(endpoint)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if f.Delay > 0 {
			timer := time.NewTimer(f.Delay)
			select {
			case <-timer.C:
			case <-r.Context().Done():
				timer.Stop()
				return
			}
		}
		if f.Status == 0 {
			next.ServeHTTP(w, r)
			return
		}
		if f.AfterCommit {
			next.ServeHTTP(discardWriter{header: make(http.Header)}, r)
		}

		code := f.Code
		if code == "" {
			code = "injected_fault"
		}
		h.logger.Info("injected fault")
		writeError(w, f.Status, code, "injected fault", nil)
	})
}

// discardWriter 丢弃响应（请求已处理，但客户端收到的是故障）
type discardWriter struct {
	header http.Header
}

func (d discardWriter) Header() http.Header         { return d.header }
func (d discardWriter) Write(p []byte) (int, error) { return len(p), nil }
func (d discardWriter) WriteHeader(int)             {}
