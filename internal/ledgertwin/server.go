package ledgertwin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/ledger"
	"github.com/decker502/scratchcard/pkg/reward"
)

// Handler 账本替身的全部 HTTP 状态
type Handler struct {
	store     *Store
	token     string
	seedCards int
	idem      *idempotencyStore
	faults    *faultTable
	logger    *zap.Logger
}

// NewHandler 创建账本替身
//
// 参数：
//   - store: 内存账本
//   - token: Bearer 令牌，为空时不校验
//   - seedCards: /admin/reset 重新生成的卡片数量
//   - logger: 日志记录器（可为 nil）
func NewHandler(store *Store, token string, seedCards int, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		store:     store,
		token:     token,
		seedCards: seedCards,
		idem:      newIdempotencyStore(),
		faults:    newFaultTable(),
		logger:    logger.Named("LedgerTwin"),
	}
}

// Router 返回挂载了全部接口的 chi 路由
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(h.requestLogger)
	h.Routes(r)
	return r
}

// Routes 挂载账本接口和管理接口
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.authMiddleware)
		r.Use(h.faultInjection)
		r.Use(h.idempotency)

		r.Get("/cards", h.ListCards)
		r.Post("/reveal", h.Reveal)
		r.Post("/credit", h.Credit)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.Post("/reset", h.Reset)
		r.Post("/cards", h.AddCard)
		r.Get("/faults", h.ListFaults)
		r.Post("/faults", h.SetFault)
		r.Delete("/faults", h.ClearFaults)
	})
}

// authMiddleware 校验 Bearer 令牌
func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			writeError(w, http.StatusUnauthorized, ledger.CodeUnauthorized, "missing bearer token", nil)
			return
		}
		if strings.TrimPrefix(auth, "Bearer ") != h.token {
			writeError(w, http.StatusUnauthorized, ledger.CodeUnauthorized, "invalid bearer token", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		h.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sw.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

// ListCards GET /cards
func (h *Handler) ListCards(w http.ResponseWriter, r *http.Request) {
	cards := h.store.List()
	for i := range cards {
		if _, ok := cards[i].VisibleAmount(); !ok {
			cards[i].Amount = nil
		}
	}
	writeJSON(w, http.StatusOK, ledger.ListResponse{Cards: cards})
}

// Reveal POST /reveal
func (h *Handler) Reveal(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeCardRequest(w, r)
	if !ok {
		return
	}
	amount, err := h.store.Reveal(id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.logger.Debug("card revealed", zap.Int64("cardId", int64(id)), zap.Float64("amount", amount))
	writeJSON(w, http.StatusOK, ledger.RevealResponse{Amount: amount, Message: "You won!"})
}

// Credit POST /credit
func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeCardRequest(w, r)
	if !ok {
		return
	}
	amount, balance, err := h.store.Credit(id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.logger.Debug("card credited", zap.Int64("cardId", int64(id)), zap.Float64("balance", balance))
	writeJSON(w, http.StatusOK, ledger.CreditResponse{Amount: amount, Balance: balance})
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	var conflict *ConflictError
	switch {
	case errors.As(err, &conflict):
		code := ledger.CodeAlreadyRevealed
		if conflict.Status == reward.StatusCredited {
			code = ledger.CodeAlreadyCredited
		}
		writeError(w, http.StatusConflict, code, err.Error(), reward.Float(conflict.Amount))
	case errors.Is(err, ErrNotRevealed):
		writeError(w, http.StatusConflict, ledger.CodeNotRevealed, err.Error(), nil)
	case errors.Is(err, ErrCardNotFound):
		writeError(w, http.StatusNotFound, ledger.CodeNotFound, err.Error(), nil)
	default:
		h.logger.Error("store failure", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

func decodeCardRequest(w http.ResponseWriter, r *http.Request) (reward.CardID, bool) {
	var req ledger.CardRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body", nil)
		return 0, false
	}
	if req.CardID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", "cardId is required", nil)
		return 0, false
	}
	return req.CardID, true
}

// Health GET /admin/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"cards":   len(h.store.List()),
		"balance": h.store.Balance(),
	})
}

// Reset POST /admin/reset
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.store.Reset(h.seedCards)
	h.idem.reset()
	h.faults.clear()
	h.logger.Info("twin reset", zap.Int("cards", h.seedCards))
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// AddCard POST /admin/cards {"amount": n}
func (h *Handler) AddCard(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount float64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Amount <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", "amount must be positive", nil)
		return
	}
	writeJSON(w, http.StatusCreated, h.store.Add(req.Amount))
}

// ListFaults GET /admin/faults
func (h *Handler) ListFaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"faults": h.faults.list()})
}

// SetFault POST /admin/faults
func (h *Handler) SetFault(w http.ResponseWriter, r *http.Request) {
	var f Fault
	if err := json.NewDecoder(r.Body).Decode(&f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid fault", nil)
		return
	}
	switch f.Endpoint {
	case "reveal", "credit", "cards":
	default:
		writeError(w, http.StatusBadRequest, "invalid_body", "unknown endpoint "+f.Endpoint, nil)
		return
	}
	if f.Status == 0 && f.Delay <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_body", "fault needs a status or a delay", nil)
		return
	}
	h.faults.set(f)
	h.logger.Info("fault configured", zap.String("endpoint", f.Endpoint), zap.Int("status", f.Status))
	writeJSON(w, http.StatusOK, f)
}

// ClearFaults DELETE /admin/faults
func (h *Handler) ClearFaults(w http.ResponseWriter, r *http.Request) {
	h.faults.clear()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string, amount *float64) {
	writeJSON(w, status, ledger.ErrorResponse{Error: code, Message: message, Amount: amount})
}
