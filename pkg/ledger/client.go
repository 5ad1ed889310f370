// Package ledger 是远端奖励账本的 HTTP 客户端
//
// 接口：
//
//	GET  /cards                      → {"cards": [{id, status, amount?, createdAt, creditedAt?}]}
//	POST /reveal {"cardId": n}       → {"amount", "message"}
//	POST /credit {"cardId": n}       → {"amount", "balance"}
//
// 失败响应统一为 {"error": code, "message", "amount"?}。每个写请求带一个
// Idempotency-Key，入账在网络失败/超时后用同一个 key 重试。
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/config"
	"github.com/decker502/scratchcard/pkg/reward"
)

// 错误码（响应体中的 "error" 字段）
const (
	CodeAlreadyRevealed = "already_revealed"
	CodeAlreadyCredited = "already_credited"
	CodeNotRevealed     = "not_revealed"
	CodeNotFound        = "not_found"
	CodeUnauthorized    = "unauthorized"
	CodeUnavailable     = "unavailable"
)

// IdempotencyHeader 幂等键请求头
const IdempotencyHeader = "Idempotency-Key"

// CardRequest 揭晓/入账请求体
type CardRequest struct {
	CardID reward.CardID `json:"cardId"`
}

// RevealResponse 揭晓成功响应
type RevealResponse struct {
	Amount  float64 `json:"amount"`
	Message string  `json:"message,omitempty"`
}

// CreditResponse 入账成功响应
type CreditResponse struct {
	Amount  float64 `json:"amount"`
	Balance float64 `json:"balance"`
}

// ListResponse 卡片列表响应
type ListResponse struct {
	Cards []reward.Card `json:"cards"`
}

// ErrorResponse 失败响应
type ErrorResponse struct {
	Error   string   `json:"error"`
	Message string   `json:"message,omitempty"`
	Amount  *float64 `json:"amount,omitempty"`
}

// Client 奖励账本客户端（实现 reward.Ledger）
type Client struct {
	baseURL       string
	token         string
	http          *http.Client
	creditRetries int
	newBackOff    func() backoff.BackOff
	newKey        func() string
	logger        *zap.Logger
}

// Option 客户端可选项
type Option func(*Client)

// WithHTTPClient 替换底层 http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithBackOff 替换入账重试的退避策略
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(c *Client) { c.newBackOff = fn }
}

// New 创建账本客户端
//
// 单次调用的超时由调用方的 context 控制（reward.Reconciler 负责设置），
// http.Client 上的超时只作为兜底。
func New(cfg *config.LedgerConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		token:         cfg.Token,
		http:          &http.Client{Timeout: 2 * cfg.Timeout},
		creditRetries: cfg.CreditRetries,
		newBackOff:    defaultBackOff,
		newKey:        func() string { return uuid.NewString() },
		logger:        logger.Named("LedgerClient"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0 // 由 context 和重试次数限制
	return b
}

// Reveal 请求揭晓卡片（不重试：重复揭晓由调用方的状态机负责）
func (c *Client) Reveal(ctx context.Context, id reward.CardID) (reward.Result, error) {
	var resp RevealResponse
	if err := c.post(ctx, "reveal", id, c.newKey(), &resp); err != nil {
		return reward.Result{}, err
	}
	return reward.Result{Amount: resp.Amount, Message: resp.Message}, nil
}

// Credit 请求入账，网络失败或超时后用同一个幂等键重试
func (c *Client) Credit(ctx context.Context, id reward.CardID) (reward.Result, error) {
	key := c.newKey()
	var resp CreditResponse

	policy := backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), uint64(c.creditRetries)), ctx)
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := c.post(ctx, "credit", id, key, &resp)
		if err == nil {
			return nil
		}
		if !reward.Retryable(reward.Classify(err)) {
			return backoff.Permanent(err)
		}
		c.logger.Info("credit attempt failed, retrying",
			zap.Int64("cardId", int64(id)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return err
	}, policy)
	if err != nil {
		// 重试期间 context 到期时 Retry 返回 ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			var le *reward.LedgerError
			if !errors.As(err, &le) {
				err = &reward.LedgerError{Op: "credit", Kind: reward.KindTimeout, Err: err}
			}
		}
		return reward.Result{}, err
	}
	return reward.Result{Amount: resp.Amount, Message: fmt.Sprintf("balance %.2f", resp.Balance)}, nil
}

// ListCards 获取当前用户的卡片列表
func (c *Client) ListCards(ctx context.Context) ([]reward.Card, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cards", nil)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	var resp ListResponse
	if err := c.do(req, "list", &resp); err != nil {
		return nil, err
	}
	for i, card := range resp.Cards {
		if !card.Status.Valid() {
			return nil, &reward.LedgerError{
				Op:   "list",
				Kind: reward.KindUnknown,
				Err:  fmt.Errorf("card %d has unknown status %q", card.ID, card.Status),
			}
		}
		// 金额在揭晓前不可见
		if card.Status == reward.StatusPending {
			resp.Cards[i].Amount = nil
		}
	}
	return resp.Cards, nil
}

func (c *Client) post(ctx context.Context, op string, id reward.CardID, key string, out any) error {
	body, err := json.Marshal(CardRequest{CardID: id})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+op, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, key)
	return c.do(req, op, out)
}

func (c *Client) do(req *http.Request, op string, out any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &reward.LedgerError{Op: op, Kind: reward.Classify(err), Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &reward.LedgerError{Op: op, Kind: reward.Classify(err), Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			return &reward.LedgerError{Op: op, Kind: reward.KindUnknown, Status: resp.StatusCode,
				Err: fmt.Errorf("decode response: %w", err)}
		}
		return nil
	}
	return decodeError(op, resp.StatusCode, data)
}

// decodeError 把失败响应映射到错误分类
func decodeError(op string, status int, data []byte) error {
	var body ErrorResponse
	_ = json.Unmarshal(data, &body)

	le := &reward.LedgerError{Op: op, Status: status, Amount: body.Amount}
	msg := body.Message
	if msg == "" {
		msg = strings.TrimSpace(string(data))
	}
	if msg != "" {
		le.Err = errors.New(msg)
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		le.Kind = reward.KindAuthRequired
	case status == http.StatusConflict && body.Error == CodeAlreadyRevealed:
		le.Kind = reward.KindAlreadyRevealed
	case status == http.StatusConflict && body.Error == CodeAlreadyCredited:
		le.Kind = reward.KindAlreadyCredited
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		le.Kind = reward.KindTimeout
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusTooManyRequests:
		le.Kind = reward.KindNetwork
	default:
		le.Kind = reward.KindUnknown
	}
	return le
}
