package reward

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrorKind 账本调用失败的分类
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindAlreadyRevealed
	KindAlreadyCredited
	KindNetwork
	KindTimeout
	KindAuthRequired
)

func (k ErrorKind) String() string {
	switch k {
	case KindAlreadyRevealed:
		return "already_revealed"
	case KindAlreadyCredited:
		return "already_credited"
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindAuthRequired:
		return "auth_required"
	default:
		return "unknown"
	}
}

var (
	// ErrAlreadyRevealed 卡片已在服务端揭晓（其它标签页/会话的重复请求）
	ErrAlreadyRevealed = errors.New("reward: card already revealed")
	// ErrAlreadyCredited 卡片已入账
	ErrAlreadyCredited = errors.New("reward: card already credited")
	// ErrNetwork 网络失败，可重试
	ErrNetwork = errors.New("reward: network failure")
	// ErrTimeout 请求超时，可重试
	ErrTimeout = errors.New("reward: request timed out")
	// ErrAuthRequired 需要重新登录，停止自动操作
	ErrAuthRequired = errors.New("reward: authentication required")
	// ErrUnknownServer 无法识别的服务端错误
	ErrUnknownServer = errors.New("reward: unknown server error")

	// ErrNotRevealed 在揭晓之前请求入账
	ErrNotRevealed = errors.New("reward: card not revealed yet")
	// ErrDisposed 卡片组件已销毁
	ErrDisposed = errors.New("reward: card disposed")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAlreadyRevealed:
		return ErrAlreadyRevealed
	case KindAlreadyCredited:
		return ErrAlreadyCredited
	case KindNetwork:
		return ErrNetwork
	case KindTimeout:
		return ErrTimeout
	case KindAuthRequired:
		return ErrAuthRequired
	default:
		return ErrUnknownServer
	}
}

// LedgerError 账本调用的失败详情
//
// errors.Is(err, ErrAlreadyRevealed) 等判断基于 Kind。
type LedgerError struct {
	Op     string   // "reveal" 或 "credit"
	Kind   ErrorKind
	Status int      // HTTP 状态码，非 HTTP 失败时为 0
	Amount *float64 // 服务端在 already_* 响应中携带的金额
	Err    error
}

func (e *LedgerError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.sentinel().Error()
	if e.Op != "" {
		msg = fmt.Sprintf("%s: %s", e.Op, msg)
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap 返回底层错误
func (e *LedgerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is 让 LedgerError 与同类哨兵错误匹配
func (e *LedgerError) Is(target error) bool {
	return e != nil && target == e.Kind.sentinel()
}

// Classify 将任意错误归类
//
// 依次识别 LedgerError、哨兵错误、context 超时与 net.Error，其余归为 KindUnknown。
func Classify(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	for _, k := range []ErrorKind{KindAlreadyRevealed, KindAlreadyCredited, KindNetwork, KindTimeout, KindAuthRequired} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}
	return KindUnknown
}

// HaltsAuto 检查该类失败是否应停止自动揭晓（手动揭晓仍然允许）
func HaltsAuto(k ErrorKind) bool {
	return k == KindAuthRequired || k == KindUnknown
}

// Retryable 检查该类失败是否可以直接重试
func Retryable(k ErrorKind) bool {
	return k == KindNetwork || k == KindTimeout
}

// AmountFrom 提取错误中服务端报告的金额
func AmountFrom(err error) *float64 {
	var le *LedgerError
	if errors.As(err, &le) && le.Amount != nil {
		v := *le.Amount
		return &v
	}
	return nil
}

func wrapLedgerError(op string, err error) error {
	if err == nil {
		return nil
	}
	var le *LedgerError
	if errors.As(err, &le) {
		if le.Op == "" {
			le.Op = op
		}
		return err
	}
	return &LedgerError{Op: op, Kind: Classify(err), Err: err}
}
