package reward

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout 单次账本调用的默认超时
const DefaultTimeout = 10 * time.Second

// Result 账本揭晓/入账的成功响应
type Result struct {
	Amount  float64
	Message string
}

// Ledger 远端奖励账本
//
// 实现返回的错误最好是 *LedgerError；其它错误会被 Classify 归类。
type Ledger interface {
	Reveal(ctx context.Context, id CardID) (Result, error)
	Credit(ctx context.Context, id CardID) (Result, error)
}

// Reconciler 账本调用边界
//
// 它不去重，也不检查卡片状态：调用方必须先经过 RevealGuard 和当前状态检查。
// 它只负责超时控制，并把失败统一成 *LedgerError，让状态机能识别 already_* 冲突。
type Reconciler struct {
	ledger  Ledger
	timeout time.Duration
	logger  *zap.Logger
}

// NewReconciler 创建账本调用边界
//
// 参数：
//   - ledger: 账本传输实现
//   - timeout: 单次调用超时，<= 0 时使用 DefaultTimeout
//   - logger: 日志记录器，可为 nil
func NewReconciler(ledger Ledger, timeout time.Duration, logger *zap.Logger) *Reconciler {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		ledger:  ledger,
		timeout: timeout,
		logger:  logger.Named("RewardReconciler"),
	}
}

// Reveal 请求账本揭晓卡片
func (r *Reconciler) Reveal(ctx context.Context, id CardID) (Result, error) {
	return r.call(ctx, "reveal", id, r.ledger.Reveal)
}

// Credit 请求账本把卡片金额入账
func (r *Reconciler) Credit(ctx context.Context, id CardID) (Result, error) {
	return r.call(ctx, "credit", id, r.ledger.Credit)
}

func (r *Reconciler) call(ctx context.Context, op string, id CardID, fn func(context.Context, CardID) (Result, error)) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	res, err := fn(ctx, id)
	if err != nil {
		err = wrapLedgerError(op, err)
		r.logger.Info("ledger call failed",
			zap.String("op", op),
			zap.Int64("cardId", int64(id)),
			zap.Stringer("kind", Classify(err)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return Result{}, err
	}
	r.logger.Debug("ledger call succeeded",
		zap.String("op", op),
		zap.Int64("cardId", int64(id)),
		zap.Float64("amount", res.Amount),
		zap.Duration("elapsed", time.Since(start)))
	return res, nil
}
