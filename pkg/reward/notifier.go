package reward

import (
	"go.uber.org/zap"
)

// Severity 通知级别
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "info"
	}
}

// Notification 需要展示给用户的消息
type Notification struct {
	CardID   CardID
	Severity Severity
	Message  string
	Err      error
}

// Notifier 接收用户可见的通知（界面上的 toast、日志等）
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc 函数适配器
type NotifierFunc func(n Notification)

// Notify 实现 Notifier
func (f NotifierFunc) Notify(n Notification) {
	f(n)
}

// LogNotifier 把通知写入日志
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier 创建日志通知器
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger.Named("Notify")}
}

// Notify 实现 Notifier
func (l *LogNotifier) Notify(n Notification) {
	fields := []zap.Field{
		zap.Int64("cardId", int64(n.CardID)),
		zap.String("message", n.Message),
	}
	if n.Err != nil {
		fields = append(fields, zap.Error(n.Err))
	}
	switch n.Severity {
	case SeverityError:
		l.logger.Error("notification", fields...)
	case SeverityWarning:
		l.logger.Warn("notification", fields...)
	default:
		l.logger.Info("notification", fields...)
	}
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(n Notification) {
	for _, target := range m {
		target.Notify(n)
	}
}

// MultiNotifier 把通知转发给多个接收者（忽略 nil）
func MultiNotifier(targets ...Notifier) Notifier {
	out := make(multiNotifier, 0, len(targets))
	for _, t := range targets {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// failureMessage 返回失败通知的文案
func failureMessage(op string, kind ErrorKind) (Severity, string) {
	switch kind {
	case KindNetwork:
		return SeverityWarning, "Couldn't reach the rewards service. Check your connection and try again."
	case KindTimeout:
		return SeverityWarning, "The rewards service is taking too long. Please try again."
	case KindAuthRequired:
		return SeverityError, "Please sign in again to " + op + " your reward."
	default:
		return SeverityError, "Something went wrong while trying to " + op + " your reward. Please try again later."
	}
}
