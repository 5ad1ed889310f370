package reward

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/scheduler"
)

// DefaultRevealThreshold 自动揭晓的默认擦除百分比
const DefaultRevealThreshold = 70.0

// State 卡片组件的生命周期状态
type State int

const (
	StatePending State = iota
	StateRevealInFlight
	StateRevealed
	StateCredited
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "Pending"
	case StateRevealInFlight:
		return "RevealInFlight"
	case StateRevealed:
		return "Revealed"
	case StateCredited:
		return "Credited"
	default:
		return "Unknown"
	}
}

func stateFor(status Status) State {
	switch status {
	case StatusRevealed:
		return StateRevealed
	case StatusCredited:
		return StateCredited
	default:
		return StatePending
	}
}

func (s State) status() Status {
	switch s {
	case StateRevealed:
		return StatusRevealed
	case StateCredited:
		return StatusCredited
	default:
		return StatusPending
	}
}

// Trigger 揭晓的触发来源
type Trigger int

const (
	TriggerManual Trigger = iota
	TriggerThreshold
)

func (t Trigger) String() string {
	if t == TriggerThreshold {
		return "threshold"
	}
	return "manual"
}

// Outcome 一次揭晓/入账请求的最终结果
//
// 同一次在途请求的所有调用方收到相同的 Outcome。
type Outcome struct {
	State  State
	Amount float64
	Known  bool // 金额是否已知（AlreadyRevealed 且无任何金额来源时为 false）
	Err    error
}

// Callback 接收 Outcome
type Callback func(Outcome)

// CardStore 卡片的本地缓存
type CardStore interface {
	LastKnown(id CardID) (Card, bool)
	Save(card Card) error
}

// TransitionFunc 状态变化观察者
type TransitionFunc func(from, to State)

// MachineOptions 状态机的可选依赖
type MachineOptions struct {
	Threshold float64   // 自动揭晓阈值（百分比），<= 0 时使用默认值
	Store     CardStore // 可为 nil
	Notifier  Notifier  // 可为 nil
	Logger    *zap.Logger
	Now       func() time.Time
}

// StateMachine 单张卡片的揭晓/入账状态机
//
// 状态：
//
//	Pending → RevealInFlight → Revealed → Credited
//	RevealInFlight → Pending（除 already_revealed 外的失败）
//
// 所有方法必须在调度线程上调用；网络请求通过 scheduler.Async 派发，
// 结果在之后的 Tick 中应用。Dispose 之后到达的结果被丢弃。
type StateMachine struct {
	card       Card
	state      State
	guard      RevealGuard
	reconciler *Reconciler
	sched      *scheduler.Scheduler

	threshold float64
	store     CardStore
	notifier  Notifier
	logger    *zap.Logger
	now       func() time.Time

	crediting  bool
	autoHalted bool
	disposed   bool
	waiters    []Callback
	observers  []TransitionFunc
}

// NewStateMachine 为一张卡片创建状态机，初始状态取自卡片缓存的状态
func NewStateMachine(card Card, reconciler *Reconciler, sched *scheduler.Scheduler, opts MachineOptions) *StateMachine {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultRevealThreshold
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Notifier == nil {
		opts.Notifier = NewLogNotifier(opts.Logger)
	}
	if card.Status == "" {
		card.Status = StatusPending
	}
	return &StateMachine{
		card:       card,
		state:      stateFor(card.Status),
		reconciler: reconciler,
		sched:      sched,
		threshold:  opts.Threshold,
		store:      opts.Store,
		notifier:   opts.Notifier,
		logger:     opts.Logger.Named("RevealStateMachine").With(zap.Int64("cardId", int64(card.ID))),
		now:        opts.Now,
	}
}

// State 返回当前状态
func (m *StateMachine) State() State {
	return m.state
}

// Card 返回卡片缓存的副本
func (m *StateMachine) Card() Card {
	return m.card
}

// Threshold 返回自动揭晓阈值
func (m *StateMachine) Threshold() float64 {
	return m.threshold
}

// InFlight 检查是否有揭晓或入账请求在途
func (m *StateMachine) InFlight() bool {
	return m.guard.Held()
}

// AutoHalted 检查自动揭晓是否因鉴权/未知错误被停止
func (m *StateMachine) AutoHalted() bool {
	return m.autoHalted
}

// Disposed 检查状态机是否已销毁
func (m *StateMachine) Disposed() bool {
	return m.disposed
}

// OnTransition 注册状态变化观察者
func (m *StateMachine) OnTransition(fn TransitionFunc) {
	if fn != nil {
		m.observers = append(m.observers, fn)
	}
}

// OnProgress 用最新的擦除进度检查自动揭晓
//
// 手势进行中（节流）和手势结束后都会调用。
//
// 返回：
//   - bool: 本次调用是否发起了揭晓请求
func (m *StateMachine) OnProgress(fraction float64) bool {
	if m.disposed || m.state != StatePending || m.autoHalted {
		return false
	}
	if fraction < m.threshold {
		return false
	}
	return m.reveal(TriggerThreshold, nil)
}

// Reveal 手动揭晓
//
// 已揭晓/已入账时是无副作用的重入，立即以已知金额回调；
// 请求在途时挂到同一请求上，与其它调用方得到相同结果。
func (m *StateMachine) Reveal(cb Callback) {
	m.reveal(TriggerManual, cb)
}

func (m *StateMachine) reveal(trigger Trigger, cb Callback) bool {
	if m.disposed {
		resolveOne(cb, Outcome{State: m.state, Err: ErrDisposed})
		return false
	}

	switch m.state {
	case StateRevealed, StateCredited:
		resolveOne(cb, m.currentOutcome())
		return false
	case StateRevealInFlight:
		m.attach(cb)
		return false
	}

	// Pending: 测试并设置与状态切换在同一步完成
	if !m.guard.TryAcquire() {
		m.attach(cb)
		return false
	}
	m.attach(cb)
	m.setState(StateRevealInFlight)
	m.logger.Info("reveal dispatched", zap.Stringer("trigger", trigger))

	id := m.card.ID
	m.sched.Async(func() func() {
		res, err := m.reconciler.Reveal(context.Background(), id)
		return func() { m.finishReveal(res, err) }
	})
	return true
}

func (m *StateMachine) finishReveal(res Result, err error) {
	if m.disposed {
		m.logger.Debug("reveal result discarded after dispose", zap.Error(err))
		return
	}
	m.guard.Release()

	switch {
	case err == nil:
		m.card.Advance(StatusRevealed, Float(res.Amount), m.now())
		m.setState(StateRevealed)
		m.persist()
		m.resolve(m.currentOutcome())

	case errors.Is(err, ErrAlreadyRevealed), errors.Is(err, ErrAlreadyCredited):
		target := StateRevealed
		if errors.Is(err, ErrAlreadyCredited) {
			target = StateCredited
		}
		amount := m.adoptAmount(err)
		if amount == nil {
			m.logger.Warn("card already revealed but no amount is known")
		}
		m.card.Advance(target.status(), amount, m.now())
		m.setState(target)
		m.persist()
		m.logger.Info("adopted server state", zap.Stringer("state", target))
		m.resolve(m.currentOutcome())

	default:
		kind := Classify(err)
		if HaltsAuto(kind) {
			m.autoHalted = true
		}
		m.setState(StatePending)
		m.notifyFailure("reveal", kind, err)
		m.resolve(Outcome{State: StatePending, Err: err})
	}
}

// Credit 把已揭晓的金额入账
//
// 已入账时不发起任何网络请求，立即回调；Pending 时返回 ErrNotRevealed。
func (m *StateMachine) Credit(cb Callback) {
	if m.disposed {
		resolveOne(cb, Outcome{State: m.state, Err: ErrDisposed})
		return
	}

	switch m.state {
	case StateCredited:
		resolveOne(cb, m.currentOutcome())
		return
	case StatePending, StateRevealInFlight:
		m.notifier.Notify(Notification{
			CardID:   m.card.ID,
			Severity: SeverityInfo,
			Message:  "Scratch the card to reveal your reward first.",
			Err:      ErrNotRevealed,
		})
		resolveOne(cb, Outcome{State: m.state, Err: ErrNotRevealed})
		return
	}

	if m.crediting || !m.guard.TryAcquire() {
		m.attach(cb)
		return
	}
	m.crediting = true
	m.attach(cb)
	m.logger.Info("credit dispatched")

	id := m.card.ID
	m.sched.Async(func() func() {
		res, err := m.reconciler.Credit(context.Background(), id)
		return func() { m.finishCredit(res, err) }
	})
}

func (m *StateMachine) finishCredit(res Result, err error) {
	if m.disposed {
		m.logger.Debug("credit result discarded after dispose", zap.Error(err))
		return
	}
	m.guard.Release()
	m.crediting = false

	switch {
	case err == nil:
		m.card.Advance(StatusCredited, Float(res.Amount), m.now())
	case errors.Is(err, ErrAlreadyCredited):
		m.card.Advance(StatusCredited, m.adoptAmount(err), m.now())
	default:
		m.notifyFailure("claim", Classify(err), err)
		m.resolve(Outcome{State: m.state, Amount: m.amount(), Known: m.card.Amount != nil, Err: err})
		return
	}
	m.setState(StateCredited)
	m.persist()
	m.resolve(m.currentOutcome())
}

// Dispose 销毁状态机：清空等待者，之后到达的网络结果不再修改任何状态
func (m *StateMachine) Dispose() {
	if m.disposed {
		return
	}
	m.disposed = true
	m.waiters = nil
	m.observers = nil
	m.logger.Debug("disposed", zap.Bool("inFlight", m.guard.Held()))
}

// adoptAmount 依次取服务端报告的金额、本地缓存的金额、当前卡片的金额
func (m *StateMachine) adoptAmount(err error) *float64 {
	if amount := AmountFrom(err); amount != nil {
		return amount
	}
	if m.store != nil {
		if cached, ok := m.store.LastKnown(m.card.ID); ok && cached.Amount != nil {
			return Float(*cached.Amount)
		}
	}
	if m.card.Amount != nil {
		return Float(*m.card.Amount)
	}
	return nil
}

func (m *StateMachine) setState(to State) {
	from := m.state
	if from == to {
		return
	}
	m.state = to
	m.logger.Debug("transition", zap.Stringer("from", from), zap.Stringer("to", to))
	for _, fn := range m.observers {
		fn(from, to)
	}
}

func (m *StateMachine) persist() {
	if m.store == nil {
		return
	}
	if err := m.store.Save(m.card); err != nil {
		m.logger.Warn("failed to persist card", zap.Error(err))
	}
}

func (m *StateMachine) notifyFailure(op string, kind ErrorKind, err error) {
	severity, msg := failureMessage(op, kind)
	m.notifier.Notify(Notification{
		CardID:   m.card.ID,
		Severity: severity,
		Message:  msg,
		Err:      err,
	})
}

func (m *StateMachine) amount() float64 {
	if m.card.Amount == nil {
		return 0
	}
	return *m.card.Amount
}

func (m *StateMachine) currentOutcome() Outcome {
	return Outcome{
		State:  m.state,
		Amount: m.amount(),
		Known:  m.card.Amount != nil,
	}
}

func (m *StateMachine) attach(cb Callback) {
	if cb != nil {
		m.waiters = append(m.waiters, cb)
	}
}

func (m *StateMachine) resolve(o Outcome) {
	waiters := m.waiters
	m.waiters = nil
	for _, cb := range waiters {
		cb(o)
	}
}

func resolveOne(cb Callback, o Outcome) {
	if cb != nil {
		cb(o)
	}
}
