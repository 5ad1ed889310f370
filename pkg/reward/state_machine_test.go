package reward

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/decker502/scratchcard/pkg/scheduler"
)

// fakeLedger 记录调用次数，按预设返回结果
type fakeLedger struct {
	mu          sync.Mutex
	revealCalls int
	creditCalls int
	amount      float64
	revealErr   error
	creditErr   error
}

func (l *fakeLedger) Reveal(ctx context.Context, id CardID) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revealCalls++
	if l.revealErr != nil {
		return Result{}, l.revealErr
	}
	return Result{Amount: l.amount, Message: "You won!"}, nil
}

func (l *fakeLedger) Credit(ctx context.Context, id CardID) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creditCalls++
	if l.creditErr != nil {
		return Result{}, l.creditErr
	}
	return Result{Amount: l.amount}, nil
}

// memStore 内存卡片缓存
type memStore struct {
	cards map[CardID]Card
	saves int
}

func newMemStore() *memStore {
	return &memStore{cards: make(map[CardID]Card)}
}

func (s *memStore) LastKnown(id CardID) (Card, bool) {
	c, ok := s.cards[id]
	return c, ok
}

func (s *memStore) Save(card Card) error {
	s.cards[card.ID] = card
	s.saves++
	return nil
}

type machineFixture struct {
	ledger        *fakeLedger
	store         *memStore
	sched         *scheduler.Scheduler
	machine       *StateMachine
	notifications []Notification
	transitions   [][2]State
}

func newMachineFixture(t *testing.T, card Card) *machineFixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &machineFixture{
		ledger: &fakeLedger{amount: 2.5},
		store:  newMemStore(),
		sched:  scheduler.New(60, logger),
	}
	f.sched.SetInline(true)
	rec := NewReconciler(f.ledger, time.Second, logger)
	f.machine = NewStateMachine(card, rec, f.sched, MachineOptions{
		Store:  f.store,
		Logger: logger,
		Notifier: NotifierFunc(func(n Notification) {
			f.notifications = append(f.notifications, n)
		}),
	})
	f.machine.OnTransition(func(from, to State) {
		f.transitions = append(f.transitions, [2]State{from, to})
	})
	return f
}

func pendingCard(id CardID) Card {
	return Card{ID: id, Status: StatusPending, CreatedAt: time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)}
}

// TestRevealTwiceSameTick 测试同一帧内两次揭晓只发起一次网络请求
func TestRevealTwiceSameTick(t *testing.T) {
	f := newMachineFixture(t, pendingCard(1))

	var first, second Outcome
	f.machine.Reveal(func(o Outcome) { first = o })
	f.machine.Reveal(func(o Outcome) { second = o })

	if f.machine.State() != StateRevealInFlight {
		t.Fatalf("状态 = %v, 期望 RevealInFlight", f.machine.State())
	}
	if !f.machine.InFlight() {
		t.Error("请求在途时守卫应被占用")
	}

	f.sched.Tick()

	if f.ledger.revealCalls != 1 {
		t.Errorf("网络请求次数 = %d, 期望 1", f.ledger.revealCalls)
	}
	if first.Amount != 2.5 || second.Amount != 2.5 || !first.Known {
		t.Errorf("两个调用方应得到相同金额: %+v %+v", first, second)
	}
	if first.State != StateRevealed || second.State != StateRevealed {
		t.Errorf("两个调用方应看到 Revealed: %+v %+v", first, second)
	}
	if f.machine.InFlight() {
		t.Error("请求完成后守卫应释放")
	}
}

// TestThresholdAndPostGestureSampleRace 测试手势中与手势后的采样同时越过阈值
func TestThresholdAndPostGestureSampleRace(t *testing.T) {
	f := newMachineFixture(t, pendingCard(1))

	if !f.machine.OnProgress(71) {
		t.Fatal("超过阈值应发起揭晓")
	}
	if f.machine.OnProgress(74) {
		t.Error("第二次采样不应再次发起揭晓")
	}
	f.sched.Tick()

	if f.ledger.revealCalls != 1 {
		t.Errorf("网络请求次数 = %d, 期望 1", f.ledger.revealCalls)
	}
}

func TestOnProgressBelowThreshold(t *testing.T) {
	f := newMachineFixture(t, pendingCard(1))
	if f.machine.OnProgress(69.9) {
		t.Error("低于阈值不应揭晓")
	}
	if f.machine.State() != StatePending {
		t.Errorf("状态 = %v, 期望 Pending", f.machine.State())
	}
}

// TestAutoRevealPersistsRevealed 测试 75% 擦除后自动揭晓并持久化
func TestAutoRevealPersistsRevealed(t *testing.T) {
	f := newMachineFixture(t, pendingCard(1))

	f.machine.OnProgress(75)
	f.sched.Tick()

	if f.machine.State() != StateRevealed {
		t.Fatalf("状态 = %v, 期望 Revealed", f.machine.State())
	}
	amount, ok := f.machine.Card().VisibleAmount()
	if !ok || amount != 2.5 {
		t.Errorf("金额 = %v (%v), 期望 2.5", amount, ok)
	}
	saved, ok := f.store.LastKnown(1)
	if !ok || saved.Status != StatusRevealed {
		t.Errorf("持久化状态 = %+v, 期望 revealed", saved)
	}

	want := [][2]State{{StatePending, StateRevealInFlight}, {StateRevealInFlight, StateRevealed}}
	if len(f.transitions) != len(want) {
		t.Fatalf("状态变化 = %v, 期望 %v", f.transitions, want)
	}
	for i := range want {
		if f.transitions[i] != want[i] {
			t.Errorf("第 %d 次变化 = %v, 期望 %v", i, f.transitions[i], want[i])
		}
	}
	if len(f.notifications) != 0 {
		t.Errorf("成功揭晓不应产生通知: %+v", f.notifications)
	}
}

// TestRevealReentrancy 测试已揭晓后再次揭晓是无副作用的重入
func TestRevealReentrancy(t *testing.T) {
	card := pendingCard(1)
	card.Status = StatusRevealed
	card.Amount = Float(4)
	f := newMachineFixture(t, card)

	var got Outcome
	f.machine.Reveal(func(o Outcome) { got = o })

	if f.ledger.revealCalls != 0 {
		t.Errorf("重入不应发起请求, 实际 %d 次", f.ledger.revealCalls)
	}
	if got.Amount != 4 || got.Err != nil {
		t.Errorf("重入结果 = %+v, 期望金额 4", got)
	}
	if len(f.notifications) != 0 {
		t.Error("重入不应产生通知")
	}
}

// TestRevealAlreadyRevealedAdoptsAmount 测试 already_revealed 冲突的恢复路径
func TestRevealAlreadyRevealedAdoptsAmount(t *testing.T) {
	tests := []struct {
		name       string
		serverAmt  *float64
		cachedAmt  *float64
		wantAmount float64
		wantKnown  bool
	}{
		{name: "使用服务端金额", serverAmt: Float(3), cachedAmt: Float(1), wantAmount: 3, wantKnown: true},
		{name: "回退到缓存金额", cachedAmt: Float(1.5), wantAmount: 1.5, wantKnown: true},
		{name: "没有任何金额", wantKnown: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMachineFixture(t, pendingCard(7))
			if tt.cachedAmt != nil {
				f.store.cards[7] = Card{ID: 7, Status: StatusPending, Amount: tt.cachedAmt}
			}
			f.ledger.revealErr = &LedgerError{Kind: KindAlreadyRevealed, Status: 409, Amount: tt.serverAmt}

			var got Outcome
			f.machine.Reveal(func(o Outcome) { got = o })
			f.sched.Tick()

			if f.machine.State() != StateRevealed {
				t.Fatalf("状态 = %v, 期望 Revealed", f.machine.State())
			}
			if got.Err != nil {
				t.Errorf("冲突不应作为错误返回: %v", got.Err)
			}
			if got.Known != tt.wantKnown || got.Amount != tt.wantAmount {
				t.Errorf("结果 = %+v, 期望金额 %v (known=%v)", got, tt.wantAmount, tt.wantKnown)
			}
			if len(f.notifications) != 0 {
				t.Errorf("冲突不应产生通知: %+v", f.notifications)
			}
			if f.store.cards[7].Status != StatusRevealed {
				t.Errorf("缓存状态 = %v, 期望 revealed", f.store.cards[7].Status)
			}
		})
	}
}

func TestRevealAlreadyCreditedJumpsToCredited(t *testing.T) {
	f := newMachineFixture(t, pendingCard(2))
	f.ledger.revealErr = &LedgerError{Kind: KindAlreadyCredited, Status: 409, Amount: Float(5)}

	f.machine.Reveal(nil)
	f.sched.Tick()

	if f.machine.State() != StateCredited {
		t.Errorf("状态 = %v, 期望 Credited", f.machine.State())
	}
	if f.machine.Card().CreditedAt == nil {
		t.Error("应记录入账时间")
	}
}

// TestRevealFailureRevertsToPending 测试其它失败回到 Pending 并通知用户
func TestRevealFailureRevertsToPending(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantHalted bool
		wantSev    Severity
	}{
		{name: "网络失败", err: &LedgerError{Kind: KindNetwork}, wantHalted: false, wantSev: SeverityWarning},
		{name: "超时", err: context.DeadlineExceeded, wantHalted: false, wantSev: SeverityWarning},
		{name: "需要登录", err: &LedgerError{Kind: KindAuthRequired, Status: 401}, wantHalted: true, wantSev: SeverityError},
		{name: "未知错误", err: errors.New("boom"), wantHalted: true, wantSev: SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newMachineFixture(t, pendingCard(3))
			f.ledger.revealErr = tt.err

			var got Outcome
			f.machine.OnProgress(80)
			f.machine.Reveal(func(o Outcome) { got = o })
			f.sched.Tick()

			if f.machine.State() != StatePending {
				t.Fatalf("状态 = %v, 期望 Pending", f.machine.State())
			}
			if f.machine.InFlight() {
				t.Error("失败后守卫应释放")
			}
			if got.Err == nil {
				t.Error("调用方应收到错误")
			}
			if len(f.notifications) != 1 {
				t.Fatalf("通知数量 = %d, 期望 1", len(f.notifications))
			}
			if f.notifications[0].Severity != tt.wantSev {
				t.Errorf("通知级别 = %v, 期望 %v", f.notifications[0].Severity, tt.wantSev)
			}
			if f.machine.AutoHalted() != tt.wantHalted {
				t.Errorf("AutoHalted = %v, 期望 %v", f.machine.AutoHalted(), tt.wantHalted)
			}
			if _, ok := f.machine.Card().VisibleAmount(); ok {
				t.Error("Pending 状态下金额不可见")
			}

			// 自动揭晓是否继续
			f.ledger.revealErr = nil
			triggered := f.machine.OnProgress(90)
			if triggered == tt.wantHalted {
				t.Errorf("OnProgress 触发 = %v, halted = %v", triggered, tt.wantHalted)
			}

			// 手动揭晓始终允许
			f.machine.Reveal(nil)
			f.sched.Tick()
			if f.machine.State() != StateRevealed {
				t.Errorf("重试后状态 = %v, 期望 Revealed", f.machine.State())
			}
		})
	}
}

// TestCreditOnce 测试入账成功后再次入账不发请求
func TestCreditOnce(t *testing.T) {
	f := newMachineFixture(t, pendingCard(1))
	f.machine.Reveal(nil)
	f.sched.Tick()

	var a, b Outcome
	f.machine.Credit(func(o Outcome) { a = o })
	f.machine.Credit(func(o Outcome) { b = o })
	f.sched.Tick()

	if f.ledger.creditCalls != 1 {
		t.Fatalf("入账请求次数 = %d, 期望 1", f.ledger.creditCalls)
	}
	if f.machine.State() != StateCredited || a.State != StateCredited || b.Amount != a.Amount {
		t.Errorf("入账结果 = %+v %+v", a, b)
	}
	if f.store.cards[1].Status != StatusCredited {
		t.Errorf("缓存状态 = %v, 期望 credited", f.store.cards[1].Status)
	}

	f.machine.Credit(nil)
	f.sched.Tick()
	if f.ledger.creditCalls != 1 {
		t.Errorf("已入账后请求次数 = %d, 期望仍为 1", f.ledger.creditCalls)
	}
}

// TestCreditWhenAlreadyCredited 测试初始即为 credited 的卡片
func TestCreditWhenAlreadyCredited(t *testing.T) {
	card := pendingCard(1)
	card.Status = StatusCredited
	card.Amount = Float(2)
	f := newMachineFixture(t, card)

	var got Outcome
	f.machine.Credit(func(o Outcome) { got = o })
	f.sched.Tick()

	if f.ledger.creditCalls != 0 {
		t.Errorf("网络请求次数 = %d, 期望 0", f.ledger.creditCalls)
	}
	if f.machine.State() != StateCredited || got.Amount != 2 {
		t.Errorf("状态 = %v, 结果 = %+v", f.machine.State(), got)
	}
	if len(f.transitions) != 0 {
		t.Errorf("状态不应变化: %v", f.transitions)
	}
}

func TestCreditBeforeReveal(t *testing.T) {
	f := newMachineFixture(t, pendingCard(1))

	var got Outcome
	f.machine.Credit(func(o Outcome) { got = o })
	if !errors.Is(got.Err, ErrNotRevealed) {
		t.Errorf("错误 = %v, 期望 ErrNotRevealed", got.Err)
	}
	if f.ledger.creditCalls != 0 || len(f.notifications) != 1 {
		t.Errorf("请求 %d 次, 通知 %d 条", f.ledger.creditCalls, len(f.notifications))
	}
}

func TestCreditFailureStaysRevealed(t *testing.T) {
	f := newMachineFixture(t, pendingCard(1))
	f.machine.Reveal(nil)
	f.sched.Tick()

	f.ledger.creditErr = &LedgerError{Kind: KindTimeout}
	var got Outcome
	f.machine.Credit(func(o Outcome) { got = o })
	f.sched.Tick()

	if f.machine.State() != StateRevealed {
		t.Errorf("状态 = %v, 期望 Revealed", f.machine.State())
	}
	if !errors.Is(got.Err, ErrTimeout) {
		t.Errorf("错误 = %v, 期望 ErrTimeout", got.Err)
	}
	if len(f.notifications) != 1 {
		t.Errorf("通知数量 = %d, 期望 1", len(f.notifications))
	}

	// already_credited 视为成功
	f.ledger.creditErr = &LedgerError{Kind: KindAlreadyCredited}
	f.machine.Credit(nil)
	f.sched.Tick()
	if f.machine.State() != StateCredited {
		t.Errorf("状态 = %v, 期望 Credited", f.machine.State())
	}
	if amt, _ := f.machine.Card().VisibleAmount(); amt != 2.5 {
		t.Errorf("金额 = %v, 期望保留 2.5", amt)
	}
}

// TestDisposeDiscardsLateResult 测试销毁后到达的结果不修改状态
func TestDisposeDiscardsLateResult(t *testing.T) {
	f := newMachineFixture(t, pendingCard(1))

	called := false
	f.machine.Reveal(func(Outcome) { called = true })
	f.machine.Dispose()
	f.sched.Tick()

	if f.ledger.revealCalls != 1 {
		t.Errorf("在途请求应允许完成, 调用次数 = %d", f.ledger.revealCalls)
	}
	if f.machine.State() != StateRevealInFlight {
		t.Errorf("销毁后状态不应变化, 实际 %v", f.machine.State())
	}
	if called || f.store.saves != 0 {
		t.Error("销毁后不应回调或持久化")
	}

	var got Outcome
	f.machine.Reveal(func(o Outcome) { got = o })
	if !errors.Is(got.Err, ErrDisposed) {
		t.Errorf("销毁后揭晓应返回 ErrDisposed, 实际 %v", got.Err)
	}
}

func TestStatesNeverRegress(t *testing.T) {
	f := newMachineFixture(t, pendingCard(1))
	f.machine.Reveal(nil)
	f.sched.Tick()
	f.machine.Credit(nil)
	f.sched.Tick()

	// 之后的任何失败都不能让状态回退
	f.ledger.revealErr = &LedgerError{Kind: KindNetwork}
	f.machine.Reveal(nil)
	f.machine.OnProgress(100)
	f.sched.Tick()

	if f.machine.State() != StateCredited {
		t.Errorf("状态 = %v, 期望保持 Credited", f.machine.State())
	}
	for _, tr := range f.transitions {
		if tr[1] < tr[0] && tr[1] == StatePending && tr[0] != StateRevealInFlight {
			t.Errorf("非法回退: %v", tr)
		}
	}
}
