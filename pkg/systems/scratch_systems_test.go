package systems

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/decker502/scratchcard/pkg/components"
	"github.com/decker502/scratchcard/pkg/config"
	"github.com/decker502/scratchcard/pkg/ecs"
	"github.com/decker502/scratchcard/pkg/entities"
	"github.com/decker502/scratchcard/pkg/game"
	"github.com/decker502/scratchcard/pkg/reward"
	"github.com/decker502/scratchcard/pkg/scheduler"
	"github.com/decker502/scratchcard/pkg/scratch"
	"github.com/decker502/scratchcard/pkg/utils"
)

// stubLedger 记录揭晓/入账调用次数
type stubLedger struct {
	mu        sync.Mutex
	amount    float64
	revealErr error
	reveals   int
	credits   int
}

func (l *stubLedger) Reveal(ctx context.Context, id reward.CardID) (reward.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reveals++
	if l.revealErr != nil {
		return reward.Result{}, l.revealErr
	}
	return reward.Result{Amount: l.amount, Message: "You won!"}, nil
}

func (l *stubLedger) Credit(ctx context.Context, id reward.CardID) (reward.Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credits++
	return reward.Result{Amount: l.amount}, nil
}

func (l *stubLedger) revealCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reveals
}

type wallet struct {
	em       *ecs.EntityManager
	sched    *scheduler.Scheduler
	ledger   *stubLedger
	cache    *game.CardCache
	deps     *entities.ScratchCardDeps
	progress *ScratchProgressSystem
	input    *ScratchInputSystem
	layout   *ScratchLayoutSystem
}

func newWallet(t *testing.T) *wallet {
	t.Helper()
	logger := zaptest.NewLogger(t)
	sched := scheduler.New(60, logger)
	sched.SetInline(true)

	ledger := &stubLedger{amount: 2.5}
	cache := game.NewCardCache(nil, logger)
	cfg := config.DefaultScratchConfig()

	em := ecs.NewEntityManager()
	deps := &entities.ScratchCardDeps{
		Reconciler: reward.NewReconciler(ledger, time.Second, logger),
		Scheduler:  sched,
		Store:      cache,
		Config:     cfg,
		PixelRatio: 1,
		Logger:     logger,
	}
	progress := NewScratchProgressSystem(em, sched, cfg.SampleEveryTicks, logger)
	return &wallet{
		em:       em,
		sched:    sched,
		ledger:   ledger,
		cache:    cache,
		deps:     deps,
		progress: progress,
		input:    NewScratchInputSystem(em, progress, logger),
		layout:   NewScratchLayoutSystem(em, deps, logger),
	}
}

func (w *wallet) addCard(t *testing.T, card reward.Card, bounds scratch.Rect) ecs.EntityID {
	t.Helper()
	id, err := entities.NewScratchCardEntity(w.em, card, bounds, w.deps)
	if err != nil {
		t.Fatalf("NewScratchCardEntity failed: %v", err)
	}
	return id
}

// frame 处理一帧的指针事件，然后推进调度器
func (w *wallet) frame(events ...utils.PointerEvent) {
	w.layout.Update(1.0 / 60)
	w.input.HandleEvents(events)
	w.sched.Tick()
}

func (w *wallet) ticks(n int) {
	for i := 0; i < n; i++ {
		w.frame()
	}
}

func down(x, y float64) utils.PointerEvent {
	return utils.PointerEvent{Phase: utils.PointerDown, ID: utils.MousePointerID, X: x, Y: y}
}

func move(x, y float64) utils.PointerEvent {
	return utils.PointerEvent{Phase: utils.PointerMove, ID: utils.MousePointerID, X: x, Y: y}
}

func up(x, y float64) utils.PointerEvent {
	return utils.PointerEvent{Phase: utils.PointerUp, ID: utils.MousePointerID, X: x, Y: y}
}

// swipe 在 y 行从 x0 横向拖到 x1，每帧一个移动事件
func (w *wallet) swipe(x0, x1, y float64) {
	w.frame(down(x0, y))
	for x := x0 + 10; x <= x1; x += 10 {
		w.frame(move(x, y))
	}
	w.frame(up(x1, y))
}

func surfaceOf(t *testing.T, w *wallet, id ecs.EntityID) *components.ScratchSurfaceComponent {
	t.Helper()
	surf, ok := ecs.GetComponent[*components.ScratchSurfaceComponent](w.em, id)
	if !ok {
		t.Fatal("card has no scratch surface")
	}
	return surf
}

func machineOf(w *wallet, id ecs.EntityID) *reward.StateMachine {
	card, _ := ecs.GetComponent[*components.ScratchCardComponent](w.em, id)
	return card.Machine
}

func TestScratchingPastThresholdRevealsCard(t *testing.T) {
	w := newWallet(t)
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusPending}, scratch.Rect{Width: 100, Height: 100})

	var transitions []reward.State
	machineOf(w, id).OnTransition(func(from, to reward.State) {
		transitions = append(transitions, to)
	})

	// 上半部分整行 + 下半部分左半行，约 75% 以上
	w.swipe(0, 99, 25)
	if machineOf(w, id).State() != reward.StatePending {
		t.Fatalf("State after first swipe = %v, want Pending", machineOf(w, id).State())
	}
	w.swipe(0, 49, 75)
	w.ticks(3)

	m := machineOf(w, id)
	if m.State() != reward.StateRevealed {
		t.Fatalf("State = %v, want Revealed", m.State())
	}
	if got := w.ledger.revealCalls(); got != 1 {
		t.Errorf("reveal calls = %d, want 1", got)
	}
	if amount, ok := m.Card().VisibleAmount(); !ok || amount != 2.5 {
		t.Errorf("amount = %v (%v), want 2.5", amount, ok)
	}
	if len(transitions) != 2 || transitions[0] != reward.StateRevealInFlight || transitions[1] != reward.StateRevealed {
		t.Errorf("transitions = %v, want [RevealInFlight Revealed]", transitions)
	}

	cached, ok := w.cache.LastKnown(1)
	if !ok || cached.Status != reward.StatusRevealed {
		t.Errorf("persisted card = %+v, want status revealed", cached)
	}

	// 揭晓后缓冲区被丢弃
	if ecs.HasComponent[*components.ScratchSurfaceComponent](w.em, id) {
		t.Error("scratch surface should be released after reveal")
	}
}

func TestFinalSampleAfterGestureEnds(t *testing.T) {
	w := newWallet(t)
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusPending}, scratch.Rect{Width: 100, Height: 100})
	surf := surfaceOf(t, w, id)

	// 整个手势在同一帧内完成：节流采样没有机会执行
	events := []utils.PointerEvent{down(0, 25)}
	for x := 10.0; x < 100; x += 10 {
		events = append(events, move(x, 25))
	}
	events = append(events, move(99, 75), move(0, 75), up(0, 75))
	w.input.HandleEvents(events)

	if surf.Estimator.Samples() != 0 {
		t.Fatal("sampling must be deferred past the stroke")
	}
	if !surf.FinalSamplePending {
		t.Fatal("final sample should be queued when the gesture ends")
	}

	w.sched.Tick()
	if surf.Estimator.Samples() != 1 {
		t.Errorf("samples = %d, want 1", surf.Estimator.Samples())
	}
	if surf.Progress.Fraction < 70 {
		t.Fatalf("fraction = %.1f, want >= 70", surf.Progress.Fraction)
	}
	if machineOf(w, id).State() != reward.StateRevealInFlight {
		t.Errorf("State = %v, want RevealInFlight", machineOf(w, id).State())
	}

	w.sched.Tick()
	if machineOf(w, id).State() != reward.StateRevealed {
		t.Errorf("State = %v, want Revealed", machineOf(w, id).State())
	}
}

func TestSamplingIsThrottledDuringGesture(t *testing.T) {
	w := newWallet(t)
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusPending}, scratch.Rect{Width: 400, Height: 400})
	surf := surfaceOf(t, w, id)

	w.frame(down(10, 10))
	for i := 1; i <= 12; i++ {
		w.frame(move(10+float64(i)*2, 10))
	}
	// 12 帧移动，每 4 帧最多一次采样
	if n := surf.Estimator.Samples(); n < 2 || n > 4 {
		t.Errorf("samples during gesture = %d, want 2..4", n)
	}
	before := surf.Estimator.Samples()

	w.frame(up(34, 10))
	w.ticks(1)
	if surf.Estimator.Samples() != before+1 {
		t.Errorf("samples after release = %d, want %d", surf.Estimator.Samples(), before+1)
	}
	if machineOf(w, id).State() != reward.StatePending {
		t.Errorf("small scratch must not reveal, state = %v", machineOf(w, id).State())
	}
}

func TestAnimatorStopsDuringGestureAndResumesAfterCooldown(t *testing.T) {
	w := newWallet(t)
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusPending}, scratch.Rect{Width: 200, Height: 200})
	surf := surfaceOf(t, w, id)

	if !surf.Animator.Running() {
		t.Fatal("animator should run on a pending card")
	}

	w.frame(down(20, 20))
	if surf.Animator.Running() {
		t.Fatal("animator must stop on pointer down")
	}
	w.frame(move(40, 20))
	w.frame(up(40, 20))
	if surf.Animator.Running() || !surf.Animator.ResumePending() {
		t.Fatal("animator should wait for the cooldown after pointer up")
	}

	cooldown := w.sched.TicksFor(w.deps.Config.Ambient.ResumeCooldown)
	w.ticks(cooldown + 1)
	if !surf.Animator.Running() {
		t.Error("animator should resume after the cooldown")
	}

	// 冷却期间再次按下会取消恢复
	w.frame(down(60, 60))
	w.frame(up(60, 60))
	w.frame(down(60, 60))
	w.ticks(cooldown + 1)
	if surf.Animator.Running() {
		t.Error("animator must stay stopped while a gesture is active")
	}
}

func TestDragOffSurfaceBreaksLine(t *testing.T) {
	w := newWallet(t)
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusPending}, scratch.Rect{X: 100, Y: 100, Width: 200, Height: 200})
	surf := surfaceOf(t, w, id)

	w.frame(down(150, 150))
	w.frame(move(350, 150)) // 拖出卡片
	if surf.Session.LastPoint != nil {
		t.Fatal("leaving the surface should drop the last point")
	}
	if !surf.Session.Active {
		t.Fatal("gesture stays active while the pointer is outside")
	}
	w.frame(move(250, 280))

	// 缓冲区 (50,50) 与 (150,180) 连线的中点：重新进入时只盖一个点，不连线
	if surf.Surface.Erased(100, 115) {
		t.Error("line must not be drawn across the off-surface gap")
	}
	if !surf.Surface.Erased(150, 180) {
		t.Error("dab at the re-entry point should be erased")
	}
}

func TestOtherPointerIsIgnoredDuringGesture(t *testing.T) {
	w := newWallet(t)
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusPending}, scratch.Rect{Width: 200, Height: 200})
	surf := surfaceOf(t, w, id)

	w.frame(down(20, 20))
	w.frame(utils.PointerEvent{Phase: utils.PointerDown, ID: 5, X: 150, Y: 150})
	if surf.Surface.Erased(150, 150) {
		t.Error("second pointer must not scratch while another gesture is active")
	}
	w.frame(utils.PointerEvent{Phase: utils.PointerUp, ID: 5, X: 150, Y: 150})
	if !surf.Session.Active {
		t.Error("releasing another pointer must not end the gesture")
	}
}

func TestLayoutRefitsMappingOnResize(t *testing.T) {
	w := newWallet(t)
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusPending}, scratch.Rect{Width: 100, Height: 100})
	surf := surfaceOf(t, w, id)

	card, _ := ecs.GetComponent[*components.ScratchCardComponent](w.em, id)
	card.Bounds = scratch.Rect{X: 10, Y: 10, Width: 200, Height: 200}
	w.layout.Update(1.0 / 60)

	sx, sy := surf.Mapper.Scale()
	if sx != 0.5 || sy != 0.5 {
		t.Fatalf("scale = (%v, %v), want (0.5, 0.5)", sx, sy)
	}
	p, ok := surf.Mapper.Map(209, 209)
	if !ok || p.X != 99.5 || p.Y != 99.5 {
		t.Errorf("Map(209, 209) = %+v, %v, want (99.5, 99.5)", p, ok)
	}
	if surf.Surface.Width() != 100 {
		t.Error("buffer resolution must not change on resize")
	}
}

func TestSurfaceCreatedOnFirstNonZeroLayout(t *testing.T) {
	w := newWallet(t)
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusPending}, scratch.Rect{})
	if ecs.HasComponent[*components.ScratchSurfaceComponent](w.em, id) {
		t.Fatal("surface must not exist before the card has a size")
	}

	card, _ := ecs.GetComponent[*components.ScratchCardComponent](w.em, id)
	card.Bounds = scratch.Rect{Width: 120, Height: 80}
	w.layout.Update(1.0 / 60)

	surf := surfaceOf(t, w, id)
	if surf.Surface.Width() != 120 || surf.Surface.Height() != 80 {
		t.Errorf("buffer = %dx%d, want 120x80", surf.Surface.Width(), surf.Surface.Height())
	}
	if !surf.Animator.Running() {
		t.Error("animator should start with the surface")
	}
}

func TestRevealedCardHasNoSurface(t *testing.T) {
	w := newWallet(t)
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusRevealed, Amount: reward.Float(1)}, scratch.Rect{Width: 100, Height: 100})
	w.layout.Update(1.0 / 60)
	if ecs.HasComponent[*components.ScratchSurfaceComponent](w.em, id) {
		t.Error("revealed cards are not scratchable")
	}
	if machineOf(w, id).State() != reward.StateRevealed {
		t.Errorf("State = %v, want Revealed", machineOf(w, id).State())
	}
}

func TestFailedRevealRestartsAnimator(t *testing.T) {
	w := newWallet(t)
	w.ledger.revealErr = reward.ErrNetwork
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusPending}, scratch.Rect{Width: 100, Height: 100})
	surf := surfaceOf(t, w, id)

	machineOf(w, id).Reveal(nil)
	if surf.Animator.Running() {
		t.Fatal("animator must stop while the reveal is in flight")
	}
	w.sched.Tick()

	if machineOf(w, id).State() != reward.StatePending {
		t.Fatalf("State = %v, want Pending", machineOf(w, id).State())
	}
	if !surf.Animator.Running() {
		t.Error("animator should restart after reverting to Pending")
	}
}

func TestDisposeReleasesEverything(t *testing.T) {
	w := newWallet(t)
	id := w.addCard(t, reward.Card{ID: 1, Status: reward.StatusPending}, scratch.Rect{Width: 100, Height: 100})
	surf := surfaceOf(t, w, id)

	w.frame(down(50, 50))
	m := machineOf(w, id)
	entities.DisposeScratchCard(w.em, id, w.sched)
	w.em.RemoveMarkedEntities()

	if !surf.Surface.Released() {
		t.Error("buffer should be released")
	}
	if surf.Animator.Running() || surf.Animator.ResumePending() {
		t.Error("animator tasks should be cancelled")
	}
	if !m.Disposed() {
		t.Error("state machine should be disposed")
	}
	if w.em.Exists(id) {
		t.Error("entity should be removed")
	}
	if w.sched.Pending() != 0 {
		t.Errorf("pending scheduler tasks = %d, want 0", w.sched.Pending())
	}
}

func TestHoverTracksPointer(t *testing.T) {
	w := newWallet(t)
	a := w.addCard(t, reward.Card{ID: 1}, scratch.Rect{Width: 100, Height: 100})
	w.addCard(t, reward.Card{ID: 2}, scratch.Rect{X: 120, Width: 100, Height: 100})

	w.input.UpdateHover(50, 50)
	if got, ok := w.input.HoveredCard(); !ok || got != a {
		t.Errorf("HoveredCard = %v, %v, want %v", got, ok, a)
	}
	w.input.UpdateHover(110, 50)
	if _, ok := w.input.HoveredCard(); ok {
		t.Error("gap between cards should not hover any card")
	}
}
