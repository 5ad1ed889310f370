package entities

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/components"
	"github.com/decker502/scratchcard/pkg/config"
	"github.com/decker502/scratchcard/pkg/ecs"
	"github.com/decker502/scratchcard/pkg/reward"
	"github.com/decker502/scratchcard/pkg/scheduler"
	"github.com/decker502/scratchcard/pkg/scratch"
)

// ScratchCardDeps 刮刮卡实体共享的依赖
type ScratchCardDeps struct {
	Reconciler *reward.Reconciler
	Scheduler  *scheduler.Scheduler
	Store      reward.CardStore // 可为 nil
	Notifier   reward.Notifier  // 可为 nil
	Config     *config.ScratchConfig
	PixelRatio float64
	Logger     *zap.Logger

	// ReducedMotion 关闭覆盖层的待机动画（表面和擦除不受影响）
	ReducedMotion bool
}

func (d *ScratchCardDeps) config() *config.ScratchConfig {
	if d.Config == nil {
		d.Config = config.DefaultScratchConfig()
	}
	return d.Config
}

func (d *ScratchCardDeps) logger() *zap.Logger {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d.Logger
}

// NewScratchCardEntity 创建刮刮卡实体
//
// 参数:
//   - em: 实体管理器
//   - card: 卡片缓存（状态决定状态机的初始状态）
//   - bounds: 卡片在屏幕上的区域，尺寸为零时擦除表面推迟到布局系统创建
//   - deps: 共享依赖
//
// 返回:
//   - ecs.EntityID: 实体ID
//   - error: 依赖缺失或擦除表面创建失败
func NewScratchCardEntity(em *ecs.EntityManager, card reward.Card, bounds scratch.Rect, deps *ScratchCardDeps) (ecs.EntityID, error) {
	if em == nil {
		return 0, fmt.Errorf("entity manager cannot be nil")
	}
	if deps == nil || deps.Scheduler == nil || deps.Reconciler == nil {
		return 0, fmt.Errorf("scratch card %d: scheduler and reconciler are required", card.ID)
	}
	cfg := deps.config()

	machine := reward.NewStateMachine(card, deps.Reconciler, deps.Scheduler, reward.MachineOptions{
		Threshold: cfg.RevealThreshold,
		Store:     deps.Store,
		Notifier:  deps.Notifier,
		Logger:    deps.logger(),
	})

	id := em.CreateEntity()
	ecs.AddComponent(em, id, &components.ScratchCardComponent{
		Machine: machine,
		Bounds:  bounds,
		Seed:    int64(card.ID),
	})

	machine.OnTransition(func(from, to reward.State) {
		onCardTransition(em, id, deps, from, to)
	})

	if machine.State() == reward.StatePending && !bounds.Empty() {
		if err := AttachScratchSurface(em, id, deps); err != nil {
			em.DestroyEntity(id)
			return 0, err
		}
	}

	deps.logger().Debug("scratch card created",
		zap.Int64("cardId", int64(card.ID)),
		zap.Stringer("state", machine.State()))
	return id, nil
}

// AttachScratchSurface 为 Pending 卡片创建擦除表面并启动环境动画
//
// 已有表面、卡片不在 Pending 或区域尺寸为零时不做任何事。
func AttachScratchSurface(em *ecs.EntityManager, id ecs.EntityID, deps *ScratchCardDeps) error {
	card, ok := ecs.GetComponent[*components.ScratchCardComponent](em, id)
	if !ok {
		return fmt.Errorf("entity %d is not a scratch card", id)
	}
	if ecs.HasComponent[*components.ScratchSurfaceComponent](em, id) {
		return nil
	}
	machine := card.Machine
	if machine.State() != reward.StatePending || card.Bounds.Empty() {
		return nil
	}
	cfg := deps.config()

	surface, err := scratch.NewErasureSurface(card.Bounds.Width, card.Bounds.Height, deps.PixelRatio, cfg.BrushOptions())
	if err != nil {
		return fmt.Errorf("scratch card %d: %w", machine.Card().ID, err)
	}
	surface.Initialize(card.Seed)

	session := scratch.NewInputSession()
	reduced := deps.ReducedMotion
	canRun := func() bool {
		return !reduced && machine.State() == reward.StatePending && !session.Active
	}
	comp := &components.ScratchSurfaceComponent{
		Surface:   surface,
		Mapper:    scratch.NewCoordinateMapper(card.Bounds, deps.PixelRatio),
		Estimator: scratch.NewProgressEstimator(),
		Animator:  scratch.NewAmbientAnimator(surface, deps.Scheduler, cfg.AnimatorOptions(), card.Seed, canRun, deps.logger()),
		Session:   session,
	}
	ecs.AddComponent(em, id, comp)
	comp.Animator.Start()
	return nil
}

// ReleaseScratchSurface 停止动画、取消采样并释放擦除表面和纹理
func ReleaseScratchSurface(em *ecs.EntityManager, id ecs.EntityID, sched *scheduler.Scheduler) {
	if surf, ok := ecs.GetComponent[*components.ScratchSurfaceComponent](em, id); ok {
		surf.Animator.Stop()
		if surf.SampleTask != 0 {
			sched.Cancel(surf.SampleTask)
			surf.SampleTask = 0
		}
		surf.Surface.Release()
		ecs.RemoveComponent[*components.ScratchSurfaceComponent](em, id)
	}
	if tex, ok := ecs.GetComponent[*components.ScratchTextureComponent](em, id); ok {
		if tex.Image != nil {
			tex.Image.Deallocate()
		}
		ecs.RemoveComponent[*components.ScratchTextureComponent](em, id)
	}
}

// DisposeScratchCard 销毁刮刮卡实体
//
// 在途请求允许完成，但结果被丢弃；表面和调度任务立即释放。
func DisposeScratchCard(em *ecs.EntityManager, id ecs.EntityID, sched *scheduler.Scheduler) {
	if card, ok := ecs.GetComponent[*components.ScratchCardComponent](em, id); ok {
		card.Machine.Dispose()
	}
	ReleaseScratchSurface(em, id, sched)
	em.DestroyEntity(id)
}

func onCardTransition(em *ecs.EntityManager, id ecs.EntityID, deps *ScratchCardDeps, from, to reward.State) {
	surf, ok := ecs.GetComponent[*components.ScratchSurfaceComponent](em, id)
	if !ok {
		return
	}
	switch to {
	case reward.StatePending:
		// 揭晓失败回到 Pending：没有手势时恢复动画
		if !surf.Session.Active {
			surf.Animator.Start()
		}
	case reward.StateRevealInFlight:
		surf.Animator.Stop()
	case reward.StateRevealed, reward.StateCredited:
		ReleaseScratchSurface(em, id, deps.Scheduler)
	}
	deps.logger().Debug("scratch card transition",
		zap.Uint64("entity", uint64(id)),
		zap.Stringer("from", from),
		zap.Stringer("to", to))
}
