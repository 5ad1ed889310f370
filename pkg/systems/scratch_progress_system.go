package systems

import (
	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/components"
	"github.com/decker502/scratchcard/pkg/config"
	"github.com/decker502/scratchcard/pkg/ecs"
	"github.com/decker502/scratchcard/pkg/scheduler"
)

// ScratchProgressSystem 调度擦除进度采样并驱动自动揭晓
//
// 采样总是延迟到笔画之后的帧执行，确保读取的是已提交的缓冲区：
//   - 手势进行中：节流，两次采样至少间隔 sampleEvery 帧
//   - 手势结束：无论节流状态如何，下一帧强制采样一次
type ScratchProgressSystem struct {
	entityManager *ecs.EntityManager
	sched         *scheduler.Scheduler
	sampleEvery   uint64
	logger        *zap.Logger
}

// NewScratchProgressSystem 创建进度采样系统
func NewScratchProgressSystem(em *ecs.EntityManager, sched *scheduler.Scheduler, sampleEvery int, logger *zap.Logger) *ScratchProgressSystem {
	if sampleEvery < 1 {
		sampleEvery = config.DefaultSampleEveryTicks
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScratchProgressSystem{
		entityManager: em,
		sched:         sched,
		sampleEvery:   uint64(sampleEvery),
		logger:        logger.Named("ScratchProgressSystem"),
	}
}

// RequestSample 在笔画之后请求一次采样
//
// 参数：
//   - id: 卡片实体
//   - final: 手势结束后的强制采样
func (s *ScratchProgressSystem) RequestSample(id ecs.EntityID, final bool) {
	surf, ok := ecs.GetComponent[*components.ScratchSurfaceComponent](s.entityManager, id)
	if !ok {
		return
	}

	if final {
		surf.FinalSamplePending = true
		s.sched.Cancel(surf.SampleTask)
		surf.SampleTask = s.sched.Defer(1, func() { s.sample(id) })
		return
	}

	// 已排队的采样一定在本次笔画之后执行
	if surf.SampleTask != 0 {
		return
	}
	delay := 1
	if surf.Estimator.Samples() > 0 {
		next := surf.LastSampleTick + s.sampleEvery
		if now := s.sched.Now(); next > now+1 {
			delay = int(next - now)
		}
	}
	surf.SampleTask = s.sched.Defer(delay, func() { s.sample(id) })
}

func (s *ScratchProgressSystem) sample(id ecs.EntityID) {
	surf, ok := ecs.GetComponent[*components.ScratchSurfaceComponent](s.entityManager, id)
	if !ok {
		return
	}
	card, ok := ecs.GetComponent[*components.ScratchCardComponent](s.entityManager, id)
	if !ok {
		return
	}

	final := surf.FinalSamplePending
	surf.SampleTask = 0
	surf.FinalSamplePending = false

	now := s.sched.Now()
	fraction := surf.Estimator.Sample(surf.Surface)
	surf.LastSampleTick = now
	surf.Progress.Advance(fraction, now)

	s.logger.Debug("progress sampled",
		zap.Int64("cardId", int64(card.Machine.Card().ID)),
		zap.Float64("fraction", surf.Progress.Fraction),
		zap.Bool("final", final))

	// 可能同步切换到 RevealInFlight（观察者会停止动画）
	card.Machine.OnProgress(surf.Progress.Fraction)
}
