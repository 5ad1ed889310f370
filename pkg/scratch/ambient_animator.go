package scratch

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/scheduler"
)

// 环境动画默认参数
const (
	DefaultPulseAmplitude = 0.06
	DefaultPulsePeriod    = 2 * time.Second
	DefaultRegenInterval  = 5 * time.Second
	DefaultResumeCooldown = 400 * time.Millisecond
)

// AnimatorOptions 环境动画参数
type AnimatorOptions struct {
	PulseAmplitude float64       // 高光亮度的最大偏移（0..1）
	PulsePeriod    time.Duration // 一次呼吸的周期
	RegenInterval  time.Duration // 底纹再生间隔
	ResumeCooldown time.Duration // 手势结束后恢复动画前的冷却时间
}

// DefaultAnimatorOptions 返回默认动画参数
func DefaultAnimatorOptions() AnimatorOptions {
	return AnimatorOptions{
		PulseAmplitude: DefaultPulseAmplitude,
		PulsePeriod:    DefaultPulsePeriod,
		RegenInterval:  DefaultRegenInterval,
		ResumeCooldown: DefaultResumeCooldown,
	}
}

// AmbientAnimator 覆盖层的待机动画（呼吸高光 + 慢速底纹再生）
//
// 动画是一个调度器重复任务，由状态变化显式启动和停止：
//   - 指针按下时 Stop（取消任务，而不是跳过绘制）
//   - 指针抬起后 ResumeAfter 冷却时间再 Start，避免与最终进度采样竞争
//   - 卡片离开 Pending 状态时 Stop
//
// canRun 在 Start 和每一步执行前检查，返回 false 时动画自行停止。
type AmbientAnimator struct {
	surface *ErasureSurface
	sched   *scheduler.Scheduler
	canRun  func() bool
	logger  *zap.Logger

	amplitude   float64
	periodTicks int
	regenTicks  int
	cooldown    int

	task   scheduler.TaskID
	resume scheduler.TaskID

	step          int
	seed          int64
	regenerations int
}

// NewAmbientAnimator 创建环境动画
//
// 参数：
//   - surface: 动画写入的擦除表面
//   - sched: 帧调度器
//   - opts: 动画参数
//   - seed: 初始纹理种子，每次再生递增
//   - canRun: 运行条件（通常为 status == Pending && !session.Active）
//   - logger: 日志记录器，可为 nil
func NewAmbientAnimator(surface *ErasureSurface, sched *scheduler.Scheduler, opts AnimatorOptions, seed int64, canRun func() bool, logger *zap.Logger) *AmbientAnimator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if canRun == nil {
		canRun = func() bool { return true }
	}
	def := DefaultAnimatorOptions()
	if opts.PulsePeriod <= 0 {
		opts.PulsePeriod = def.PulsePeriod
	}
	if opts.RegenInterval <= 0 {
		opts.RegenInterval = def.RegenInterval
	}
	if opts.ResumeCooldown < 0 {
		opts.ResumeCooldown = 0
	}
	return &AmbientAnimator{
		surface:     surface,
		sched:       sched,
		canRun:      canRun,
		logger:      logger.Named("AmbientAnimator"),
		amplitude:   opts.PulseAmplitude,
		periodTicks: sched.TicksFor(opts.PulsePeriod),
		regenTicks:  sched.TicksFor(opts.RegenInterval),
		cooldown:    sched.TicksFor(opts.ResumeCooldown),
		seed:        seed,
	}
}

// Start 启动动画任务（已运行或条件不满足时不做任何事）
//
// 返回：
//   - bool: 本次调用是否启动了任务
func (a *AmbientAnimator) Start() bool {
	if a.task != 0 || a.surface.Released() || !a.canRun() {
		return false
	}
	a.cancelResume()
	a.task = a.sched.Every(1, a.tick)
	a.logger.Debug("started", zap.Uint64("tick", a.sched.Now()))
	return true
}

// Stop 立即停止动画，同时取消等待中的恢复
func (a *AmbientAnimator) Stop() {
	a.cancelResume()
	if a.task == 0 {
		return
	}
	a.sched.Cancel(a.task)
	a.task = 0
	a.logger.Debug("stopped", zap.Uint64("tick", a.sched.Now()))
}

// ResumeAfterCooldown 在配置的冷却时间后尝试重新启动
func (a *AmbientAnimator) ResumeAfterCooldown() {
	a.ResumeAfter(a.cooldown)
}

// ResumeAfter 在 ticks 帧后尝试重新启动（重复调用会重置计时）
func (a *AmbientAnimator) ResumeAfter(ticks int) {
	a.cancelResume()
	a.resume = a.sched.Defer(ticks, func() {
		a.resume = 0
		a.Start()
	})
}

func (a *AmbientAnimator) cancelResume() {
	if a.resume != 0 {
		a.sched.Cancel(a.resume)
		a.resume = 0
	}
}

// Running 检查动画任务是否在运行
func (a *AmbientAnimator) Running() bool {
	return a.task != 0
}

// ResumePending 检查是否有等待中的恢复
func (a *AmbientAnimator) ResumePending() bool {
	return a.resume != 0
}

// Regenerations 返回底纹再生次数
func (a *AmbientAnimator) Regenerations() int {
	return a.regenerations
}

func (a *AmbientAnimator) tick() {
	if a.surface.Released() || !a.canRun() {
		a.Stop()
		return
	}
	a.step++

	if a.step%a.regenTicks == 0 {
		a.seed++
		kept := a.surface.Regenerate(a.seed)
		a.regenerations++
		a.logger.Debug("texture regenerated",
			zap.Int("erasedPixels", kept),
			zap.Int("regenerations", a.regenerations))
	}

	phase := 2 * math.Pi * float64(a.step%a.periodTicks) / float64(a.periodTicks)
	a.surface.ApplyHighlight(a.amplitude * math.Sin(phase))
}
