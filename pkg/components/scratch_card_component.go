package components

import (
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/decker502/scratchcard/pkg/reward"
	"github.com/decker502/scratchcard/pkg/scheduler"
	"github.com/decker502/scratchcard/pkg/scratch"
)

// ScratchCardComponent 刮刮卡实体的卡片数据
//
// 每个刮刮卡实体必有此组件；擦除表面只在卡片处于 Pending 且布局尺寸非零时存在。
type ScratchCardComponent struct {
	// Machine 卡片的揭晓/入账状态机
	Machine *reward.StateMachine

	// Bounds 卡片在屏幕上的区域（逻辑像素），由场景布局写入
	Bounds scratch.Rect

	// Hovered 指针是否悬停在卡片上（R 键手动揭晓的目标）
	Hovered bool

	// Seed 纹理种子
	Seed int64
}

// ScratchSurfaceComponent 擦除表面及其输入、进度、动画状态
type ScratchSurfaceComponent struct {
	Surface   *scratch.ErasureSurface
	Mapper    *scratch.CoordinateMapper
	Estimator *scratch.ProgressEstimator
	Animator  *scratch.AmbientAnimator
	Session   *scratch.InputSession

	// Progress 最近一次采样的擦除进度（单调不减）
	Progress scratch.ScratchProgress

	// SampleTask 等待中的采样任务（0 表示没有）
	SampleTask scheduler.TaskID
	// LastSampleTick 上一次采样所在的帧
	LastSampleTick uint64
	// FinalSamplePending 手势结束后的强制采样尚未执行
	FinalSamplePending bool
}

// ScratchTextureComponent 擦除表面的 GPU 纹理缓存
type ScratchTextureComponent struct {
	Image *ebiten.Image

	// Version 已上传到纹理的表面版本
	Version uint64
}
