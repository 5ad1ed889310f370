package systems

import (
	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/components"
	"github.com/decker502/scratchcard/pkg/ecs"
	"github.com/decker502/scratchcard/pkg/utils"
)

// ScratchInputSystem 把指针事件转换为擦除笔画
//
// 笔画在事件处理中同步绘制；进度采样交给 ScratchProgressSystem 延迟执行。
// 一次手势只属于按下时命中的那张卡片。
type ScratchInputSystem struct {
	entityManager *ecs.EntityManager
	progress      *ScratchProgressSystem
	logger        *zap.Logger
}

// NewScratchInputSystem 创建输入系统
func NewScratchInputSystem(em *ecs.EntityManager, progress *ScratchProgressSystem, logger *zap.Logger) *ScratchInputSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScratchInputSystem{
		entityManager: em,
		progress:      progress,
		logger:        logger.Named("ScratchInputSystem"),
	}
}

// HandleEvents 按顺序处理本帧的指针事件
func (s *ScratchInputSystem) HandleEvents(events []utils.PointerEvent) {
	for _, ev := range events {
		switch ev.Phase {
		case utils.PointerDown:
			s.pointerDown(ev)
		case utils.PointerMove:
			s.pointerMove(ev)
		case utils.PointerUp:
			s.pointerUp(ev)
		}
	}
}

// UpdateHover 根据指针位置更新每张卡片的悬停标记
func (s *ScratchInputSystem) UpdateHover(x, y float64) {
	for _, id := range ecs.GetEntitiesWith1[*components.ScratchCardComponent](s.entityManager) {
		card, _ := ecs.GetComponent[*components.ScratchCardComponent](s.entityManager, id)
		card.Hovered = card.Bounds.Contains(x, y)
	}
}

// HoveredCard 返回当前悬停的卡片实体
func (s *ScratchInputSystem) HoveredCard() (ecs.EntityID, bool) {
	for _, id := range ecs.GetEntitiesWith1[*components.ScratchCardComponent](s.entityManager) {
		card, _ := ecs.GetComponent[*components.ScratchCardComponent](s.entityManager, id)
		if card.Hovered {
			return id, true
		}
	}
	return 0, false
}

func (s *ScratchInputSystem) pointerDown(ev utils.PointerEvent) {
	for _, id := range ecs.GetEntitiesWith2[*components.ScratchCardComponent, *components.ScratchSurfaceComponent](s.entityManager) {
		surf, _ := ecs.GetComponent[*components.ScratchSurfaceComponent](s.entityManager, id)
		if surf.Surface.Released() {
			continue
		}
		p, ok := surf.Mapper.Map(ev.X, ev.Y)
		if !ok {
			continue
		}
		if !surf.Session.Begin(ev.ID, p) {
			continue
		}
		// 动画必须在第一笔之前完全停止
		surf.Animator.Stop()
		surf.Surface.Stroke(p, nil)
		s.progress.RequestSample(id, false)
		s.logger.Debug("gesture started", zap.Uint64("entity", uint64(id)), zap.Int("pointer", ev.ID))
		return
	}
}

func (s *ScratchInputSystem) pointerMove(ev utils.PointerEvent) {
	for _, id := range ecs.GetEntitiesWith1[*components.ScratchSurfaceComponent](s.entityManager) {
		surf, _ := ecs.GetComponent[*components.ScratchSurfaceComponent](s.entityManager, id)
		if !surf.Session.Active || surf.Session.PointerID != ev.ID {
			continue
		}
		p, ok := surf.Mapper.Map(ev.X, ev.Y)
		if !ok {
			surf.Session.Lift(ev.ID)
			continue
		}
		prev, _ := surf.Session.Move(ev.ID, p)
		surf.Surface.Stroke(p, prev)
		s.progress.RequestSample(id, false)
	}
}

func (s *ScratchInputSystem) pointerUp(ev utils.PointerEvent) {
	for _, id := range ecs.GetEntitiesWith1[*components.ScratchSurfaceComponent](s.entityManager) {
		surf, _ := ecs.GetComponent[*components.ScratchSurfaceComponent](s.entityManager, id)
		if !surf.Session.End(ev.ID) {
			continue
		}
		s.progress.RequestSample(id, true)
		surf.Animator.ResumeAfterCooldown()
		s.logger.Debug("gesture ended", zap.Uint64("entity", uint64(id)), zap.Int("pointer", ev.ID))
	}
}
