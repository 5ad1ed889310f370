package systems

import (
	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/components"
	"github.com/decker502/scratchcard/pkg/ecs"
	"github.com/decker502/scratchcard/pkg/entities"
)

// ScratchLayoutSystem 让坐标映射跟随卡片的屏幕区域
//
// 每帧比较卡片区域与映射器缓存的区域：
//   - 还没有擦除表面且区域首次有面积：创建表面
//   - 区域变化：按现有缓冲区尺寸重新推导缩放比例（缓冲区分辨率不变）
type ScratchLayoutSystem struct {
	entityManager *ecs.EntityManager
	deps          *entities.ScratchCardDeps
	logger        *zap.Logger
}

// NewScratchLayoutSystem 创建布局系统
func NewScratchLayoutSystem(em *ecs.EntityManager, deps *entities.ScratchCardDeps, logger *zap.Logger) *ScratchLayoutSystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScratchLayoutSystem{
		entityManager: em,
		deps:          deps,
		logger:        logger.Named("ScratchLayoutSystem"),
	}
}

// Update 同步所有卡片的布局
func (s *ScratchLayoutSystem) Update(deltaTime float64) {
	for _, id := range ecs.GetEntitiesWith1[*components.ScratchCardComponent](s.entityManager) {
		card, _ := ecs.GetComponent[*components.ScratchCardComponent](s.entityManager, id)

		surf, ok := ecs.GetComponent[*components.ScratchSurfaceComponent](s.entityManager, id)
		if !ok {
			if err := entities.AttachScratchSurface(s.entityManager, id, s.deps); err != nil {
				s.logger.Warn("unable to create scratch surface", zap.Uint64("entity", uint64(id)), zap.Error(err))
			}
			continue
		}

		if surf.Mapper.Bounds() == card.Bounds {
			continue
		}
		surf.Mapper.Fit(card.Bounds, surf.Surface.Width(), surf.Surface.Height())
		sx, sy := surf.Mapper.Scale()
		s.logger.Debug("mapping refreshed",
			zap.Uint64("entity", uint64(id)),
			zap.Float64("scaleX", sx),
			zap.Float64("scaleY", sy))
	}
}
