package systems

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"

	"github.com/decker502/scratchcard/pkg/components"
	"github.com/decker502/scratchcard/pkg/ecs"
	"github.com/decker502/scratchcard/pkg/reward"
)

// 卡片视觉常量
var (
	cardPendingColor  = color.RGBA{R: 250, G: 243, B: 224, A: 255}
	cardRevealedColor = color.RGBA{R: 255, G: 236, B: 179, A: 255}
	cardCreditedColor = color.RGBA{R: 200, G: 230, B: 201, A: 255}
	cardBorderColor   = color.RGBA{R: 121, G: 85, B: 72, A: 255}
	cardHoverColor    = color.RGBA{R: 255, G: 152, B: 0, A: 255}
)

// ScratchRenderSystem 绘制刮刮卡
//
// 擦除表面只在 Version 变化时上传到 GPU 纹理。
type ScratchRenderSystem struct {
	entityManager *ecs.EntityManager
}

// NewScratchRenderSystem 创建渲染系统
func NewScratchRenderSystem(em *ecs.EntityManager) *ScratchRenderSystem {
	return &ScratchRenderSystem{entityManager: em}
}

// Draw 绘制所有卡片
func (s *ScratchRenderSystem) Draw(screen *ebiten.Image) {
	for _, id := range ecs.GetEntitiesWith1[*components.ScratchCardComponent](s.entityManager) {
		card, _ := ecs.GetComponent[*components.ScratchCardComponent](s.entityManager, id)
		if card.Bounds.Empty() {
			continue
		}
		s.drawCard(screen, card)

		surf, ok := ecs.GetComponent[*components.ScratchSurfaceComponent](s.entityManager, id)
		if !ok || surf.Surface.Released() {
			continue
		}
		tex := s.texture(id, surf)
		op := &ebiten.DrawImageOptions{}
		op.GeoM.Scale(card.Bounds.Width/float64(surf.Surface.Width()), card.Bounds.Height/float64(surf.Surface.Height()))
		op.GeoM.Translate(card.Bounds.X, card.Bounds.Y)
		op.Filter = ebiten.FilterLinear
		screen.DrawImage(tex.Image, op)

		if surf.Progress.Fraction > 0 {
			label := fmt.Sprintf("%.1f%%", surf.Progress.Fraction)
			ebitenutil.DebugPrintAt(screen, label, int(card.Bounds.X)+4, int(card.Bounds.Y+card.Bounds.Height)+4)
		}
	}
}

func (s *ScratchRenderSystem) drawCard(screen *ebiten.Image, card *components.ScratchCardComponent) {
	b := card.Bounds
	state := card.Machine.State()

	fill := cardPendingColor
	switch state {
	case reward.StateRevealed:
		fill = cardRevealedColor
	case reward.StateCredited:
		fill = cardCreditedColor
	}
	vector.DrawFilledRect(screen, float32(b.X), float32(b.Y), float32(b.Width), float32(b.Height), fill, true)

	border := cardBorderColor
	if card.Hovered {
		border = cardHoverColor
	}
	vector.StrokeRect(screen, float32(b.X), float32(b.Y), float32(b.Width), float32(b.Height), 2, border, true)

	// 金额在 Pending 时不可见，且在揭晓前被擦除表面覆盖
	var lines []string
	if amount, ok := card.Machine.Card().VisibleAmount(); ok {
		lines = append(lines, fmt.Sprintf("$%.2f", amount))
	} else if state == reward.StateRevealed || state == reward.StateCredited {
		lines = append(lines, "$ --")
	}
	switch state {
	case reward.StateRevealInFlight:
		lines = append(lines, "revealing...")
	case reward.StateRevealed:
		if card.Machine.InFlight() {
			lines = append(lines, "claiming...")
		} else {
			lines = append(lines, "tap to claim")
		}
	case reward.StateCredited:
		lines = append(lines, "credited")
	}
	for i, line := range lines {
		ebitenutil.DebugPrintAt(screen, line, int(b.X)+10, int(b.Y+b.Height/2)-10+i*16)
	}
}

func (s *ScratchRenderSystem) texture(id ecs.EntityID, surf *components.ScratchSurfaceComponent) *components.ScratchTextureComponent {
	tex, ok := ecs.GetComponent[*components.ScratchTextureComponent](s.entityManager, id)
	if !ok {
		tex = &components.ScratchTextureComponent{
			Image: ebiten.NewImage(surf.Surface.Width(), surf.Surface.Height()),
		}
		ecs.AddComponent(s.entityManager, id, tex)
	}
	if v := surf.Surface.Version(); !ok || tex.Version != v {
		// 缓冲区是预乘 RGBA，与 ebiten 的像素格式一致
		tex.Image.WritePixels(surf.Surface.Image().Pix)
		tex.Version = v
	}
	return tex
}
