package scenes

import (
	"context"
	"fmt"
	"image/color"
	"time"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/components"
	"github.com/decker502/scratchcard/pkg/config"
	"github.com/decker502/scratchcard/pkg/ecs"
	"github.com/decker502/scratchcard/pkg/entities"
	"github.com/decker502/scratchcard/pkg/game"
	"github.com/decker502/scratchcard/pkg/reward"
	"github.com/decker502/scratchcard/pkg/scheduler"
	"github.com/decker502/scratchcard/pkg/scratch"
	"github.com/decker502/scratchcard/pkg/systems"
	"github.com/decker502/scratchcard/pkg/utils"
)

// 卡片网格布局常量（逻辑像素）
const (
	walletCardWidth  = 240.0
	walletCardHeight = 150.0
	walletCardGap    = 24.0
	walletMargin     = 32.0
	walletHeaderH    = 56.0

	toastLifetime  = 3 * time.Second
	toastFade      = 250 * time.Millisecond
	maxToasts      = 4
	listingTimeout = 10 * time.Second
)

var (
	walletBackground = color.RGBA{R: 62, G: 39, B: 35, A: 255}
	toastInfoColor   = color.RGBA{R: 56, G: 142, B: 60, A: 230}
	toastWarnColor   = color.RGBA{R: 245, G: 124, B: 0, A: 230}
	toastErrorColor  = color.RGBA{R: 198, G: 40, B: 40, A: 230}
)

// CardLister 提供钱包中的卡片列表（通常是账本客户端）
type CardLister interface {
	ListCards(ctx context.Context) ([]reward.Card, error)
}

// PointerSource 每帧的指针输入
type PointerSource interface {
	Poll() []utils.PointerEvent
	Cursor() (float64, float64)
}

// WalletSceneConfig 钱包场景的依赖
type WalletSceneConfig struct {
	Scheduler     *scheduler.Scheduler
	Reconciler    *reward.Reconciler
	Lister        CardLister // 可为 nil（只显示缓存）
	Cache         *game.CardCache
	Config        *config.ScratchConfig
	PixelRatio    float64
	ReducedMotion bool
	Input         PointerSource // 为 nil 时使用 utils.PointerTracker
	Logger        *zap.Logger
}

type toast struct {
	message  string
	severity reward.Severity
	shown    uint64
	expires  uint64
}

// WalletScene 钱包场景：刮刮卡网格
//
// 交互：
//   - 在 Pending 卡片上拖动擦除覆盖层，超过阈值后自动揭晓
//   - 点击 Revealed 卡片领取奖励（入账）
//   - R 键手动揭晓悬停的卡片，F5 重新拉取卡片列表
type WalletScene struct {
	entityManager *ecs.EntityManager
	sched         *scheduler.Scheduler
	deps          *entities.ScratchCardDeps
	lister        CardLister
	cache         *game.CardCache
	input         PointerSource
	logger        *zap.Logger

	layoutSystem   *systems.ScratchLayoutSystem
	progressSystem *systems.ScratchProgressSystem
	inputSystem    *systems.ScratchInputSystem
	renderSystem   *systems.ScratchRenderSystem

	cards  map[reward.CardID]ecs.EntityID
	order  []reward.CardID
	toasts []toast

	width, height int
	loading       bool
	disposed      bool
}

// NewWalletScene 创建钱包场景，先展示缓存中的卡片，再异步拉取账本列表
//
// 参数：
//   - cfg: 场景依赖，Scheduler 和 Reconciler 必填
//
// 返回：
//   - *WalletScene: 场景实例
//   - error: 依赖缺失时返回错误
func NewWalletScene(cfg WalletSceneConfig) (*WalletScene, error) {
	if cfg.Scheduler == nil || cfg.Reconciler == nil {
		return nil, fmt.Errorf("wallet scene: scheduler and reconciler are required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Config == nil {
		cfg.Config = config.DefaultScratchConfig()
	}
	if cfg.Cache == nil {
		cfg.Cache = game.NewCardCache(nil, cfg.Logger)
	}
	if cfg.Input == nil {
		cfg.Input = utils.NewPointerTracker()
	}

	s := &WalletScene{
		entityManager: ecs.NewEntityManager(),
		sched:         cfg.Scheduler,
		lister:        cfg.Lister,
		cache:         cfg.Cache,
		input:         cfg.Input,
		logger:        cfg.Logger.Named("WalletScene"),
		cards:         make(map[reward.CardID]ecs.EntityID),
		width:         config.WindowWidth,
		height:        config.WindowHeight,
	}

	s.deps = &entities.ScratchCardDeps{
		Reconciler:    cfg.Reconciler,
		Scheduler:     cfg.Scheduler,
		Store:         cfg.Cache,
		Notifier:      reward.MultiNotifier(reward.NotifierFunc(s.pushToast), reward.NewLogNotifier(cfg.Logger)),
		Config:        cfg.Config,
		PixelRatio:    cfg.PixelRatio,
		Logger:        cfg.Logger,
		ReducedMotion: cfg.ReducedMotion,
	}

	s.layoutSystem = systems.NewScratchLayoutSystem(s.entityManager, s.deps, cfg.Logger)
	s.progressSystem = systems.NewScratchProgressSystem(s.entityManager, cfg.Scheduler, cfg.Config.SampleEveryTicks, cfg.Logger)
	s.inputSystem = systems.NewScratchInputSystem(s.entityManager, s.progressSystem, cfg.Logger)
	s.renderSystem = systems.NewScratchRenderSystem(s.entityManager)

	s.syncCards(cfg.Cache.All())
	s.Refresh()
	return s, nil
}

// SetViewport 更新场景的逻辑尺寸（窗口缩放或旋转时调用）
func (s *WalletScene) SetViewport(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s.width, s.height = width, height
}

// Refresh 异步拉取账本中的卡片列表
//
// 列表只用于补充新卡片和推进缓存；已经存在的卡片由各自的状态机负责。
func (s *WalletScene) Refresh() {
	if s.lister == nil || s.loading || s.disposed {
		return
	}
	s.loading = true
	lister := s.lister
	s.sched.Async(func() func() {
		ctx, cancel := context.WithTimeout(context.Background(), listingTimeout)
		defer cancel()
		cards, err := lister.ListCards(ctx)
		return func() {
			s.loading = false
			if s.disposed {
				return
			}
			if err != nil {
				s.logger.Warn("failed to list cards", zap.Error(err))
				s.pushToast(reward.Notification{Severity: reward.SeverityWarning, Message: "Couldn't refresh your cards.", Err: err})
				return
			}
			s.syncCards(s.cache.Merge(cards))
		}
	})
}

// syncCards 为尚未显示的卡片创建实体
func (s *WalletScene) syncCards(cards []reward.Card) {
	for _, card := range cards {
		if _, ok := s.cards[card.ID]; ok {
			continue
		}
		// 区域为零，表面在第一次布局时创建
		id, err := entities.NewScratchCardEntity(s.entityManager, card, scratch.Rect{}, s.deps)
		if err != nil {
			s.logger.Error("failed to create card", zap.Int64("cardId", int64(card.ID)), zap.Error(err))
			continue
		}
		s.cards[card.ID] = id
		s.order = append(s.order, card.ID)
	}
}

// Update 更新场景
func (s *WalletScene) Update(deltaTime float64) {
	if s.disposed {
		return
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyF5) {
		s.Refresh()
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		s.RevealHovered()
	}
	events := s.input.Poll()
	x, y := s.input.Cursor()
	s.step(deltaTime, events, x, y)
}

// step 处理一帧：布局、领取、擦除、悬停、toast 过期
func (s *WalletScene) step(deltaTime float64, events []utils.PointerEvent, cursorX, cursorY float64) {
	s.layoutCards()
	s.layoutSystem.Update(deltaTime)

	for _, ev := range events {
		if ev.Phase == utils.PointerDown {
			s.claimAt(ev.X, ev.Y)
		}
	}
	s.inputSystem.HandleEvents(events)
	s.inputSystem.UpdateHover(cursorX, cursorY)

	s.expireToasts()
	s.entityManager.RemoveMarkedEntities()
}

// layoutCards 按视口宽度把卡片排成网格
func (s *WalletScene) layoutCards() {
	usable := float64(s.width) - 2*walletMargin
	columns := int((usable + walletCardGap) / (walletCardWidth + walletCardGap))
	if columns < 1 {
		columns = 1
	}
	cardW := walletCardWidth
	if usable < cardW {
		cardW = usable
	}
	if cardW <= 0 {
		return
	}
	cardH := walletCardHeight * cardW / walletCardWidth

	for i, cardID := range s.order {
		id := s.cards[cardID]
		card, ok := ecs.GetComponent[*components.ScratchCardComponent](s.entityManager, id)
		if !ok {
			continue
		}
		col, row := i%columns, i/columns
		card.Bounds = scratch.Rect{
			X:      walletMargin + float64(col)*(cardW+walletCardGap),
			Y:      walletHeaderH + float64(row)*(cardH+walletCardGap),
			Width:  cardW,
			Height: cardH,
		}
	}
}

// claimAt 点击已揭晓的卡片时发起入账
func (s *WalletScene) claimAt(x, y float64) {
	for _, id := range ecs.GetEntitiesWith1[*components.ScratchCardComponent](s.entityManager) {
		card, _ := ecs.GetComponent[*components.ScratchCardComponent](s.entityManager, id)
		if !card.Bounds.Contains(x, y) || card.Machine.State() != reward.StateRevealed {
			continue
		}
		card.Machine.Credit(func(o reward.Outcome) {
			if o.Err == nil && o.State == reward.StateCredited {
				s.pushToast(reward.Notification{
					CardID:  card.Machine.Card().ID,
					Message: fmt.Sprintf("$%.2f added to your wallet.", o.Amount),
				})
			}
		})
		return
	}
}

// RevealHovered 手动揭晓悬停的卡片（自动揭晓被停止后仍然可用）
func (s *WalletScene) RevealHovered() {
	id, ok := s.inputSystem.HoveredCard()
	if !ok {
		return
	}
	card, ok := ecs.GetComponent[*components.ScratchCardComponent](s.entityManager, id)
	if !ok || card.Machine.State() != reward.StatePending {
		return
	}
	card.Machine.Reveal(func(o reward.Outcome) {
		if o.Err == nil && o.Known && o.State == reward.StateRevealed {
			s.pushToast(reward.Notification{
				CardID:  card.Machine.Card().ID,
				Message: fmt.Sprintf("You won $%.2f!", o.Amount),
			})
		}
	})
}

func (s *WalletScene) pushToast(n reward.Notification) {
	if s.disposed {
		return
	}
	now := s.sched.Now()
	s.toasts = append(s.toasts, toast{
		message:  n.Message,
		severity: n.Severity,
		shown:    now,
		expires:  now + uint64(s.sched.TicksFor(toastLifetime)),
	})
	if len(s.toasts) > maxToasts {
		s.toasts = s.toasts[len(s.toasts)-maxToasts:]
	}
}

func (s *WalletScene) expireToasts() {
	now := s.sched.Now()
	kept := s.toasts[:0]
	for _, t := range s.toasts {
		if t.expires > now {
			kept = append(kept, t)
		}
	}
	s.toasts = kept
}

// Draw 绘制场景
func (s *WalletScene) Draw(screen *ebiten.Image) {
	screen.Fill(walletBackground)

	title := "Scratch & Win"
	if s.loading {
		title += "  (refreshing...)"
	}
	ebitenutil.DebugPrintAt(screen, title, int(walletMargin), 20)
	if len(s.order) == 0 && !s.loading {
		ebitenutil.DebugPrintAt(screen, "No cards yet. Press F5 to refresh.", int(walletMargin), int(walletHeaderH))
	}

	s.renderSystem.Draw(screen)
	s.drawToasts(screen)
}

func (s *WalletScene) drawToasts(screen *ebiten.Image) {
	const h = 28.0
	w := float64(s.width) - 2*walletMargin
	now := s.sched.Now()
	fade := float64(s.sched.TicksFor(toastFade))
	for i, t := range s.toasts {
		alpha := utils.FadeInOut(float64(now-t.shown), float64(t.expires-t.shown), fade)
		if alpha <= 0 {
			continue
		}
		// 淡入时从下方滑入
		y := float64(s.height) - walletMargin - float64(len(s.toasts)-i)*(h+8)
		y += utils.Lerp(h, 0, alpha)

		fill := toastInfoColor
		switch t.severity {
		case reward.SeverityWarning:
			fill = toastWarnColor
		case reward.SeverityError:
			fill = toastErrorColor
		}
		fill.A = uint8(float64(fill.A) * alpha)
		vector.DrawFilledRect(screen, float32(walletMargin), float32(y), float32(w), h, fill, true)
		ebitenutil.DebugPrintAt(screen, t.message, int(walletMargin)+10, int(y)+6)
	}
}

// Dispose 释放所有卡片的擦除表面和调度任务；在途请求的结果会被丢弃
func (s *WalletScene) Dispose() {
	if s.disposed {
		return
	}
	for _, cardID := range s.order {
		entities.DisposeScratchCard(s.entityManager, s.cards[cardID], s.sched)
	}
	s.entityManager.RemoveMarkedEntities()
	s.disposed = true
	s.toasts = nil
	if err := s.cache.Flush(); err != nil {
		s.logger.Warn("failed to flush card cache", zap.Error(err))
	}
	s.logger.Debug("disposed", zap.Int("cards", len(s.order)))
}
