// Package app 提供钱包应用的核心包装器
//
// 该包将初始化逻辑从 main 包提取出来，使其可以被桌面端和移动端共用。
// 桌面端通过 main.go 调用 NewApp()，移动端通过 mobile/mobile.go 调用。
package app

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/config"
	"github.com/decker502/scratchcard/pkg/game"
	"github.com/decker502/scratchcard/pkg/ledger"
	"github.com/decker502/scratchcard/pkg/reward"
	"github.com/decker502/scratchcard/pkg/scenes"
	"github.com/decker502/scratchcard/pkg/scheduler"
	"github.com/decker502/scratchcard/pkg/utils"
)

// Config 定义应用启动配置
type Config struct {
	// Verbose 启用 Debug 级别日志
	Verbose bool
	// ScratchConfigPath 刮刮卡参数 YAML 文件，为空时使用默认值
	ScratchConfigPath string
	// EnvFile 启动前加载的 .env 文件，为空时不加载
	EnvFile string
	// Logger 为 nil 时按 Verbose 创建控制台日志记录器
	Logger *zap.Logger
}

// App 是钱包应用的核心包装器，实现 ebiten.Game 接口
//
// 每帧先推进调度器（应用网络结果、执行到期任务），再更新当前场景。
type App struct {
	sched        *scheduler.Scheduler
	sceneManager *game.SceneManager
	settings     *game.SettingsManager
	wallet       *scenes.WalletScene
	logger       *zap.Logger

	deltaTime                float64
	width, height            int
	pendingWindowSizeReset   bool // 延迟设置窗口大小标志
	windowSizeResetCountdown int  // 延迟帧数
}

// NewApp 创建并初始化钱包应用
func NewApp(cfg Config) (*App, error) {
	logger := cfg.Logger
	if logger == nil {
		var err error
		if logger, err = utils.NewConsoleLogger(cfg.Verbose); err != nil {
			return nil, fmt.Errorf("日志初始化失败: %w", err)
		}
	}
	logger = logger.Named("App")

	if cfg.EnvFile != "" {
		if err := config.LoadEnvFiles(cfg.EnvFile); err != nil {
			return nil, fmt.Errorf(".env 加载失败: %w", err)
		}
	}

	scratchCfg := config.DefaultScratchConfig()
	if cfg.ScratchConfigPath != "" {
		loaded, err := config.LoadScratchConfig(cfg.ScratchConfigPath)
		if err != nil {
			return nil, fmt.Errorf("刮刮卡配置加载失败: %w", err)
		}
		scratchCfg = loaded
	}
	ledgerCfg, err := config.LoadLedgerConfig()
	if err != nil {
		return nil, fmt.Errorf("账本配置加载失败: %w", err)
	}
	logger.Info("configuration loaded",
		zap.String("ledger", ledgerCfg.BaseURL),
		zap.Float64("revealThreshold", scratchCfg.RevealThreshold),
		zap.Int("tps", scratchCfg.TPS))

	// 本地存储：卡片缓存与设置
	storage := game.OpenStorage(game.DefaultAppName, logger)
	settings := game.NewSettingsManager(storage, logger)
	cache := game.NewCardCache(storage, logger)

	sched := scheduler.New(scratchCfg.TPS, logger)
	client := ledger.New(ledgerCfg, logger)
	reconciler := reward.NewReconciler(client, ledgerCfg.Timeout, logger)

	// 屏幕使用逻辑分辨率，擦除缓冲区按 1:1 创建
	wallet, err := scenes.NewWalletScene(scenes.WalletSceneConfig{
		Scheduler:     sched,
		Reconciler:    reconciler,
		Lister:        client,
		Cache:         cache,
		Config:        scratchCfg,
		PixelRatio:    1,
		ReducedMotion: settings.GetSettings().ReducedMotion,
		Logger:        logger,
	})
	if err != nil {
		return nil, fmt.Errorf("钱包场景创建失败: %w", err)
	}

	sceneManager := game.NewSceneManager(logger)
	sceneManager.SwitchTo(wallet)

	if settings.GetSettings().Fullscreen {
		ebiten.SetFullscreen(true)
	}

	return &App{
		sched:        sched,
		sceneManager: sceneManager,
		settings:     settings,
		wallet:       wallet,
		logger:       logger,
		deltaTime:    1.0 / float64(sched.TPS()),
		width:        config.WindowWidth,
		height:       config.WindowHeight,
	}, nil
}

// Update 更新游戏逻辑
// 每个 tick 调用一次（通常每秒 60 次）
func (a *App) Update() error {
	// 延迟设置窗口大小（退出全屏后需要等待几帧才能正确设置）
	if a.pendingWindowSizeReset {
		a.windowSizeResetCountdown--
		if a.windowSizeResetCountdown <= 0 {
			ebiten.SetWindowSize(config.WindowWidth, config.WindowHeight)
			a.pendingWindowSizeReset = false
		}
	}

	// F11 切换全屏（桌面端）
	if !utils.IsMobile() && inpututil.IsKeyJustPressed(ebiten.KeyF11) {
		a.toggleFullscreen()
	}

	a.sched.Tick()
	a.sceneManager.Update(a.deltaTime)
	return nil
}

func (a *App) toggleFullscreen() {
	fullscreen := !ebiten.IsFullscreen()
	ebiten.SetFullscreen(fullscreen)
	if !fullscreen {
		if ebiten.IsWindowMaximized() || ebiten.IsWindowMinimized() {
			ebiten.RestoreWindow()
		}
		a.pendingWindowSizeReset = true
		a.windowSizeResetCountdown = 3
	}
	a.settings.SetFullscreen(fullscreen)
	if err := a.settings.Save(); err != nil {
		a.logger.Warn("failed to save settings", zap.Error(err))
	}
}

// Draw 绘制画面
// 每帧调用一次
func (a *App) Draw(screen *ebiten.Image) {
	a.sceneManager.Draw(screen)
}

// DrawFinalScreen 实现 FinalScreenDrawer 接口
// 用于控制全屏时的缩放和 letterbox 颜色
func (a *App) DrawFinalScreen(screen ebiten.FinalScreen, offscreen *ebiten.Image, geoM ebiten.GeoM) {
	screen.Fill(color.Black)
	op := &ebiten.DrawImageOptions{}
	op.GeoM = geoM
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(offscreen, op)
}

// Layout 返回逻辑屏幕尺寸
//
// 逻辑尺寸跟随窗口大小，卡片网格随之重新排布；擦除表面的坐标映射
// 由布局系统在下一帧刷新。
func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) {
	w := max(outsideWidth, config.MinWindowWidth)
	h := max(outsideHeight, config.MinWindowHeight)
	if w != a.width || h != a.height {
		a.width, a.height = w, h
		a.wallet.SetViewport(w, h)
		a.logger.Debug("viewport changed", zap.Int("width", w), zap.Int("height", h))
	}
	return w, h
}

// Close 销毁场景并停止调度器（程序退出时调用）
//
// 在途的网络请求允许完成，但结果被丢弃。
func (a *App) Close() {
	a.sceneManager.Close()
	a.sched.Close()
	_ = a.logger.Sync()
}
