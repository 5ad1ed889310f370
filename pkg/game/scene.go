package game

import (
	"github.com/hajimehoshi/ebiten/v2"
)

// Scene represents one screen of the wallet app (e.g. the card grid).
// Each scene has its own update and rendering logic.
type Scene interface {
	// Update advances the scene by one tick.
	// deltaTime is the time elapsed since the last update in seconds.
	Update(deltaTime float64)

	// Draw renders the scene to the provided screen.
	Draw(screen *ebiten.Image)
}

// Disposable 是一个可选接口，场景被替换或程序退出时调用 Dispose
//
// 实现此接口的场景必须释放擦除缓冲区、取消调度任务，
// 并让在途网络请求的结果被丢弃。
type Disposable interface {
	Dispose()
}
