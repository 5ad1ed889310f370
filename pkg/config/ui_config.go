package config

// 窗口相关的常量配置
//
// 逻辑尺寸独立于实际窗口大小；桌面端窗口可自由缩放，
// 场景在 Layout 中收到新的逻辑尺寸后重新排布卡片网格。
const (
	// WindowWidth 默认逻辑宽度
	WindowWidth = 800
	// WindowHeight 默认逻辑高度
	WindowHeight = 600
	// WindowTitle 窗口标题
	WindowTitle = "Scratch & Win"

	// MinWindowWidth 最小窗口宽度（至少容纳一张卡片）
	MinWindowWidth = 320
	// MinWindowHeight 最小窗口高度
	MinWindowHeight = 320
)
