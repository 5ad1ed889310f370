//go:build mobile

// Package mobile 提供 ebitenmobile 绑定入口
//
// 此包用于构建 Android (.aar) 和 iOS (.xcframework) 包。
// 使用 ebitenmobile 工具构建时会自动调用 init() 函数。
//
// 此文件仅在使用 -tags mobile 构建时编译：
//
//	# Android
//	ebitenmobile bind -target android -tags mobile -androidapi 23 -javapkg com.decker.scratchcard -o build/android/scratchcard.aar ./mobile
//
//	# iOS (仅 macOS)
//	ebitenmobile bind -target ios -tags mobile -o build/ios/Scratchcard.xcframework ./mobile
//
// 移动端没有 .env 文件，账本地址通过宿主应用注入的环境变量配置。
package mobile

import (
	"github.com/hajimehoshi/ebiten/v2/mobile"
	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/app"
	"github.com/decker502/scratchcard/pkg/utils"
)

func init() {
	logger, err := utils.NewConsoleLogger(false)
	if err != nil {
		logger = zap.NewNop()
	}

	wallet, err := app.NewApp(app.Config{Logger: logger})
	if err != nil {
		logger.Fatal("failed to create wallet", zap.Error(err))
	}
	mobile.SetGame(wallet)
}
