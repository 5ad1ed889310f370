// Package scenes 包含钱包应用的各个场景
package scenes

import (
	"github.com/decker502/scratchcard/pkg/game"
)

// Scene is a type alias for game.Scene so callers only need this package.
type Scene = game.Scene

var (
	_ Scene           = (*WalletScene)(nil)
	_ game.Disposable = (*WalletScene)(nil)
)
