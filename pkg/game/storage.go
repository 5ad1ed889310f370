package game

import (
	"github.com/quasilyte/gdata/v2"
	"go.uber.org/zap"

	"github.com/decker502/scratchcard/pkg/utils"
)

// DefaultAppName gdata 存储目录名
const DefaultAppName = "scratchcard_wallet"

// OpenStorage 打开跨平台本地存储
//
// 存储不可用不是致命错误：返回 nil，卡片缓存和设置降级为仅内存模式。
//
// 参数：
//   - appName: 存储目录名，为空时使用 DefaultAppName
//   - logger: 日志记录器，可为 nil
//
// 返回：
//   - *gdata.Manager: 存储管理器，失败时为 nil
func OpenStorage(appName string, logger *zap.Logger) *gdata.Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if appName == "" {
		appName = DefaultAppName
	}
	logger = logger.Named("Storage")

	if err := utils.EnsureStorageDir(); err != nil {
		logger.Warn("storage directory unavailable, running in memory", zap.Error(err))
		return nil
	}
	m, err := gdata.Open(gdata.Config{AppName: appName})
	if err != nil {
		logger.Warn("failed to open storage, running in memory", zap.Error(err))
		return nil
	}
	logger.Debug("storage opened", zap.String("app", appName), zap.String("path", utils.GetStoragePath()))
	return m
}
