package reward

import "sync/atomic"

// RevealGuard 单张卡片的网络请求互斥标志
//
// 在派发异步请求之前同步地测试并设置，两个在同一调度窗口内触发的揭晓
// （例如节流的手势中采样和手势结束后的采样）只有一个能拿到。
// 每个卡片组件持有自己的实例。
type RevealGuard struct {
	held atomic.Bool
}

// TryAcquire 测试并设置标志，已被占用时返回 false
func (g *RevealGuard) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release 清除标志
func (g *RevealGuard) Release() {
	g.held.Store(false)
}

// Held 检查标志是否被占用
func (g *RevealGuard) Held() bool {
	return g.held.Load()
}
