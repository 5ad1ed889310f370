// Package scratch 实现刮刮卡的核心绘制逻辑（不依赖 ebiten）
//
// # 坐标系统概述
//
//   - **客户端坐标**：指针/触摸事件报告的屏幕坐标（逻辑像素）
//   - **局部坐标**：相对于卡片表面左上角的逻辑像素
//   - **缓冲区坐标**：擦除缓冲区中的物理像素（局部坐标 × 像素比）
//
// # 核心转换公式
//
//	local  = client - bounds.origin
//	buffer = local * pixelRatio
//
// 局部坐标超出 [0, size) 时丢弃事件，避免拖出卡片时产生绘制伪影。
package scratch

import "math"

// Point 缓冲区坐标系中的点
type Point struct {
	X, Y float64
}

// Rect 屏幕坐标系中的矩形（逻辑像素）
type Rect struct {
	X, Y          float64
	Width, Height float64
}

// Empty 检查矩形是否没有面积
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains 检查客户端坐标是否落在矩形内（右/下边界开区间）
func (r Rect) Contains(x, y float64) bool {
	lx, ly := x-r.X, y-r.Y
	return lx >= 0 && ly >= 0 && lx < r.Width && ly < r.Height
}

// MapPoint 将客户端坐标映射到缓冲区坐标
//
// 参数：
//   - clientX, clientY: 事件的客户端坐标
//   - bounds: 卡片表面在屏幕上的区域
//   - pixelRatio: 显示到缓冲区的像素比（<= 0 时按 1 处理）
//
// 返回：
//   - Point: 缓冲区坐标
//   - bool: 局部坐标在表面范围内时为 true
func MapPoint(clientX, clientY float64, bounds Rect, pixelRatio float64) (Point, bool) {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	return mapScaled(clientX, clientY, bounds, pixelRatio, pixelRatio)
}

func mapScaled(clientX, clientY float64, bounds Rect, scaleX, scaleY float64) (Point, bool) {
	if bounds.Empty() || math.IsNaN(clientX) || math.IsNaN(clientY) {
		return Point{}, false
	}
	if !bounds.Contains(clientX, clientY) {
		return Point{}, false
	}
	lx := clientX - bounds.X
	ly := clientY - bounds.Y
	return Point{X: lx * scaleX, Y: ly * scaleY}, true
}

// CoordinateMapper 缓存卡片的屏幕区域与缩放比例
//
// 卡片的屏幕区域在窗口缩放、布局变化时会改变；布局系统每帧比较区域，
// 发生变化时调用 Update 或 Fit 重新计算，过期的映射会让笔画错位。
type CoordinateMapper struct {
	bounds Rect
	scaleX float64
	scaleY float64
}

// NewCoordinateMapper 创建坐标映射器
func NewCoordinateMapper(bounds Rect, pixelRatio float64) *CoordinateMapper {
	m := &CoordinateMapper{}
	m.Update(bounds, pixelRatio)
	return m
}

// Update 使用新的屏幕区域和像素比重新计算映射
func (m *CoordinateMapper) Update(bounds Rect, pixelRatio float64) {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	m.bounds = bounds
	m.scaleX = pixelRatio
	m.scaleY = pixelRatio
}

// Fit 让映射适配一个已存在的缓冲区
//
// 缓冲区在创建后保持分辨率不变；卡片区域变化后，缩放比例按轴重新推导为
// 缓冲区尺寸 / 屏幕尺寸，使笔画仍然落在手指下方。
func (m *CoordinateMapper) Fit(bounds Rect, bufferWidth, bufferHeight int) {
	m.bounds = bounds
	if bounds.Empty() || bufferWidth <= 0 || bufferHeight <= 0 {
		m.scaleX, m.scaleY = 1, 1
		return
	}
	m.scaleX = float64(bufferWidth) / bounds.Width
	m.scaleY = float64(bufferHeight) / bounds.Height
}

// Map 将客户端坐标映射到缓冲区坐标，超出表面时返回 false
func (m *CoordinateMapper) Map(clientX, clientY float64) (Point, bool) {
	return mapScaled(clientX, clientY, m.bounds, m.scaleX, m.scaleY)
}

// Bounds 返回当前缓存的屏幕区域
func (m *CoordinateMapper) Bounds() Rect {
	return m.bounds
}

// Scale 返回当前每个轴的缩放比例
func (m *CoordinateMapper) Scale() (x, y float64) {
	return m.scaleX, m.scaleY
}
