package scratch

import (
	"errors"
	"image"
	"image/draw"
	"math"

	"golang.org/x/image/vector"
)

// 默认笔刷参数（缓冲区像素）
const (
	DefaultBrushWidth   = 50.0
	DefaultGapThreshold = 8.0
	DefaultDabSpacing   = 4.0
)

// coverageThreshold 覆盖率达到一半的像素视为被笔刷覆盖
const coverageThreshold = 0x80

// kappa 用四段三次贝塞尔近似圆时的控制点系数
const kappa = 0.5522847498

// ErrEmptySurface 表示表面尺寸为 0，无法创建缓冲区
var ErrEmptySurface = errors.New("scratch: surface has zero size")

// BrushOptions 笔刷参数
type BrushOptions struct {
	Width        float64 // 笔画宽度 W（圆头）
	GapThreshold float64 // 两点距离超过此值时沿线段补点
	DabSpacing   float64 // 补点间隔
}

// DefaultBrushOptions 返回默认笔刷参数
func DefaultBrushOptions() BrushOptions {
	return BrushOptions{
		Width:        DefaultBrushWidth,
		GapThreshold: DefaultGapThreshold,
		DabSpacing:   DefaultDabSpacing,
	}
}

func (o BrushOptions) normalized() BrushOptions {
	if o.Width <= 0 {
		o.Width = DefaultBrushWidth
	}
	if o.GapThreshold <= 0 {
		o.GapThreshold = DefaultGapThreshold
	}
	if o.DabSpacing <= 0 {
		o.DabSpacing = DefaultDabSpacing
	}
	return o
}

// ErasureSurface 刮刮卡覆盖层的擦除缓冲区
//
// 缓冲区是预乘 alpha 的 RGBA 图像（可直接上传给 ebiten）。笔画把覆盖到的像素
// 全部清零（完全透明），不做半透明混合；动画只改写不透明像素的颜色通道。
//
// 缓冲区由单个卡片实体独占，笔画与环境动画通过 InputSession.Active 互斥，
// 不加锁。
type ErasureSurface struct {
	img   *image.RGBA
	base  []uint8 // 当前纹理的 RGB（每像素 3 字节），高光在此基础上调制
	brush BrushOptions

	rasterizer *vector.Rasterizer
	mask       *image.Alpha

	highlight float64
	version   uint64
}

// NewErasureSurface 按逻辑尺寸和像素比创建擦除缓冲区
//
// 缓冲区尺寸为 ceil(width*pixelRatio) x ceil(height*pixelRatio)。
// 创建后缓冲区是全透明的，需要调用 Initialize 铺上覆盖层。
func NewErasureSurface(width, height float64, pixelRatio float64, brush BrushOptions) (*ErasureSurface, error) {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	w := int(math.Ceil(width * pixelRatio))
	h := int(math.Ceil(height * pixelRatio))
	if w <= 0 || h <= 0 {
		return nil, ErrEmptySurface
	}
	return &ErasureSurface{
		img:        image.NewRGBA(image.Rect(0, 0, w, h)),
		base:       make([]uint8, w*h*3),
		brush:      brush.normalized(),
		rasterizer: vector.NewRasterizer(w, h),
	}, nil
}

// Initialize 铺满带纹理、完全不透明的覆盖层
func (s *ErasureSurface) Initialize(seed int64) {
	if s.Released() {
		return
	}
	w, h := s.Width(), s.Height()
	paintFoil(s.base, w, h, seed)
	s.highlight = 0
	pix := s.img.Pix
	for i, j := 0, 0; i < len(pix); i, j = i+4, j+3 {
		pix[i] = s.base[j]
		pix[i+1] = s.base[j+1]
		pix[i+2] = s.base[j+2]
		pix[i+3] = 0xff
	}
	s.version++
}

// Stroke 沿 previous → point 擦除一段圆头线段
//
// previous 为 nil 时只在 point 处盖一个圆点。两点距离超过 GapThreshold 时，
// 额外沿线段每隔 DabSpacing 盖圆点，防止快速划动留下未擦除的缝隙。
func (s *ErasureSurface) Stroke(point Point, previous *Point) {
	if s.Released() {
		return
	}
	radius := s.brush.Width / 2

	dabs := []Point{point}
	var segment []Point
	if previous != nil {
		prev := *previous
		dabs = append(dabs, prev)
		if prev != point {
			segment = []Point{prev, point}
		}
		dx, dy := point.X-prev.X, point.Y-prev.Y
		dist := math.Hypot(dx, dy)
		if dist > s.brush.GapThreshold {
			for d := s.brush.DabSpacing; d < dist; d += s.brush.DabSpacing {
				t := d / dist
				dabs = append(dabs, Point{X: prev.X + dx*t, Y: prev.Y + dy*t})
			}
		}
	}
	s.erase(dabs, segment, radius)
}

// erase 光栅化圆点与线段的并集，把覆盖率过半的像素清零
func (s *ErasureSurface) erase(dabs []Point, segment []Point, radius float64) {
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, d := range dabs {
		minX = math.Min(minX, d.X-radius)
		minY = math.Min(minY, d.Y-radius)
		maxX = math.Max(maxX, d.X+radius)
		maxY = math.Max(maxY, d.Y+radius)
	}
	area := image.Rect(
		int(math.Floor(minX)), int(math.Floor(minY)),
		int(math.Ceil(maxX)), int(math.Ceil(maxY)),
	).Intersect(s.img.Rect)
	if area.Empty() {
		return
	}

	w, h := area.Dx(), area.Dy()
	ox, oy := float64(area.Min.X), float64(area.Min.Y)
	z := s.rasterizer
	z.Reset(w, h)
	z.DrawOp = draw.Src
	for _, d := range dabs {
		addCircle(z, d.X-ox, d.Y-oy, radius)
	}
	if len(segment) == 2 {
		a := Point{X: segment[0].X - ox, Y: segment[0].Y - oy}
		b := Point{X: segment[1].X - ox, Y: segment[1].Y - oy}
		addSegmentBody(z, a, b, radius)
	}

	if s.mask == nil || s.mask.Rect.Dx() < w || s.mask.Rect.Dy() < h {
		s.mask = image.NewAlpha(image.Rect(0, 0, w, h))
	}
	maskRect := image.Rect(0, 0, w, h)
	z.Draw(s.mask, maskRect, image.Opaque, image.Point{})

	pix := s.img.Pix
	for y := 0; y < h; y++ {
		row := s.mask.Pix[y*s.mask.Stride : y*s.mask.Stride+w]
		off := s.img.PixOffset(area.Min.X, area.Min.Y+y)
		for x, cov := range row {
			if cov >= coverageThreshold {
				i := off + x*4
				pix[i], pix[i+1], pix[i+2], pix[i+3] = 0, 0, 0, 0
			}
		}
	}
	s.version++
}

// addCircle 以正向（屏幕坐标下顺时针）添加一个圆
//
// 所有子路径必须同向，否则重叠区域会被 vector 的累加抵消成空洞。
func addCircle(z *vector.Rasterizer, cx, cy, r float64) {
	k := r * kappa
	z.MoveTo(f32(cx+r), f32(cy))
	z.CubeTo(f32(cx+r), f32(cy+k), f32(cx+k), f32(cy+r), f32(cx), f32(cy+r))
	z.CubeTo(f32(cx-k), f32(cy+r), f32(cx-r), f32(cy+k), f32(cx-r), f32(cy))
	z.CubeTo(f32(cx-r), f32(cy-k), f32(cx-k), f32(cy-r), f32(cx), f32(cy-r))
	z.CubeTo(f32(cx+k), f32(cy-r), f32(cx+r), f32(cy-k), f32(cx+r), f32(cy))
	z.ClosePath()
}

// addSegmentBody 添加线段两侧宽度为 2r 的矩形（圆头由两端圆点提供）
func addSegmentBody(z *vector.Rasterizer, a, b Point, r float64) {
	dx, dy := b.X-a.X, b.Y-a.Y
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*r, dx/length*r
	quad := [4]Point{
		{X: a.X + nx, Y: a.Y + ny},
		{X: b.X + nx, Y: b.Y + ny},
		{X: b.X - nx, Y: b.Y - ny},
		{X: a.X - nx, Y: a.Y - ny},
	}
	// 与 addCircle 保持同一绕向（鞋带公式面积为正）
	if signedArea(quad[:]) < 0 {
		quad[1], quad[3] = quad[3], quad[1]
	}
	z.MoveTo(f32(quad[0].X), f32(quad[0].Y))
	for _, p := range quad[1:] {
		z.LineTo(f32(p.X), f32(p.Y))
	}
	z.ClosePath()
}

func signedArea(pts []Point) float64 {
	sum := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return sum / 2
}

func f32(v float64) float32 {
	return float32(v)
}

// Regenerate 重新生成底纹，同时保留已擦除区域
//
// 先记录所有 alpha 为 0 的像素，再重绘纹理，最后把这些像素重新清零。
// 返回保留的擦除像素数量。
func (s *ErasureSurface) Regenerate(seed int64) int {
	if s.Released() {
		return 0
	}
	erased := s.captureMask()
	s.Initialize(seed)
	s.applyMask(erased)
	return len(erased)
}

// captureMask 返回所有已擦除像素的 Pix 偏移量
func (s *ErasureSurface) captureMask() []int {
	pix := s.img.Pix
	erased := make([]int, 0)
	for i := 3; i < len(pix); i += 4 {
		if pix[i] == 0 {
			erased = append(erased, i-3)
		}
	}
	return erased
}

func (s *ErasureSurface) applyMask(erased []int) {
	pix := s.img.Pix
	for _, i := range erased {
		pix[i], pix[i+1], pix[i+2], pix[i+3] = 0, 0, 0, 0
	}
	s.version++
}

// ApplyHighlight 按 level 调制不透明像素的亮度（level 为相对亮度偏移）
//
// 只改写颜色通道，alpha 保持不变，因此不会让已擦除的像素"愈合"。
func (s *ErasureSurface) ApplyHighlight(level float64) {
	if s.Released() || level == s.highlight {
		return
	}
	s.highlight = level
	gain := 1 + level
	pix := s.img.Pix
	for i, j := 0, 0; i < len(pix); i, j = i+4, j+3 {
		if pix[i+3] == 0 {
			continue
		}
		pix[i] = clampByte(float64(s.base[j]) * gain)
		pix[i+1] = clampByte(float64(s.base[j+1]) * gain)
		pix[i+2] = clampByte(float64(s.base[j+2]) * gain)
	}
	s.version++
}

// Erased 检查缓冲区坐标 (x, y) 处的像素是否已被擦除
func (s *ErasureSurface) Erased(x, y int) bool {
	if s.Released() || !(image.Point{X: x, Y: y}).In(s.img.Rect) {
		return false
	}
	return s.img.Pix[s.img.PixOffset(x, y)+3] == 0
}

// Image 返回底层 RGBA 缓冲区（释放后为 nil）
func (s *ErasureSurface) Image() *image.RGBA {
	return s.img
}

// Width 缓冲区宽度（物理像素）
func (s *ErasureSurface) Width() int {
	if s.img == nil {
		return 0
	}
	return s.img.Rect.Dx()
}

// Height 缓冲区高度（物理像素）
func (s *ErasureSurface) Height() int {
	if s.img == nil {
		return 0
	}
	return s.img.Rect.Dy()
}

// Version 返回缓冲区修改计数，渲染系统据此决定是否重新上传像素
func (s *ErasureSurface) Version() uint64 {
	return s.version
}

// Brush 返回笔刷参数
func (s *ErasureSurface) Brush() BrushOptions {
	return s.brush
}

// Release 释放缓冲区（卡片揭晓后不再渲染覆盖层）
func (s *ErasureSurface) Release() {
	s.img = nil
	s.base = nil
	s.mask = nil
	s.rasterizer = nil
	s.version++
}

// Released 检查缓冲区是否已释放
func (s *ErasureSurface) Released() bool {
	return s == nil || s.img == nil
}
