package scratch

import (
	"image"
	"math"
)

// ProgressEstimator 统计擦除缓冲区中已擦除像素的比例
//
// 采样必须在笔画提交之后进行（至少延迟一个调度帧），由进度系统负责调度。
type ProgressEstimator struct {
	samples int
}

// NewProgressEstimator 创建进度估算器
func NewProgressEstimator() *ProgressEstimator {
	return &ProgressEstimator{}
}

// Sample 返回已擦除像素（alpha == 0）占全部像素的百分比，保留一位小数
//
// 已释放的表面返回 0。
func (e *ProgressEstimator) Sample(surface *ErasureSurface) float64 {
	if surface.Released() {
		return 0
	}
	e.samples++
	return ErasedPercent(surface.Image())
}

// Samples 返回累计采样次数
func (e *ProgressEstimator) Samples() int {
	return e.samples
}

// ErasedPercent 读取每个像素的 alpha 通道并计算擦除百分比
func ErasedPercent(img *image.RGBA) float64 {
	if img == nil {
		return 0
	}
	w, h := img.Rect.Dx(), img.Rect.Dy()
	total := w * h
	if total == 0 {
		return 0
	}
	erased := 0
	for y := 0; y < h; y++ {
		off := img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y)
		row := img.Pix[off : off+w*4]
		for i := 3; i < len(row); i += 4 {
			if row[i] == 0 {
				erased++
			}
		}
	}
	return roundTenth(float64(erased) / float64(total) * 100)
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// ScratchProgress 最近一次采样得到的擦除进度
//
// 进度是派生数据，对同一个缓冲区只增不减。
type ScratchProgress struct {
	Fraction  float64 // 0..100
	SampledAt uint64  // 采样时的调度帧号
}

// Advance 记录一次新的采样结果
//
// 返回：
//   - bool: 进度是否增加（较小的采样值被忽略，只更新时间）
func (p *ScratchProgress) Advance(fraction float64, at uint64) bool {
	p.SampledAt = at
	if fraction <= p.Fraction {
		return false
	}
	p.Fraction = math.Min(fraction, 100)
	return true
}
