package utils

import "math"

// 缓动函数：输入进度 t ∈ [0, 1]，返回缓动后的值 ∈ [0, 1]

// EaseOutCubic 三次方缓出，开始快结束慢
func EaseOutCubic(t float64) float64 {
	return 1 - math.Pow(1-Clamp01(t), 3)
}

// EaseInQuad 二次方缓入，开始慢结束快
func EaseInQuad(t float64) float64 {
	t = Clamp01(t)
	return t * t
}

// Lerp 线性插值，t=0 返回 a，t=1 返回 b
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// Clamp01 把 t 限制在 [0, 1]
func Clamp01(t float64) float64 {
	return math.Max(0, math.Min(1, t))
}

// FadeInOut 计算提示条在生命周期内的不透明度
//
// 参数：
//   - elapsed: 已显示的帧数
//   - lifetime: 总帧数
//   - fade: 淡入和淡出各占的帧数
//
// 返回：
//   - float64: 不透明度 ∈ [0, 1]，淡入用 EaseOutCubic，淡出用 EaseInQuad
func FadeInOut(elapsed, lifetime, fade float64) float64 {
	if lifetime <= 0 || elapsed < 0 || elapsed >= lifetime {
		return 0
	}
	if fade <= 0 {
		return 1
	}
	fade = math.Min(fade, lifetime/2)
	if elapsed < fade {
		return EaseOutCubic(elapsed / fade)
	}
	if remaining := lifetime - elapsed; remaining < fade {
		return 1 - EaseInQuad(1-remaining/fade)
	}
	return 1
}
