package scratch

import (
	"math"
	"math/rand/v2"
)

// 银箔纹理的基础色（RGB）
const (
	foilBaseR = 192
	foilBaseG = 192
	foilBaseB = 200

	foilNoise     = 18  // 颗粒噪声幅度
	foilSheen     = 26  // 斜向光泽幅度
	foilBandWidth = 90. // 光泽条纹周期（缓冲区像素）
)

// paintFoil 生成银箔纹理到 base（每像素 3 字节 RGB）
//
// 纹理由斜向光泽条纹和随机颗粒组成，seed 决定颗粒分布和条纹相位，
// 每次再生使用不同的 seed 以获得缓慢变化的视觉效果。
func paintFoil(base []uint8, width, height int, seed int64) {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15))
	phase := rng.Float64() * 2 * math.Pi

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			diag := float64(x+y) / foilBandWidth
			sheen := math.Sin(diag*2*math.Pi+phase) * foilSheen
			noise := float64(rng.IntN(2*foilNoise+1) - foilNoise)
			i := (y*width + x) * 3
			base[i] = clampByte(foilBaseR + sheen + noise)
			base[i+1] = clampByte(foilBaseG + sheen + noise)
			base[i+2] = clampByte(foilBaseB + sheen + noise)
		}
	}
}

func clampByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	default:
		return uint8(v + 0.5)
	}
}
