package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/decker502/scratchcard/pkg/scratch"
)

// ScratchConfig 刮刮卡的可调参数
//
// 所有数值都没有特殊含义，只要求揭晓阈值明显低于 100%，
// 以容忍用户不完全的擦除。
type ScratchConfig struct {
	RevealThreshold  float64       `yaml:"revealThreshold"`  // 自动揭晓阈值（百分比）
	SampleEveryTicks int           `yaml:"sampleEveryTicks"` // 手势中进度采样的最小间隔（帧）
	TPS              int           `yaml:"tps"`              // 调度器每秒帧数
	Brush            BrushConfig   `yaml:"brush"`
	Ambient          AmbientConfig `yaml:"ambient"`
}

// BrushConfig 笔刷参数（缓冲区像素）
type BrushConfig struct {
	Width        float64 `yaml:"width"`
	GapThreshold float64 `yaml:"gapThreshold"`
	DabSpacing   float64 `yaml:"dabSpacing"`
}

// AmbientConfig 待机动画参数
type AmbientConfig struct {
	PulseAmplitude float64       `yaml:"pulseAmplitude"`
	PulsePeriod    time.Duration `yaml:"pulsePeriod"`
	RegenInterval  time.Duration `yaml:"regenInterval"`
	ResumeCooldown time.Duration `yaml:"resumeCooldown"`
}

// 默认值
const (
	DefaultRevealThreshold  = 70.0
	DefaultSampleEveryTicks = 4
	DefaultTPS              = 60
)

// DefaultScratchConfig 返回默认配置
func DefaultScratchConfig() *ScratchConfig {
	return &ScratchConfig{
		RevealThreshold:  DefaultRevealThreshold,
		SampleEveryTicks: DefaultSampleEveryTicks,
		TPS:              DefaultTPS,
		Brush: BrushConfig{
			Width:        scratch.DefaultBrushWidth,
			GapThreshold: scratch.DefaultGapThreshold,
			DabSpacing:   scratch.DefaultDabSpacing,
		},
		Ambient: AmbientConfig{
			PulseAmplitude: scratch.DefaultPulseAmplitude,
			PulsePeriod:    scratch.DefaultPulsePeriod,
			RegenInterval:  scratch.DefaultRegenInterval,
			ResumeCooldown: scratch.DefaultResumeCooldown,
		},
	}
}

// LoadScratchConfig 从 YAML 文件加载配置，文件中缺失的字段使用默认值
//
// 参数：
//   - path: 配置文件路径
//
// 返回：
//   - *ScratchConfig: 合并默认值后的配置
//   - error: 读取、解析或校验失败时返回错误
func LoadScratchConfig(path string) (*ScratchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scratch config file %s: %w", path, err)
	}
	cfg, err := ParseScratchConfig(data)
	if err != nil {
		return nil, fmt.Errorf("invalid scratch config in %s: %w", path, err)
	}
	return cfg, nil
}

// ParseScratchConfig 解析 YAML 数据
func ParseScratchConfig(data []byte) (*ScratchConfig, error) {
	cfg := DefaultScratchConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scratch config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值
func (c *ScratchConfig) Validate() error {
	var errs []error
	if c.RevealThreshold <= 0 || c.RevealThreshold > 100 {
		errs = append(errs, fmt.Errorf("revealThreshold must be in (0, 100], got %v", c.RevealThreshold))
	}
	if c.SampleEveryTicks < 1 {
		errs = append(errs, fmt.Errorf("sampleEveryTicks must be >= 1, got %d", c.SampleEveryTicks))
	}
	if c.TPS < 1 {
		errs = append(errs, fmt.Errorf("tps must be >= 1, got %d", c.TPS))
	}
	if c.Brush.Width <= 0 || c.Brush.GapThreshold <= 0 || c.Brush.DabSpacing <= 0 {
		errs = append(errs, fmt.Errorf("brush sizes must be positive, got %+v", c.Brush))
	}
	if c.Brush.DabSpacing > c.Brush.Width/2 {
		errs = append(errs, fmt.Errorf("brush.dabSpacing %v exceeds the brush radius %v", c.Brush.DabSpacing, c.Brush.Width/2))
	}
	if c.Ambient.PulseAmplitude < 0 || c.Ambient.PulseAmplitude > 1 {
		errs = append(errs, fmt.Errorf("ambient.pulseAmplitude must be in [0, 1], got %v", c.Ambient.PulseAmplitude))
	}
	if c.Ambient.PulsePeriod <= 0 || c.Ambient.RegenInterval <= 0 {
		errs = append(errs, errors.New("ambient.pulsePeriod and ambient.regenInterval must be positive"))
	}
	if c.Ambient.ResumeCooldown < 0 {
		errs = append(errs, errors.New("ambient.resumeCooldown must not be negative"))
	}
	return errors.Join(errs...)
}

// BrushOptions 转换为擦除表面的笔刷参数
func (c *ScratchConfig) BrushOptions() scratch.BrushOptions {
	return scratch.BrushOptions{
		Width:        c.Brush.Width,
		GapThreshold: c.Brush.GapThreshold,
		DabSpacing:   c.Brush.DabSpacing,
	}
}

// AnimatorOptions 转换为待机动画参数
func (c *ScratchConfig) AnimatorOptions() scratch.AnimatorOptions {
	return scratch.AnimatorOptions{
		PulseAmplitude: c.Ambient.PulseAmplitude,
		PulsePeriod:    c.Ambient.PulsePeriod,
		RegenInterval:  c.Ambient.RegenInterval,
		ResumeCooldown: c.Ambient.ResumeCooldown,
	}
}
