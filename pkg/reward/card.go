// Package reward 实现刮刮卡奖励的揭晓/入账生命周期
//
// 服务端账本是卡片状态与金额的唯一权威来源；客户端只持有一份最终一致的缓存，
// 从不计算或校验金额，只负责展示。状态只能前进：
//
//	pending → revealed → credited
package reward

import (
	"fmt"
	"time"
)

// CardID 刮刮卡 ID（由账本分配）
type CardID int64

// Status 账本中的卡片状态
type Status string

const (
	StatusPending  Status = "pending"
	StatusRevealed Status = "revealed"
	StatusCredited Status = "credited"
)

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusRevealed:
		return 1
	case StatusCredited:
		return 2
	default:
		return -1
	}
}

// Valid 检查状态是否是已知取值
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// ParseStatus 解析账本返回的状态字符串
func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if !s.Valid() {
		return "", fmt.Errorf("reward: unknown card status %q", v)
	}
	return s, nil
}

// Card 客户端缓存的刮刮卡
type Card struct {
	ID         CardID     `json:"id" yaml:"id"`
	Status     Status     `json:"status" yaml:"status"`
	Amount     *float64   `json:"amount,omitempty" yaml:"amount,omitempty"`
	CreatedAt  time.Time  `json:"createdAt" yaml:"createdAt"`
	CreditedAt *time.Time `json:"creditedAt,omitempty" yaml:"creditedAt,omitempty"`
}

// VisibleAmount 返回可以展示的金额；Pending 状态下金额不可见
func (c Card) VisibleAmount() (float64, bool) {
	if c.Status == StatusPending || c.Amount == nil {
		return 0, false
	}
	return *c.Amount, true
}

// Advance 把卡片推进到 status
//
// 参数：
//   - status: 目标状态，不高于当前状态时忽略
//   - amount: 账本返回的金额，nil 时保留已有金额
//   - at: 推进时间，进入 credited 时记录为 CreditedAt
//
// 返回：
//   - bool: 状态是否前进
func (c *Card) Advance(status Status, amount *float64, at time.Time) bool {
	if status.rank() <= c.Status.rank() {
		return false
	}
	c.Status = status
	if amount != nil {
		v := *amount
		c.Amount = &v
	}
	if status == StatusCredited && c.CreditedAt == nil {
		t := at
		c.CreditedAt = &t
	}
	return true
}

// Merge 用另一份（通常来自账本列表）的数据更新缓存，不允许状态回退
func (c *Card) Merge(other Card) {
	if other.ID != c.ID {
		return
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = other.CreatedAt
	}
	if c.Amount == nil && other.Amount != nil {
		v := *other.Amount
		c.Amount = &v
	}
	c.Advance(other.Status, other.Amount, timeOrNow(other.CreditedAt))
}

func timeOrNow(t *time.Time) time.Time {
	if t == nil {
		return time.Now()
	}
	return *t
}

// Float 返回指向 v 副本的指针
func Float(v float64) *float64 {
	return &v
}
