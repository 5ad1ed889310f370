package game

import (
	"fmt"
	"sort"

	"github.com/quasilyte/gdata/v2"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/decker502/scratchcard/pkg/reward"
)

// 存储路径常量
const (
	cardCacheObject   = "wallet"
	cardCacheProperty = "cards"
)

// cardCacheFile 持久化格式
type cardCacheFile struct {
	Cards []reward.Card `yaml:"cards"`
}

// CardCache 刮刮卡的本地缓存
//
// 保存每张卡片最后已知的状态和金额，用于：
//   - 启动时在账本列表返回前先展示缓存状态
//   - already_revealed 冲突且服务端未带金额时，采用最后已知金额
//
// 缓存只会前进（与账本的状态顺序一致），账本列表中的旧数据不会让卡片回退。
// 所有方法在游戏循环线程上调用。
type CardCache struct {
	gdataManager *gdata.Manager // 可为 nil（降级模式，仅内存缓存）
	cards        map[reward.CardID]reward.Card
	logger       *zap.Logger
}

// NewCardCache 创建卡片缓存并加载已保存的数据
//
// 参数：
//   - gdataManager: gdata 跨平台存储管理器，可为 nil（降级模式）
//   - logger: 日志记录器，可为 nil
//
// 返回：
//   - *CardCache: 缓存实例（加载失败时为空缓存）
func NewCardCache(gdataManager *gdata.Manager, logger *zap.Logger) *CardCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CardCache{
		gdataManager: gdataManager,
		cards:        make(map[reward.CardID]reward.Card),
		logger:       logger.Named("CardCache"),
	}
	if err := c.Load(); err != nil {
		// 缓存损坏不是致命错误，账本列表会重新填充
		c.logger.Warn("failed to load card cache, starting empty", zap.Error(err))
	}
	return c
}

// Load 从 gdata 加载缓存
//
// 返回：
//   - error: 读取或反序列化失败时返回错误（缓存被清空）
func (c *CardCache) Load() error {
	c.cards = make(map[reward.CardID]reward.Card)
	if c.gdataManager == nil {
		return nil
	}
	if !c.gdataManager.ObjectPropExists(cardCacheObject, cardCacheProperty) {
		return nil
	}

	data, err := c.gdataManager.LoadObjectProp(cardCacheObject, cardCacheProperty)
	if err != nil {
		return fmt.Errorf("failed to load card cache: %w", err)
	}
	var file cardCacheFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to unmarshal card cache: %w", err)
	}
	for _, card := range file.Cards {
		if !card.Status.Valid() {
			c.logger.Warn("skipping cached card with unknown status",
				zap.Int64("cardId", int64(card.ID)), zap.String("status", string(card.Status)))
			continue
		}
		c.cards[card.ID] = card
	}
	c.logger.Debug("card cache loaded", zap.Int("cards", len(c.cards)))
	return nil
}

// Flush 把缓存写入 gdata，降级模式下不做任何事
func (c *CardCache) Flush() error {
	if c.gdataManager == nil {
		return nil
	}
	data, err := yaml.Marshal(cardCacheFile{Cards: c.All()})
	if err != nil {
		return fmt.Errorf("failed to marshal card cache: %w", err)
	}
	if err := c.gdataManager.SaveObjectProp(cardCacheObject, cardCacheProperty, data); err != nil {
		return fmt.Errorf("failed to save card cache: %w", err)
	}
	return nil
}

// LastKnown 返回卡片最后已知的状态
func (c *CardCache) LastKnown(id reward.CardID) (reward.Card, bool) {
	card, ok := c.cards[id]
	return card, ok
}

// Save 合并一张卡片并立即持久化（实现 reward.CardStore）
func (c *CardCache) Save(card reward.Card) error {
	c.merge(card)
	return c.Flush()
}

// Merge 用账本列表更新缓存并返回合并后的列表（按 ID 排序）
//
// 账本列表中可能带着比本地更旧的状态（最终一致），合并结果取两者中更靠后的状态。
func (c *CardCache) Merge(cards []reward.Card) []reward.Card {
	for _, card := range cards {
		c.merge(card)
	}
	if err := c.Flush(); err != nil {
		c.logger.Warn("failed to persist merged cards", zap.Error(err))
	}

	out := make([]reward.Card, 0, len(cards))
	for _, card := range cards {
		out = append(out, c.cards[card.ID])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c *CardCache) merge(card reward.Card) {
	existing, ok := c.cards[card.ID]
	if !ok {
		c.cards[card.ID] = card
		return
	}
	existing.Merge(card)
	c.cards[card.ID] = existing
}

// All 返回所有缓存的卡片（按 ID 排序）
func (c *CardCache) All() []reward.Card {
	out := make([]reward.Card, 0, len(c.cards))
	for _, card := range c.cards {
		out = append(out, card)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len 返回缓存的卡片数量
func (c *CardCache) Len() int {
	return len(c.cards)
}
