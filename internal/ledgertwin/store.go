// Package ledgertwin 是奖励账本的本地替身服务
//
// 用于开发和集成测试：卡片、金额和余额都保存在内存中，行为与真实账本一致
// （状态只前进、already_* 冲突、幂等键重放），并支持通过 /admin 接口注入故障。
package ledgertwin

import (
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/decker502/scratchcard/pkg/reward"
)

var (
	ErrCardNotFound = errors.New("card not found")
	ErrNotRevealed  = errors.New("card not revealed")
)

// ConflictError 卡片状态已越过请求的阶段
type ConflictError struct {
	Status reward.Status
	Amount float64
}

func (e *ConflictError) Error() string {
	return "card already " + string(e.Status)
}

// prizeTable 新卡片的候选金额
var prizeTable = []float64{0.5, 1, 1, 1.5, 2, 2, 2.5, 5}

type record struct {
	card   reward.Card
	amount float64 // 账本始终知道金额，揭晓前不对外暴露
}

// Store 内存账本
type Store struct {
	mu      sync.Mutex
	cards   map[reward.CardID]*record
	nextID  reward.CardID
	balance float64
	seed    uint64
	rng     *rand.Rand
	now     func() time.Time
}

// NewStore 创建内存账本并生成 n 张待刮卡片
//
// seed 决定生成的金额，相同 seed 生成相同的卡片。
func NewStore(n int, seed uint64) *Store {
	s := &Store{seed: seed, now: time.Now}
	s.reset(n)
	return s
}

func (s *Store) reset(n int) {
	s.cards = make(map[reward.CardID]*record)
	s.nextID = 1
	s.balance = 0
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x5eed))
	for i := 0; i < n; i++ {
		s.addLocked(prizeTable[s.rng.IntN(len(prizeTable))])
	}
}

// Reset 丢弃所有状态并重新生成 n 张卡片
func (s *Store) Reset(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset(n)
}

// Add 新增一张指定金额的待刮卡片
func (s *Store) Add(amount float64) reward.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addLocked(amount).card
}

func (s *Store) addLocked(amount float64) *record {
	r := &record{
		card: reward.Card{
			ID:        s.nextID,
			Status:    reward.StatusPending,
			CreatedAt: s.now().UTC().Truncate(time.Second),
		},
		amount: amount,
	}
	s.cards[r.card.ID] = r
	s.nextID++
	return r
}

// List 返回所有卡片（Pending 卡片不带金额）
func (s *Store) List() []reward.Card {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]reward.Card, 0, len(s.cards))
	for _, r := range s.cards {
		out = append(out, r.card)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get 返回一张卡片
func (s *Store) Get(id reward.CardID) (reward.Card, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.cards[id]
	if !ok {
		return reward.Card{}, false
	}
	return r.card, true
}

// Reveal 揭晓卡片
//
// 已揭晓或已入账的卡片返回 *ConflictError（携带金额）。
func (s *Store) Reveal(id reward.CardID) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.cards[id]
	if !ok {
		return 0, ErrCardNotFound
	}
	if r.card.Status != reward.StatusPending {
		return 0, &ConflictError{Status: r.card.Status, Amount: r.amount}
	}
	r.card.Advance(reward.StatusRevealed, reward.Float(r.amount), s.now())
	return r.amount, nil
}

// Credit 把已揭晓卡片的金额计入余额
//
// 返回：
//   - float64: 入账金额
//   - float64: 入账后的余额
//   - error: ErrCardNotFound、ErrNotRevealed 或 *ConflictError（已入账）
func (s *Store) Credit(id reward.CardID) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.cards[id]
	if !ok {
		return 0, s.balance, ErrCardNotFound
	}
	switch r.card.Status {
	case reward.StatusPending:
		return 0, s.balance, ErrNotRevealed
	case reward.StatusCredited:
		return 0, s.balance, &ConflictError{Status: r.card.Status, Amount: r.amount}
	}
	r.card.Advance(reward.StatusCredited, nil, s.now().UTC())
	s.balance += r.amount
	return r.amount, s.balance, nil
}

// Balance 返回钱包余额
func (s *Store) Balance() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}
