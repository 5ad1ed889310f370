package scratch

// NoPointer 表示当前没有指针占用会话
const NoPointer = -1

// InputSession 跟踪一次擦除手势
//
// Active 为 true 时环境动画必须停止；一张卡片同一时间只接受一个指针
// （先按下的鼠标或手指），其它指针的事件被忽略。
type InputSession struct {
	Active    bool
	LastPoint *Point
	PointerID int
}

// NewInputSession 创建空闲的输入会话
func NewInputSession() *InputSession {
	return &InputSession{PointerID: NoPointer}
}

// Begin 开始一次手势
//
// 返回：
//   - bool: 会话已被其它指针占用时返回 false
func (s *InputSession) Begin(pointerID int, p Point) bool {
	if s.Active && s.PointerID != pointerID {
		return false
	}
	s.Active = true
	s.PointerID = pointerID
	pt := p
	s.LastPoint = &pt
	return true
}

// Move 记录新的位置并返回上一个位置（用于连线）
//
// 返回：
//   - *Point: 上一个位置，手势刚开始或指针刚回到卡片内时为 nil
//   - bool: 事件属于当前手势时为 true
func (s *InputSession) Move(pointerID int, p Point) (*Point, bool) {
	if !s.Active || s.PointerID != pointerID {
		return nil, false
	}
	prev := s.LastPoint
	pt := p
	s.LastPoint = &pt
	return prev, true
}

// Lift 指针移出卡片：手势保持，但下一次移动不与旧位置连线
func (s *InputSession) Lift(pointerID int) {
	if s.Active && s.PointerID == pointerID {
		s.LastPoint = nil
	}
}

// End 结束手势
//
// 返回：
//   - bool: 确实结束了一个进行中的手势
func (s *InputSession) End(pointerID int) bool {
	if !s.Active || s.PointerID != pointerID {
		return false
	}
	s.Active = false
	s.LastPoint = nil
	s.PointerID = NoPointer
	return true
}
