package utils

import (
	"sort"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// PointerPhase 指针事件阶段
type PointerPhase int

const (
	PointerDown PointerPhase = iota
	PointerMove
	PointerUp
)

func (p PointerPhase) String() string {
	switch p {
	case PointerDown:
		return "down"
	case PointerMove:
		return "move"
	default:
		return "up"
	}
}

// MousePointerID 鼠标左键的指针 ID；触摸点的 ID 为 TouchID+1
const MousePointerID = 0

// PointerEvent 统一的鼠标/触摸事件（屏幕逻辑坐标）
type PointerEvent struct {
	Phase PointerPhase
	ID    int
	X, Y  float64
}

type pointerPos struct {
	x, y int
}

// PointerTracker 把 ebiten 的鼠标和多点触摸状态转换为按下/移动/抬起事件
//
// 每帧调用一次 Poll。移动事件只在位置变化时产生；触摸抬起时使用最后一次
// 记录的位置（ebiten 在抬起后无法再查询该触摸点）。
type PointerTracker struct {
	mouseDown bool
	mouse     pointerPos
	touches   map[ebiten.TouchID]pointerPos
	touchIDs  []ebiten.TouchID
}

// NewPointerTracker 创建指针跟踪器
func NewPointerTracker() *PointerTracker {
	return &PointerTracker{touches: make(map[ebiten.TouchID]pointerPos)}
}

// Poll 返回本帧产生的指针事件
func (t *PointerTracker) Poll() []PointerEvent {
	var events []PointerEvent

	// 触摸
	t.touchIDs = inpututil.AppendJustPressedTouchIDs(t.touchIDs[:0])
	for _, id := range t.touchIDs {
		x, y := ebiten.TouchPosition(id)
		t.touches[id] = pointerPos{x, y}
		events = append(events, pointerEvent(PointerDown, touchPointerID(id), x, y))
	}
	t.touchIDs = ebiten.AppendTouchIDs(t.touchIDs[:0])
	for _, id := range t.touchIDs {
		x, y := ebiten.TouchPosition(id)
		last, tracked := t.touches[id]
		if !tracked {
			t.touches[id] = pointerPos{x, y}
			events = append(events, pointerEvent(PointerDown, touchPointerID(id), x, y))
			continue
		}
		if last.x != x || last.y != y {
			t.touches[id] = pointerPos{x, y}
			events = append(events, pointerEvent(PointerMove, touchPointerID(id), x, y))
		}
	}
	released := make([]ebiten.TouchID, 0)
	for id := range t.touches {
		if inpututil.IsTouchJustReleased(id) {
			released = append(released, id)
		}
	}
	sort.Slice(released, func(i, j int) bool { return released[i] < released[j] })
	for _, id := range released {
		last := t.touches[id]
		delete(t.touches, id)
		events = append(events, pointerEvent(PointerUp, touchPointerID(id), last.x, last.y))
	}

	// 鼠标
	x, y := ebiten.CursorPosition()
	pressed := ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
	switch {
	case pressed && !t.mouseDown:
		events = append(events, pointerEvent(PointerDown, MousePointerID, x, y))
	case pressed && (t.mouse.x != x || t.mouse.y != y):
		events = append(events, pointerEvent(PointerMove, MousePointerID, x, y))
	case !pressed && t.mouseDown:
		events = append(events, pointerEvent(PointerUp, MousePointerID, x, y))
	}
	t.mouseDown = pressed
	t.mouse = pointerPos{x, y}

	return events
}

// Cursor 返回鼠标位置（用于悬停检测）
func (t *PointerTracker) Cursor() (float64, float64) {
	return float64(t.mouse.x), float64(t.mouse.y)
}

func touchPointerID(id ebiten.TouchID) int {
	return int(id) + 1
}

func pointerEvent(phase PointerPhase, id, x, y int) PointerEvent {
	return PointerEvent{Phase: phase, ID: id, X: float64(x), Y: float64(y)}
}
