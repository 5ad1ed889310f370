// Package scheduler 提供单线程协作式的帧调度器
//
// 调度器以 ebiten 的 Update 节拍为时钟（每帧调用一次 Tick），所有状态变更
// 都在调用 Tick 的 goroutine 上执行：
//
//   - Defer / After：延迟若干帧（或一段时间）后执行一次
//   - Every：每隔若干帧重复执行，直到被 Cancel
//   - Async：在后台 goroutine 执行阻塞工作（如网络请求），
//     其返回的 apply 函数在下一次 Tick 时回到调度线程执行
//
// 这样网络回调永远不会与笔画绘制、动画写缓冲区并发执行。
package scheduler

import (
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTPS 默认每秒帧数（与 ebiten 默认 TPS 一致）
const DefaultTPS = 60

// TaskID 调度任务的唯一标识，0 表示无效任务
type TaskID uint64

type task struct {
	id       TaskID
	due      uint64 // 下次执行的帧号
	interval uint64 // 重复间隔（帧），0 表示一次性任务
	fn       func()
}

// Scheduler 协作式帧调度器
type Scheduler struct {
	tps    int
	now    uint64
	nextID TaskID
	tasks  map[TaskID]*task

	// inbox 由后台 goroutine 写入，Tick 时统一取出执行
	mu     sync.Mutex
	inbox  []func()
	inline bool
	closed bool

	logger *zap.Logger
}

// New 创建调度器
//
// 参数：
//   - tps: 每秒帧数，<= 0 时使用 DefaultTPS
//   - logger: 日志记录器，可为 nil
func New(tps int, logger *zap.Logger) *Scheduler {
	if tps <= 0 {
		tps = DefaultTPS
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		tps:    tps,
		nextID: 1,
		tasks:  make(map[TaskID]*task),
		logger: logger.Named("Scheduler"),
	}
}

// SetInline 设置 Async 是否同步执行工作函数
//
// 仅用于测试：工作函数在调用 Async 时立即执行，但 apply 仍然延迟到下一次 Tick，
// 与真实运行时的提交顺序保持一致。
func (s *Scheduler) SetInline(inline bool) {
	s.inline = inline
}

// Now 返回当前帧号
func (s *Scheduler) Now() uint64 {
	return s.now
}

// TPS 返回每秒帧数
func (s *Scheduler) TPS() int {
	return s.tps
}

// TicksFor 将时长换算为帧数（向上取整，至少 1 帧）
func (s *Scheduler) TicksFor(d time.Duration) int {
	// 减去一个极小量，避免 0.1s*60 这类浮点误差多算一帧
	ticks := int(math.Ceil(d.Seconds()*float64(s.tps) - 1e-9))
	if ticks < 1 {
		return 1
	}
	return ticks
}

// Defer 在 ticks 帧之后执行一次 fn（ticks 最小为 1，即至少下一帧）
func (s *Scheduler) Defer(ticks int, fn func()) TaskID {
	if ticks < 1 {
		ticks = 1
	}
	return s.add(uint64(ticks), 0, fn)
}

// After 在时长 d 之后执行一次 fn
func (s *Scheduler) After(d time.Duration, fn func()) TaskID {
	return s.Defer(s.TicksFor(d), fn)
}

// Every 每隔 ticks 帧执行一次 fn，首次执行在 ticks 帧之后
func (s *Scheduler) Every(ticks int, fn func()) TaskID {
	if ticks < 1 {
		ticks = 1
	}
	return s.add(uint64(ticks), uint64(ticks), fn)
}

func (s *Scheduler) add(delay, interval uint64, fn func()) TaskID {
	if s.closed || fn == nil {
		return 0
	}
	id := s.nextID
	s.nextID++
	s.tasks[id] = &task{
		id:       id,
		due:      s.now + delay,
		interval: interval,
		fn:       fn,
	}
	return id
}

// Cancel 取消任务；取消不存在或已完成的任务是安全的
func (s *Scheduler) Cancel(id TaskID) {
	if id == 0 {
		return
	}
	delete(s.tasks, id)
}

// Scheduled 检查任务是否仍在等待执行
func (s *Scheduler) Scheduled(id TaskID) bool {
	_, ok := s.tasks[id]
	return ok
}

// Pending 返回等待中的任务数量
func (s *Scheduler) Pending() int {
	return len(s.tasks)
}

// Async 在后台执行 work，并把其返回的 apply 函数投递回调度线程
//
// work 运行在独立 goroutine 中，不得访问调度线程拥有的状态；
// apply 在随后的某次 Tick 中执行，可以安全地修改状态。
// 调度器关闭后投递的 apply 会被丢弃。
func (s *Scheduler) Async(work func() func()) {
	if work == nil {
		return
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	if s.inline {
		s.post(work())
		return
	}
	go func() {
		s.post(work())
	}()
}

func (s *Scheduler) post(apply func()) {
	if apply == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.inbox = append(s.inbox, apply)
}

// Tick 推进一帧：先执行投递回来的异步结果，再执行到期任务
func (s *Scheduler) Tick() {
	s.now++

	s.mu.Lock()
	inbox := s.inbox
	s.inbox = nil
	s.mu.Unlock()
	for _, apply := range inbox {
		apply()
	}

	due := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if t.due <= s.now {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due != due[j].due {
			return due[i].due < due[j].due
		}
		return due[i].id < due[j].id
	})

	for _, t := range due {
		// 前面的任务可能已取消后面的任务
		if _, alive := s.tasks[t.id]; !alive {
			continue
		}
		if t.interval == 0 {
			delete(s.tasks, t.id)
		} else {
			t.due = s.now + t.interval
		}
		t.fn()
	}
}

// Close 取消所有任务并丢弃之后投递的异步结果
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.inbox = nil
	s.mu.Unlock()

	dropped := len(s.tasks)
	s.tasks = make(map[TaskID]*task)
	s.logger.Debug("scheduler closed", zap.Int("droppedTasks", dropped), zap.Uint64("tick", s.now))
}
