package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 行程创建流程状态
const (
	StateValidating       = "validating"
	StateRoutingRequested = "routing_requested"
	StateRouteReceived    = "route_received"
	StateEnergyEstimated  = "energy_estimated"
	StateStationsScanned  = "stations_scanned"
	StatePersisted        = "persisted"
	StateDone             = "done"
	StateFailed           = "failed"
)

// 事件常量
const (
	EventValidated      = "validated"
	EventRouteReceived  = "route_received"
	EventEnergyEstimate = "energy_estimated"
	EventStationsFound  = "stations_scanned"
	EventPersisted      = "persisted"
	EventComplete       = "complete"
	EventFail           = "fail"
)

// nonTerminal 可以进入 failed 的状态
var nonTerminal = []string{
	StateValidating,
	StateRoutingRequested,
	StateRouteReceived,
	StateEnergyEstimated,
	StateStationsScanned,
	StatePersisted,
}

// Transition 一次状态变化
type Transition struct {
	From string    `json:"from"`
	To   string    `json:"to"`
	At   time.Time `json:"at"`
}

// Pipeline 单次行程创建的状态机
type Pipeline struct {
	mu           sync.RWMutex
	id           string
	fsm          *fsm.FSM
	startedAt    time.Time
	history      []Transition
	failedFrom   string
	onTransition func(id, from, to string)
}

// NewPipeline 创建状态机，初始状态为 validating
func NewPipeline(id string, onTransition func(id, from, to string)) *Pipeline {
	p := &Pipeline{
		id:           id,
		startedAt:    time.Now(),
		onTransition: onTransition,
	}

	p.fsm = fsm.NewFSM(
		StateValidating,
		fsm.Events{
			{Name: EventValidated, Src: []string{StateValidating}, Dst: StateRoutingRequested},
			{Name: EventRouteReceived, Src: []string{StateRoutingRequested}, Dst: StateRouteReceived},
			{Name: EventEnergyEstimate, Src: []string{StateRouteReceived}, Dst: StateEnergyEstimated},
			{Name: EventStationsFound, Src: []string{StateEnergyEstimated}, Dst: StateStationsScanned},
			{Name: EventPersisted, Src: []string{StateStationsScanned}, Dst: StatePersisted},
			{Name: EventComplete, Src: []string{StatePersisted}, Dst: StateDone},

			// 任意未结束状态都可以失败
			{Name: EventFail, Src: nonTerminal, Dst: StateFailed},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				p.history = append(p.history, Transition{From: e.Src, To: e.Dst, At: time.Now()})
				if e.Dst == StateFailed {
					p.failedFrom = e.Src
				}
				if p.onTransition != nil && e.Src != e.Dst {
					p.onTransition(p.id, e.Src, e.Dst)
				}
			},
		},
	)

	return p
}

// ID 流程标识
func (p *Pipeline) ID() string {
	return p.id
}

// Current 当前状态
func (p *Pipeline) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fsm.Current()
}

// Trigger 触发事件
// 状态记录不受调用方 ctx 取消的影响，取消由调用方自行检查
func (p *Pipeline) Trigger(ctx context.Context, event string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.fsm.Event(context.WithoutCancel(ctx), event); err != nil {
		return fmt.Errorf("trigger event %s: %w", event, err)
	}
	return nil
}

// Fail 进入 failed 状态；已结束的流程不变
func (p *Pipeline) Fail(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fsm.Can(EventFail) {
		_ = p.fsm.Event(context.WithoutCancel(ctx), EventFail)
	}
}

// FailedFrom 失败前所处的状态，未失败时为空
func (p *Pipeline) FailedFrom() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.failedFrom
}

// History 状态变化记录（副本）
func (p *Pipeline) History() []Transition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Transition, len(p.history))
	copy(out, p.history)
	return out
}

// Elapsed 流程已运行时长
func (p *Pipeline) Elapsed() time.Duration {
	return time.Since(p.startedAt)
}

// IsTerminal 是否已结束
func (p *Pipeline) IsTerminal() bool {
	cur := p.Current()
	return cur == StateDone || cur == StateFailed
}

// Manager 记录进行中的流程
type Manager struct {
	mu        sync.RWMutex
	pipelines map[string]*Pipeline
	onChange  func(id, from, to string)
}

// NewManager 创建管理器
func NewManager(onChange func(id, from, to string)) *Manager {
	return &Manager{
		pipelines: make(map[string]*Pipeline),
		onChange:  onChange,
	}
}

// Start 创建并登记一个流程
func (m *Manager) Start(id string) *Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := NewPipeline(id, m.onChange)
	m.pipelines[id] = p
	return p
}

// Finish 移除流程
func (m *Manager) Finish(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pipelines, id)
}

// ActiveCount 进行中的流程数量
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pipelines)
}

// GetAllStates 所有进行中流程的当前状态
func (m *Manager) GetAllStates() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make(map[string]string, len(m.pipelines))
	for id, p := range m.pipelines {
		states[id] = p.Current()
	}
	return states
}
