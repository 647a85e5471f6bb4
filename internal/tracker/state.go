package tracker

import (
	"context"
	"sort"
	"sync"
	"time"
)

// State 轮询共享的内存状态。Monitor 写，状态接口通过 Snapshot 读。
type State struct {
	mu         sync.RWMutex
	tokens     map[string]TrackedToken
	milestones map[string]MilestoneState
	known      map[string]struct{}

	lastCycleAt time.Time
	lastCycleID string
	cycles      int
}

func NewState() *State {
	return &State{
		tokens:     make(map[string]TrackedToken),
		milestones: make(map[string]MilestoneState),
		known:      make(map[string]struct{}),
	}
}

// Snapshot 某一时刻状态的拷贝
type Snapshot struct {
	Tokens      []TrackedToken
	Milestones  map[string]MilestoneState
	KnownCount  int
	LastCycleAt time.Time
	LastCycleID string
	Cycles      int
}

// Snapshot 返回状态拷贝，Tokens 按价值降序排列
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tokens := make([]TrackedToken, 0, len(s.tokens))
	for _, t := range s.tokens {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if tokens[i].Value != tokens[j].Value {
			return tokens[i].Value > tokens[j].Value
		}
		return tokens[i].Mint < tokens[j].Mint
	})

	milestones := make(map[string]MilestoneState, len(s.milestones))
	for k, v := range s.milestones {
		milestones[k] = v
	}

	return Snapshot{
		Tokens:      tokens,
		Milestones:  milestones,
		KnownCount:  len(s.known),
		LastCycleAt: s.lastCycleAt,
		LastCycleID: s.lastCycleID,
		Cycles:      s.cycles,
	}
}

// Token 返回单个代币
func (s *State) Token(mint string) (TrackedToken, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tokens[mint]
	return t, ok
}

// Milestone 返回代币的里程碑状态
func (s *State) Milestone(mint string) (MilestoneState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.milestones[mint]
	return m, ok
}

func (s *State) putToken(t TrackedToken) {
	s.mu.Lock()
	s.tokens[t.Mint] = t
	s.mu.Unlock()
}

// ensureMilestone 首次见到代币时初始化为未通知
func (s *State) ensureMilestone(mint string) MilestoneState {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.milestones[mint]
	if !ok {
		s.milestones[mint] = m
	}
	return m
}

// setMilestone 只允许把标记从 false 改为 true
func (s *State) setMilestone(mint string, m MilestoneState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.milestones[mint]
	cur.FirstCrossed = cur.FirstCrossed || m.FirstCrossed || m.SecondCrossed
	cur.SecondCrossed = cur.SecondCrossed || m.SecondCrossed
	s.milestones[mint] = cur
}

func (s *State) addKnown(mints []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range mints {
		s.known[m] = struct{}{}
	}
}

func (s *State) finishCycle(id string, at time.Time, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles++
	s.lastCycleID = id
	if ok {
		s.lastCycleAt = at
	}
}

// restore 启动时载入已持久化的里程碑
func (s *State) restore(ms map[string]MilestoneState) {
	for mint, m := range ms {
		s.setMilestone(mint, m)
	}
}

// MemoryMilestoneStore 不做持久化，重启后会重新通知
type MemoryMilestoneStore struct {
	mu   sync.Mutex
	data map[string]MilestoneState
}

func NewMemoryMilestoneStore() *MemoryMilestoneStore {
	return &MemoryMilestoneStore{data: make(map[string]MilestoneState)}
}

func (m *MemoryMilestoneStore) Load(ctx context.Context) (map[string]MilestoneState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]MilestoneState, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryMilestoneStore) Save(ctx context.Context, mint string, state MilestoneState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[mint] = state
	return nil
}
