package postgres

import (
	"context"
	"fmt"
	"time"

	"milestone-tracker/internal/tracker"
)

// QueryObserver 记录每次查询的耗时和结果
type QueryObserver interface {
	ObserveQuery(operation string, d time.Duration, err error)
}

// MilestoneStore 实现 tracker.MilestoneStore
type MilestoneStore struct {
	pool     *Pool
	observer QueryObserver
}

func NewMilestoneStore(pool *Pool) *MilestoneStore {
	return &MilestoneStore{pool: pool}
}

// WithObserver 设置查询观察者，可为 nil
func (s *MilestoneStore) WithObserver(o QueryObserver) *MilestoneStore {
	s.observer = o
	return s
}

func (s *MilestoneStore) observe(op string, start time.Time, err *error) {
	if s.observer != nil {
		s.observer.ObserveQuery(op, time.Since(start), *err)
	}
}

// Load 读取全部代币的里程碑状态
func (s *MilestoneStore) Load(ctx context.Context) (_ map[string]tracker.MilestoneState, err error) {
	defer s.observe("load", time.Now(), &err)

	rows, err := s.pool.Query(ctx, `SELECT mint, first, second FROM milestones`)
	if err != nil {
		return nil, fmt.Errorf("查询里程碑失败: %w", err)
	}
	defer rows.Close()

	out := make(map[string]tracker.MilestoneState)
	for rows.Next() {
		var (
			mint  string
			state tracker.MilestoneState
		)
		if err := rows.Scan(&mint, &state.FirstCrossed, &state.SecondCrossed); err != nil {
			return nil, fmt.Errorf("读取里程碑失败: %w", err)
		}
		out[mint] = state
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("读取里程碑失败: %w", err)
	}
	return out, nil
}

// Save 写入里程碑状态，已经为 true 的标志不会被改回 false
func (s *MilestoneStore) Save(ctx context.Context, mint string, state tracker.MilestoneState) (err error) {
	defer s.observe("save", time.Now(), &err)

	_, err = s.pool.Exec(ctx, `
		INSERT INTO milestones (mint, first, second, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (mint) DO UPDATE
		SET first = milestones.first OR EXCLUDED.first,
		    second = milestones.second OR EXCLUDED.second,
		    updated_at = NOW()
	`, mint, state.FirstCrossed, state.SecondCrossed)
	if err != nil {
		return fmt.Errorf("保存里程碑 %s 失败: %w", mint, err)
	}
	return nil
}
