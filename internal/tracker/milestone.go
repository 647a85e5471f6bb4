package tracker

// Evaluate 根据市值判断是否达到新的里程碑。高阈值优先，每轮每个代币最多触发一次。
// 返回需要通知的级别和更新后的状态，没有新里程碑时返回 TierNone 和原状态。
func Evaluate(state MilestoneState, marketCap float64, th Thresholds) (Tier, MilestoneState) {
	switch {
	case marketCap >= th.Second && !state.SecondCrossed:
		return TierSecond, MilestoneState{FirstCrossed: true, SecondCrossed: true}
	case marketCap >= th.First && !state.FirstCrossed:
		state.FirstCrossed = true
		return TierFirst, state
	default:
		return TierNone, state
	}
}
