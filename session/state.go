package session

// Snapshot is a read-only view of an engine.
type Snapshot struct {
	State        string `json:"state"`
	RemainingSec int    `json:"remainingSec"`
	Score        int    `json:"score"`
	Combo        int    `json:"combo"`
	Target       Target `json:"target"`
}

// Snapshot returns the current view of the session.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		State:        e.state.String(),
		RemainingSec: e.remaining,
		Score:        e.score,
		Combo:        e.combo,
		Target:       e.target,
	}
}

// StateMsg is pushed to the client after every tick and miss.
type StateMsg struct {
	Type         string `json:"type"`
	RemainingSec int    `json:"remainingSec"`
	Score        int    `json:"score"`
	Combo        int    `json:"combo"`
}

// AdvanceMsg tells the client to replace the dismissed target.
type AdvanceMsg struct {
	Type string `json:"type"`
	Advance
	RemainingSec int `json:"remainingSec"`
}

// BuildStateMsg creates a StateMsg from a Snapshot.
func BuildStateMsg(s Snapshot) StateMsg {
	return StateMsg{
		Type:         "state",
		RemainingSec: s.RemainingSec,
		Score:        s.Score,
		Combo:        s.Combo,
	}
}
