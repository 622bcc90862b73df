package session

import (
	"math/rand/v2"

	"ad-eraser-server/config"
)

// Target is the layout of the single active ad. The client renders it; game logic only uses Seq.
type Target struct {
	Seq        int      `json:"seq"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	CloseTop   int      `json:"closeTop"`
	CloseRight int      `json:"closeRight"`
	Creative   Creative `json:"creative"`
}

// Creative is the text content of an ad target.
type Creative struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// defaultCreatives returns the placeholder ad copy drawn for each target.
func defaultCreatives() []Creative {
	return []Creative{
		{Title: "Limited-time campaign!", Body: "50% off this week only"},
		{Title: "New arrival", Body: "Free shipping today"},
		{Title: "Download the app", Body: "Install now"},
		{Title: "Exclusive offer", Body: "24-hour flash sale"},
		{Title: "Members wanted", Body: "Perks galore"},
	}
}

// TargetSource produces the layout of each new target.
type TargetSource interface {
	Next() Target
}

// RandomTargets draws layouts uniformly within the configured bounds.
type RandomTargets struct {
	bounds    config.TargetConfig
	creatives []Creative
	rng       *rand.Rand
}

// NewRandomTargets returns a TargetSource using rng; a nil rng uses a randomly seeded PCG.
func NewRandomTargets(bounds config.TargetConfig, rng *rand.Rand) *RandomTargets {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &RandomTargets{bounds: bounds, creatives: defaultCreatives(), rng: rng}
}

// Next returns a new target layout. Seq is assigned by the engine.
func (r *RandomTargets) Next() Target {
	return Target{
		Width:      r.between(r.bounds.MinWidth, r.bounds.MaxWidth),
		Height:     r.between(r.bounds.MinHeight, r.bounds.MaxHeight),
		CloseTop:   r.between(r.bounds.CloseOffsetMin, r.bounds.CloseOffsetMax),
		CloseRight: r.between(r.bounds.CloseOffsetMin, r.bounds.CloseOffsetMax),
		Creative:   r.creatives[r.rng.IntN(len(r.creatives))],
	}
}

// between returns an int in [lo, hi]; inverted bounds collapse to lo.
func (r *RandomTargets) between(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + r.rng.IntN(hi-lo+1)
}
