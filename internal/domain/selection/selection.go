// Package selection scores competing candidates for a single "pick one"
// decision and applies the cooldown and minimum-signal filters.
package selection

import "sort"

// Phase is the lifecycle stage of a tracked candidate.
type Phase string

const (
	PhaseEmerging  Phase = "emerging"
	PhaseDebating  Phase = "debating"
	PhaseBuilding  Phase = "building"
	PhaseMature    Phase = "mature"
	PhaseDeclining Phase = "declining"
)

// lifecycleBonus is the fixed multiplier table applied to the raw score.
var lifecycleBonus = map[Phase]float64{
	PhaseEmerging:  1.0,
	PhaseDebating:  1.5,
	PhaseBuilding:  1.3,
	PhaseMature:    0.5,
	PhaseDeclining: 0.2,
}

// Bonus returns the multiplier for a phase; unknown phases are neutral.
func Bonus(p Phase) float64 {
	if b, ok := lifecycleBonus[p]; ok {
		return b
	}
	return 1.0
}

// Candidate is a tracked topic competing for selection.
type Candidate struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Velocity        float64 `json:"velocity"`
	SourceDiversity float64 `json:"source_diversity"`
	Phase           Phase   `json:"lifecycle_phase"`
	MentionCount    int     `json:"mention_count"`
	SourceTiers     int     `json:"source_tiers"`
	// LastSelectedCycle is the most recent cycle the candidate was picked
	// in, or nil if it never was.
	LastSelectedCycle *int `json:"last_selected_cycle,omitempty"`
}

// Scored is a candidate together with its scores.
type Scored struct {
	Candidate
	RawScore   float64 `json:"raw_score"`
	FinalScore float64 `json:"final_score"`
}

// Score computes raw = velocity × source_diversity and final = raw × bonus[phase].
func Score(c Candidate) Scored {
	raw := c.Velocity * c.SourceDiversity
	return Scored{Candidate: c, RawScore: raw, FinalScore: raw * Bonus(c.Phase)}
}

// Params configures filtering and the selection threshold.
type Params struct {
	CooldownCycles int     `yaml:"cooldown_cycles"`
	MinMentions    int     `yaml:"min_mentions"`
	MinSourceTiers int     `yaml:"min_source_tiers"`
	MinScore       float64 `yaml:"min_score"`
	SynthesisSize  int     `yaml:"synthesis_size"`
}

// DefaultParams returns the default selection parameters.
func DefaultParams() Params {
	return Params{
		CooldownCycles: 3,
		MinMentions:    5,
		MinSourceTiers: 2,
		MinScore:       10,
		SynthesisSize:  3,
	}
}

// Mode is the kind of decision a selection produced.
type Mode string

const (
	ModeNone      Mode = "none"
	ModeSingle    Mode = "single"
	ModeSynthesis Mode = "synthesis"
)

// Decision is the outcome of one selection cycle.
type Decision struct {
	Mode  Mode     `json:"mode"`
	Cycle int      `json:"cycle"`
	Picks []Scored `json:"picks"`
}

// OnCooldown reports whether c was selected within the last k cycles
// relative to cycle.
func OnCooldown(c *Candidate, cycle, k int) bool {
	if c.LastSelectedCycle == nil || k <= 0 {
		return false
	}
	return cycle-*c.LastSelectedCycle <= k
}

// HasSignal reports whether c clears the minimum mention and tier filters.
func HasSignal(c *Candidate, p Params) bool {
	return c.MentionCount >= p.MinMentions && c.SourceTiers >= p.MinSourceTiers
}

// Rank scores candidates and sorts them by final score, highest first.
// Ties keep a stable order by ID.
func Rank(cands []Candidate) []Scored {
	out := make([]Scored, 0, len(cands))
	for _, c := range cands {
		out = append(out, Score(c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FinalScore != out[j].FinalScore {
			return out[i].FinalScore > out[j].FinalScore
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Select runs one selection cycle. Filters run before ranking; the best
// survivor above MinScore wins. Otherwise the top SynthesisSize survivors
// form a synthesis unit; when every candidate was filtered out, the top
// candidates overall are used instead. No candidates yields ModeNone.
func Select(cands []Candidate, cycle int, p Params) Decision {
	if len(cands) == 0 {
		return Decision{Mode: ModeNone, Cycle: cycle}
	}

	survivors := make([]Candidate, 0, len(cands))
	for i := range cands {
		if OnCooldown(&cands[i], cycle, p.CooldownCycles) {
			continue
		}
		if !HasSignal(&cands[i], p) {
			continue
		}
		survivors = append(survivors, cands[i])
	}

	ranked := Rank(survivors)
	if len(ranked) > 0 && ranked[0].FinalScore > p.MinScore {
		return Decision{Mode: ModeSingle, Cycle: cycle, Picks: ranked[:1]}
	}

	if len(ranked) == 0 {
		ranked = Rank(cands)
	}
	n := p.SynthesisSize
	if n <= 0 {
		n = 3
	}
	if n > len(ranked) {
		n = len(ranked)
	}
	return Decision{Mode: ModeSynthesis, Cycle: cycle, Picks: ranked[:n]}
}
