package attention

import (
	"math"
	"strings"
	"time"

	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
)

// Attention modes, in the order the derivation rules check them.
const (
	ModeWandering = "wandering"
	ModeFocused   = "focused"
	ModeAlert     = "alert"
	ModeDivided   = "divided"
	ModeScanning  = "scanning"
)

// ReasoningHint maps an attention mode to the reasoning mode it suggests.
// The reasoning engine consults this when its own selection rules fall
// through to the default.
var ReasoningHint = map[string]string{
	ModeWandering: "exploratory",
	ModeFocused:   "deliberative",
	ModeAlert:     "reactive",
	ModeDivided:   "deliberative",
	ModeScanning:  "reactive",
}

// Config tunes focus stack behavior.
type Config struct {
	Capacity     int     // max focus entries
	DecayRate    float64 // per-second exponential decay of focus values
	Negligible   float64 // entries below this combined score are dropped
	NoveltyFloor float64 // minimum novelty for familiar content
	ThreatWords  []string
}

// DefaultConfig returns the standard attention tuning.
func DefaultConfig() Config {
	return Config{
		Capacity:     7,
		DecayRate:    0.05,
		Negligible:   0.05,
		NoveltyFloor: 0.3,
		ThreatWords: []string{
			"danger", "threat", "attack", "fire", "alarm",
			"warning", "intruder", "emergency", "critical",
		},
	}
}

// salience is the scored attention value of one percept.
type salience struct {
	percept   stimulus.Percept
	relevance float64
	urgency   float64
	threat    bool
}

// scorePercept computes goal-relevance, novelty, social and threat weights
// for one stimulus. Combined ordering uses 0.6*relevance + 0.4*urgency.
func scorePercept(p stimulus.Percept, goals []world.GoalItem, wm world.WorkingMemory, cfg Config) salience {
	words := keywords(p.Stimulus.Content)

	// Goal relevance: keyword overlap with active goal descriptions,
	// weighted up for high-priority goals.
	goalRel := 0.1
	for _, g := range goals {
		if overlaps(words, keywords(g.Description)) {
			if g.Priority > 0.7 {
				goalRel = 0.8
			} else if goalRel < 0.5 {
				goalRel = 0.5
			}
		}
	}

	// Novelty: content absent from recent working memory scores full,
	// familiar content is floored rather than zeroed.
	novelty := 1.0
	for _, entry := range wm.Entries {
		if overlaps(words, keywords(entry.Content)) {
			novelty = cfg.NoveltyFloor
			break
		}
	}

	social := 0.0
	if p.Stimulus.SourceKind == world.SourceAgent && p.Stimulus.Type != world.StimulusEnvironmental {
		social = 0.3
	}

	threat := false
	urgency := p.Priority
	for _, w := range cfg.ThreatWords {
		if containsWord(words, w) {
			threat = true
			if urgency < 0.9 {
				urgency = 0.9
			}
			break
		}
	}

	relevance := clamp01(0.5*goalRel + 0.3*novelty + 0.2*social)
	return salience{percept: p, relevance: relevance, urgency: clamp01(urgency), threat: threat}
}

// mergeFocus decays the existing stack, folds in new salient items, and
// returns the re-sorted stack truncated to capacity.
func mergeFocus(existing []world.FocusEntry, incoming []salience, since time.Duration, now time.Time, cfg Config) []world.FocusEntry {
	dt := since.Seconds()
	if dt < 0 {
		dt = 0
	}

	kept := make([]world.FocusEntry, 0, len(existing)+len(incoming))
	for _, f := range existing {
		rate := f.DecayRate
		if rate <= 0 {
			rate = cfg.DecayRate
		}
		f.Relevance *= math.Exp(-rate * dt)
		f.Urgency *= math.Exp(-rate * dt)
		if f.Score() < cfg.Negligible {
			continue
		}
		kept = append(kept, f)
	}

	for _, s := range incoming {
		kind := "stimulus"
		if s.threat {
			kind = "threat"
		}
		merged := false
		for i := range kept {
			if kept[i].Target == s.percept.ID {
				// Matching target: keep the stronger of old and new.
				kept[i].Relevance = math.Max(kept[i].Relevance, s.relevance)
				kept[i].Urgency = math.Max(kept[i].Urgency, s.urgency)
				kept[i].Kind = kind
				kept[i].AddedAt = now
				merged = true
				break
			}
		}
		if !merged {
			kept = append(kept, world.FocusEntry{
				Target:    s.percept.ID,
				Kind:      kind,
				Relevance: s.relevance,
				Urgency:   s.urgency,
				DecayRate: cfg.DecayRate,
				AddedAt:   now,
			})
		}
	}

	sortByScore(kept)
	if len(kept) > cfg.Capacity {
		kept = kept[:cfg.Capacity]
	}
	return kept
}

// deriveMode picks the attention mode by explicit rule order. Threat
// entries force "alert" ahead of the single-dominant-item rule so a lone
// urgent threat is never mistaken for calm focus.
func deriveMode(focus []world.FocusEntry, stimulusVolume int) string {
	if len(focus) == 0 {
		return ModeWandering
	}
	urgent := 0
	for _, f := range focus {
		if f.Urgency > 0.6 {
			urgent++
		}
		if f.Kind == "threat" && f.Urgency > 0.6 {
			return ModeAlert
		}
	}
	if urgent > 3 {
		return ModeAlert
	}
	top := focus[0]
	if len(focus) == 1 || (top.Relevance > 0.8 && top.Urgency > 0.8) {
		return ModeFocused
	}
	if len(focus) > 3 && focus[2].Relevance > 0.4 {
		return ModeDivided
	}
	if stimulusVolume > 10 {
		return ModeScanning
	}
	return ModeScanning
}

func sortByScore(entries []world.FocusEntry) {
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].Score() > entries[j-1].Score(); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// keywords lowercases and splits text into significant words.
func keywords(text string) []string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r > 127)
	})
	out := words[:0]
	for _, w := range words {
		if len(w) >= 3 && !stopwords[w] {
			out = append(out, w)
		}
	}
	return out
}

func overlaps(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, w := range a {
		set[w] = true
	}
	for _, w := range b {
		if set[w] {
			return true
		}
	}
	return false
}

func containsWord(words []string, target string) bool {
	for _, w := range words {
		if w == target {
			return true
		}
	}
	return false
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true,
	"but": true, "not": true, "you": true, "all": true,
	"can": true, "had": true, "was": true, "one": true,
	"have": true, "been": true, "this": true, "that": true,
	"with": true, "from": true, "they": true, "will": true,
	"what": true, "when": true, "like": true, "just": true,
	"into": true, "than": true, "them": true, "some": true,
	"there": true, "would": true, "could": true, "now": true,
}
