package hil

import (
	"strings"
	"sync"
)

// Result is one classification outcome for a proposed action.
type Result struct {
	Triggered         bool
	Pattern           Family
	Confidence        float64
	HighlightedTerms  []string
}

// Detector scores free text against the registered pattern families and
// returns whether human review should be requested.
type Detector struct {
	mu       sync.RWMutex
	patterns map[Family]*Pattern
	feedback map[Family]*feedbackCounters
}

// New builds a Detector seeded with DefaultPatterns.
func New() *Detector {
	d := &Detector{
		patterns: make(map[Family]*Pattern),
		feedback: make(map[Family]*feedbackCounters),
	}
	for _, p := range DefaultPatterns() {
		d.patterns[p.Family] = p
		d.feedback[p.Family] = &feedbackCounters{}
	}
	return d
}

// Classify scores text against every enabled pattern family and returns
// the highest-confidence result (spec §4.7: "triggered = max confidence
// >= pattern threshold").
func (d *Detector) Classify(text string) Result {
	d.mu.RLock()
	defer d.mu.RUnlock()

	lower := strings.ToLower(text)
	var best Result
	for _, p := range d.patterns {
		if !p.Enabled {
			continue
		}
		confidence, terms := score(p, lower)
		if confidence > best.Confidence {
			best = Result{
				Triggered:        confidence >= p.Threshold,
				Pattern:          p.Family,
				Confidence:       confidence,
				HighlightedTerms: terms,
			}
		}
	}
	return best
}

// score computes one pattern's weighted confidence: keyword hits,
// regex hits, and contextual boosters (spec §4.7's scoring contract).
// Each signal uses diminishing-returns saturation (1 - 1/(1+hits)) so a
// single hit already carries most of its signal's weight rather than
// being diluted by how large the family's keyword list happens to be.
func score(p *Pattern, lowerText string) (float64, []string) {
	var terms []string

	keywordHits := 0
	for _, kw := range p.Keywords {
		if strings.Contains(lowerText, kw) {
			keywordHits++
			terms = append(terms, kw)
		}
	}

	regexHits := 0
	for _, re := range p.Regexes {
		if re.MatchString(lowerText) {
			regexHits++
			terms = append(terms, re.String())
		}
	}

	boosterHits := 0
	for _, b := range contextBoosters {
		if strings.Contains(lowerText, b) {
			boosterHits++
		}
	}

	confidence := saturate(keywordHits)*p.KeywordWt + saturate(regexHits)*p.RegexWt + saturate(boosterHits)*p.ContextWt
	if confidence > 1 {
		confidence = 1
	}
	return confidence, terms
}

// saturate maps a hit count to [0,1) with diminishing returns: 0->0,
// 1->0.5, 2->0.667, 3->0.75, ...
func saturate(hits int) float64 {
	if hits <= 0 {
		return 0
	}
	return 1 - 1/(1+float64(hits))
}

// SetEnabled toggles a pattern family on/off.
func (d *Detector) SetEnabled(f Family, enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.patterns[f]; ok {
		p.Enabled = enabled
	}
}

// Pattern returns the current configuration for one family, for
// dashboard display.
func (d *Detector) Pattern(f Family) (*Pattern, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.patterns[f]
	return p, ok
}
