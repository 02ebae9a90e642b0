// Package risk derives an overall risk level for a record from the
// severities of its accumulated anomalies.
package risk

import (
	"log/slog"

	"github.com/finshore/ledgerflow"
)

// Level is an overall risk rating, ordered low < medium < high < critical.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

var levelRank = map[Level]int{
	LevelLow:      0,
	LevelMedium:   1,
	LevelHigh:     2,
	LevelCritical: 3,
}

// Valid reports whether l is a known level.
func (l Level) Valid() bool {
	_, ok := levelRank[l]
	return ok
}

// AtLeast reports whether l is at or above the given level.
func (l Level) AtLeast(other Level) bool {
	return levelRank[l] >= levelRank[other]
}

func (l Level) String() string { return string(l) }

// Tally counts anomalies by severity.
type Tally struct {
	Low      int
	Medium   int
	High     int
	Critical int
}

// Add increments the count for a severity. Unknown severities are ignored.
func (t *Tally) Add(sev ledgerflow.Severity) {
	switch sev {
	case ledgerflow.SeverityLow:
		t.Low++
	case ledgerflow.SeverityMedium:
		t.Medium++
	case ledgerflow.SeverityHigh:
		t.High++
	case ledgerflow.SeverityCritical:
		t.Critical++
	}
}

// Total returns the number of counted anomalies.
func (t Tally) Total() int {
	return t.Low + t.Medium + t.High + t.Critical
}

// Scorer maps an anomaly tally to a risk level using configurable
// escalation thresholds.
type Scorer struct {
	criticalThreshold int
	highThreshold     int
	logger            *slog.Logger
}

// NewScorer creates a Scorer with thresholds from cfg.
func NewScorer(cfg ledgerflow.Config, logger *slog.Logger) *Scorer {
	return &Scorer{
		criticalThreshold: cfg.CriticalThreshold,
		highThreshold:     cfg.HighThreshold,
		logger:            logger,
	}
}

// Score returns the risk level for a set of anomaly severities. Rules are
// evaluated in priority order and the first match wins:
//
//  1. critical count at or above the critical threshold yields critical
//  2. high count at or above the high threshold yields high
//  3. three or more mediums, any high, or any medium yields medium
//  4. anything else is low
func (s *Scorer) Score(sevs []ledgerflow.Severity) Level {
	var t Tally
	for _, sev := range sevs {
		t.Add(sev)
	}
	return s.ScoreTally(t)
}

// ScoreTally is Score over pre-counted severities.
func (s *Scorer) ScoreTally(t Tally) Level {
	level := LevelLow
	switch {
	case t.Critical >= s.criticalThreshold:
		level = LevelCritical
	case t.High >= s.highThreshold:
		level = LevelHigh
	case t.Medium >= 3 || t.High >= 1 || t.Medium >= 1:
		level = LevelMedium
	}

	s.logger.Debug("risk scored",
		slog.String("level", level.String()),
		slog.Int("critical", t.Critical),
		slog.Int("high", t.High),
		slog.Int("medium", t.Medium),
		slog.Int("low", t.Low),
	)

	return level
}
