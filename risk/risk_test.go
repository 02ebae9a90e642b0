package risk

import (
	"io"
	"log/slog"
	"testing"

	"github.com/finshore/ledgerflow"
)

func testScorer() *Scorer {
	return NewScorer(ledgerflow.DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestScore(t *testing.T) {
	low := ledgerflow.SeverityLow
	med := ledgerflow.SeverityMedium
	high := ledgerflow.SeverityHigh
	crit := ledgerflow.SeverityCritical

	tests := []struct {
		name string
		sevs []ledgerflow.Severity
		want Level
	}{
		{"empty", nil, LevelLow},
		{"lows only", []ledgerflow.Severity{low, low, low}, LevelLow},
		{"single medium", []ledgerflow.Severity{med}, LevelMedium},
		{"single high", []ledgerflow.Severity{high}, LevelMedium},
		{"two highs", []ledgerflow.Severity{high, high}, LevelHigh},
		{"single critical", []ledgerflow.Severity{crit}, LevelCritical},
		{"critical beats highs", []ledgerflow.Severity{high, high, high, crit}, LevelCritical},
		{"high beats mediums", []ledgerflow.Severity{med, med, med, high, high}, LevelHigh},
		{"mixed low and medium", []ledgerflow.Severity{low, med, low}, LevelMedium},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testScorer().Score(tt.sevs); got != tt.want {
				t.Errorf("Score(%v) = %v, want %v", tt.sevs, got, tt.want)
			}
		})
	}
}

func TestScoreCustomThresholds(t *testing.T) {
	cfg := ledgerflow.DefaultConfig()
	cfg.CriticalThreshold = 2
	cfg.HighThreshold = 1
	s := NewScorer(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))

	// A lone critical does not meet the raised threshold and matches no
	// later rule.
	if got := s.Score([]ledgerflow.Severity{ledgerflow.SeverityCritical}); got != LevelLow {
		t.Errorf("Score(one critical, threshold 2) = %v, want low", got)
	}
	if got := s.Score([]ledgerflow.Severity{ledgerflow.SeverityHigh}); got != LevelHigh {
		t.Errorf("Score(one high, threshold 1) = %v, want high", got)
	}
	both := []ledgerflow.Severity{ledgerflow.SeverityCritical, ledgerflow.SeverityCritical}
	if got := s.Score(both); got != LevelCritical {
		t.Errorf("Score(two criticals, threshold 2) = %v, want critical", got)
	}
}

func TestLevelOrdering(t *testing.T) {
	if !LevelCritical.AtLeast(LevelHigh) {
		t.Error("critical should be at least high")
	}
	if !LevelHigh.AtLeast(LevelHigh) {
		t.Error("high should be at least high")
	}
	if LevelLow.AtLeast(LevelMedium) {
		t.Error("low should not be at least medium")
	}
	for _, l := range []Level{LevelLow, LevelMedium, LevelHigh, LevelCritical} {
		if !l.Valid() {
			t.Errorf("%v should be valid", l)
		}
	}
	if Level("extreme").Valid() {
		t.Error("unknown level should be invalid")
	}
}

func TestTally(t *testing.T) {
	var tl Tally
	for _, s := range []ledgerflow.Severity{
		ledgerflow.SeverityLow,
		ledgerflow.SeverityMedium,
		ledgerflow.SeverityMedium,
		ledgerflow.SeverityHigh,
		ledgerflow.SeverityCritical,
		ledgerflow.Severity("bogus"),
	} {
		tl.Add(s)
	}
	if tl.Low != 1 || tl.Medium != 2 || tl.High != 1 || tl.Critical != 1 {
		t.Errorf("tally = %+v", tl)
	}
	if tl.Total() != 5 {
		t.Errorf("Total() = %d, want 5", tl.Total())
	}
}
