package consensus

import (
	"testing"

	"github.com/omakh-hive/queen/internal/config"
	"github.com/omakh-hive/queen/internal/registry"
)

func defaultCfg() config.ConsensusConfig {
	return config.Defaults().Consensus
}

func TestEngine_DecideApprovesHighScore(t *testing.T) {
	cfg := defaultCfg()
	e := New(&cfg, nil)

	inputs := map[string]registry.Result{
		"security": {Success: true, Data: map[string]any{"score": 90.0}},
		"treasury": {Success: true, Data: map[string]any{"score": 85.0}},
	}
	d := e.Decide(inputs)
	if d.Action != ActionApprove {
		t.Fatalf("expected approve, got %s (score=%v)", d.Action, d.Score)
	}
}

func TestEngine_DecideRejectsLowScore(t *testing.T) {
	cfg := defaultCfg()
	e := New(&cfg, nil)

	inputs := map[string]registry.Result{
		"security": {Success: true, Data: map[string]any{"score": 10.0}},
	}
	d := e.Decide(inputs)
	if d.Action != ActionReject {
		t.Fatalf("expected reject, got %s", d.Action)
	}
}

func TestEngine_DecideReviewBand(t *testing.T) {
	cfg := defaultCfg()
	e := New(&cfg, nil)

	inputs := map[string]registry.Result{
		"security": {Success: true, Data: map[string]any{"score": 55.0}},
	}
	d := e.Decide(inputs)
	if d.Action != ActionReview {
		t.Fatalf("expected review, got %s", d.Action)
	}
}

func TestEngine_UnknownSourceIgnored(t *testing.T) {
	cfg := defaultCfg()
	e := New(&cfg, nil)

	inputs := map[string]registry.Result{
		"not-a-real-source": {Success: true, Data: map[string]any{"score": 100.0}},
	}
	d := e.Decide(inputs)
	if d.Score != 0 {
		t.Fatalf("expected unknown source to contribute nothing, got score=%v", d.Score)
	}
}

func TestEngine_ConfidenceHighFarFromThreshold(t *testing.T) {
	cfg := defaultCfg()
	e := New(&cfg, nil)

	inputs := map[string]registry.Result{
		"security": {Success: true, Data: map[string]any{"score": 99.0}},
	}
	d := e.Decide(inputs)
	if d.Confidence != ConfidenceHigh {
		t.Fatalf("expected high confidence, got %s", d.Confidence)
	}
}

func TestBuildConsensus_StrongApprove(t *testing.T) {
	votes := []Vote{
		{Source: "a", Vote: "approve", Weight: 8},
		{Source: "b", Vote: "reject", Weight: 2},
	}
	result := BuildConsensus(votes)
	if result.Consensus != "approve" || result.Strength != StrengthStrong {
		t.Fatalf("expected strong approve, got %+v", result)
	}
}

func TestBuildConsensus_WeakSplit(t *testing.T) {
	votes := []Vote{
		{Source: "a", Vote: "approve", Weight: 6},
		{Source: "b", Vote: "reject", Weight: 4},
	}
	result := BuildConsensus(votes)
	if result.Consensus != "approve" || result.Strength != StrengthWeak {
		t.Fatalf("expected weak approve, got %+v", result)
	}
}

func TestResolveConflict_PicksHigherPriority(t *testing.T) {
	cfg := defaultCfg()
	winner := ResolveConflict(&cfg, []string{"pattern", "security", "treasury"})
	if winner != "security" {
		t.Fatalf("expected security to win, got %s", winner)
	}
}

func TestResolveConflict_UnknownSourceIsLowestPriority(t *testing.T) {
	cfg := defaultCfg()
	winner := ResolveConflict(&cfg, []string{"mystery", "data"})
	if winner != "data" {
		t.Fatalf("expected data to outrank an unknown source, got %s", winner)
	}
}
