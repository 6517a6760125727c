package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/opsgrid/changeintel/internal/changetype"
	"github.com/opsgrid/changeintel/internal/graph"
	"github.com/opsgrid/changeintel/internal/impact"
)

func TestScoreIsDeterministic(t *testing.T) {
	engine := New(DefaultConfig())
	in := Input{
		ImpactSnapshot: impact.Snapshot{
			RootNodes:            []impact.AffectedNode{{NodeID: "dev-1", Kind: graph.NodeDevice, IsCore: true}},
			TotalDependencyCount: 15,
		},
		Environment:     "prod",
		HasRollbackPlan: false,
	}

	first := engine.Score(in)
	second := engine.Score(in)
	assert.Equal(t, first, second)
}

func TestScoreClipsToMax(t *testing.T) {
	engine := New(DefaultConfig())
	in := Input{
		ImpactSnapshot: impact.Snapshot{
			RootNodes:            []impact.AffectedNode{{NodeID: "dev-1", Kind: graph.NodeDevice, IsCore: true, IsAnyAny: true}},
			TotalDependencyCount: 100,
		},
		Environment:                "prod",
		HasRollbackPlan:            false,
		OutsideMaintenanceWindow:   true,
		PriorIncidentWithin90Days:  true,
	}

	score := engine.Score(in)
	assert.LessOrEqual(t, score.Total, 100.0)
	assert.Equal(t, LevelCritical, score.Level)
}

func TestScoreZeroWhenNoRiskFactors(t *testing.T) {
	engine := New(DefaultConfig())
	in := Input{
		ImpactSnapshot:  impact.Snapshot{},
		HasRollbackPlan: true,
	}

	score := engine.Score(in)
	assert.Equal(t, 0.0, score.Total)
	assert.Equal(t, LevelLow, score.Level)
	assert.Empty(t, score.Factors)
}

func TestScoreMatchesHighRiskScenario(t *testing.T) {
	// prod (+30) + core device (+40) + >10 dependencies (+20) + no rollback
	// (+25) + outside window (+30) + prior incident (+15) + two critical
	// apps (+40, at the cap) + ANY-ANY (+25) sums to 225, which clips to the
	// maximal-risk scenario's expected total of 100.
	engine := New(DefaultConfig())
	in := Input{
		ImpactSnapshot: impact.Snapshot{
			RootNodes: []impact.AffectedNode{{NodeID: "fw-1", Kind: graph.NodeDevice, IsCore: true, IsAnyAny: true}},
			DirectlyImpacted: []impact.AffectedNode{
				{NodeID: "app-1", Kind: graph.NodeApplication, Criticality: "critical"},
				{NodeID: "app-2", Kind: graph.NodeApplication, Criticality: "critical"},
			},
			TotalDependencyCount: 20,
		},
		Environment:               "prod",
		HasRollbackPlan:           false,
		OutsideMaintenanceWindow:  true,
		PriorIncidentWithin90Days: true,
	}

	score := engine.Score(in)
	assert.Equal(t, 100.0, score.Total)
	assert.Equal(t, LevelCritical, score.Level)
}

func TestScoreAppliesRedundancyDiscount(t *testing.T) {
	engine := New(DefaultConfig())
	in := Input{
		ImpactSnapshot: impact.Snapshot{
			DirectlyImpacted:    []impact.AffectedNode{{NodeID: "app-1", Kind: graph.NodeApplication}},
			RedundancyAvailable: map[string]bool{"app-1": true},
		},
		HasRollbackPlan: true,
	}

	score := engine.Score(in)
	assert.Equal(t, 0.0, score.Total, "the -10 redundancy discount alone clips up to MinScore 0")
	found := false
	for _, f := range score.Factors {
		if f.Name == "redundancy_available" {
			found = true
			assert.Less(t, f.Contribution, 0.0)
		}
	}
	assert.True(t, found, "expected redundancy_available factor")
}

func TestScoreAppliesLowCriticalityAddRuleDiscount(t *testing.T) {
	engine := New(DefaultConfig())
	in := Input{
		ImpactSnapshot: impact.Snapshot{
			IndirectlyImpacted: []impact.AffectedNode{{NodeID: "app-1", Kind: graph.NodeApplication, Criticality: "low"}},
		},
		Action:          changetype.ActionAddRule,
		HasRollbackPlan: true,
	}

	score := engine.Score(in)
	assert.Equal(t, 0.0, score.Total)
	for _, f := range score.Factors {
		if f.Name == "low_criticality_add_rule" {
			return
		}
	}
	t.Fatal("expected low_criticality_add_rule factor")
}
