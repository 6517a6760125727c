// Package risk scores a proposed change as a deterministic, pure function
// of its impact snapshot and the change record itself. The scoring table
// is domain-specific; its shape, a config-driven weight table evaluated by
// a pure function, expresses tunables as typed, defaulted struct fields
// rather than inline constants.
package risk

import (
	"strings"

	"github.com/opsgrid/changeintel/internal/changetype"
	"github.com/opsgrid/changeintel/internal/graph"
	"github.com/opsgrid/changeintel/internal/impact"
)

// Level is a banded risk classification derived from the numeric score,
// used to pick the base approval role and double-approval requirement.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Factor is a single named contribution to a risk score, kept so a score
// can always be explained back to the requester/approver.
type Factor struct {
	Name         string
	Contribution float64
}

// Input is everything the engine needs to score a change. It is built by
// the workflow controller from the impact snapshot and the change record;
// the engine itself makes no store calls, keeping it a pure function for
// testability and reproducibility.
type Input struct {
	ImpactSnapshot impact.Snapshot

	// Environment is the change's declared environment (e.g. "prod",
	// "staging"). Matched case-insensitively against "prod"/"production".
	Environment string

	Action changetype.Action

	HasRollbackPlan          bool
	OutsideMaintenanceWindow bool
	PriorIncidentWithin90Days bool
}

// Score is the result of scoring a change: the clipped total plus the
// itemized factors that produced it, and the banded level it falls into.
type Score struct {
	Total   float64
	Level   Level
	Factors []Factor
}

// Engine scores changes against a fixed Config.
type Engine struct {
	cfg Config
}

// New creates a risk Engine.
func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func isProd(environment string) bool {
	env := strings.ToLower(environment)
	return env == "prod" || env == "production"
}

// Score computes a deterministic risk score for in. Calling Score twice
// with identical input always yields an identical Score: it reads no
// external state and has no randomness or wall-clock dependency.
func (e *Engine) Score(in Input) Score {
	w := e.cfg.Weights
	var factors []Factor
	add := func(name string, contribution float64) {
		factors = append(factors, Factor{Name: name, Contribution: contribution})
	}

	if isProd(in.Environment) {
		add("prod_environment", w.ProdEnvironment)
	}

	if touchesCoreDevice(in.ImpactSnapshot) {
		add("core_device_touched", w.CoreDeviceTouched)
	}

	if in.ImpactSnapshot.TotalDependencyCount > w.HighDependencyThreshold {
		add("high_dependency_count", w.HighDependencyCount)
	}

	if !in.HasRollbackPlan {
		add("no_rollback_plan", w.NoRollbackPlan)
	}

	if in.OutsideMaintenanceWindow {
		add("outside_maintenance_window", w.OutsideMaintenanceWindow)
	}

	if in.PriorIncidentWithin90Days {
		add("prior_incident_within_90_days", w.PriorIncidentWithin90Days)
	}

	criticalApps := distinctCriticalApplications(in.ImpactSnapshot)
	if criticalApps > 0 {
		contribution := float64(criticalApps) * w.CriticalApplicationAffected
		if contribution > w.CriticalApplicationCap {
			contribution = w.CriticalApplicationCap
		}
		add("critical_application_affected", contribution)
	}

	if involvesAnyAnyRule(in.ImpactSnapshot) {
		add("any_any_rule", w.AnyAnyRule)
	}

	if redundancyAvailableForAllCriticalTargets(in.ImpactSnapshot) {
		add("redundancy_available", w.RedundancyDiscount)
	}

	if in.Action == changetype.ActionAddRule && onlyLowCriticalityTargets(in.ImpactSnapshot) {
		add("low_criticality_add_rule", w.LowCriticalityAddRuleDiscount)
	}

	var total float64
	for _, f := range factors {
		total += f.Contribution
	}

	if total < e.cfg.MinScore {
		total = e.cfg.MinScore
	}
	if total > e.cfg.MaxScore {
		total = e.cfg.MaxScore
	}

	return Score{Total: total, Level: e.cfg.Bands.levelFor(total), Factors: factors}
}

// levelFor bands a clipped score into a Level.
func (b LevelBands) levelFor(score float64) Level {
	switch {
	case score <= b.LowMax:
		return LevelLow
	case score <= b.MediumMax:
		return LevelMedium
	case score <= b.HighMax:
		return LevelHigh
	default:
		return LevelCritical
	}
}

func touchesCoreDevice(snap impact.Snapshot) bool {
	for _, n := range snap.RootNodes {
		if n.IsCore {
			return true
		}
	}
	for _, n := range snap.DirectlyImpacted {
		if n.IsCore {
			return true
		}
	}
	return false
}

func distinctCriticalApplications(snap impact.Snapshot) int {
	seen := make(map[string]bool)
	for _, n := range snap.AllAffected() {
		if n.Kind == graph.NodeApplication && n.Criticality == "critical" {
			seen[n.NodeID] = true
		}
	}
	return len(seen)
}

func involvesAnyAnyRule(snap impact.Snapshot) bool {
	for _, n := range snap.RootNodes {
		if n.IsAnyAny {
			return true
		}
	}
	for _, n := range snap.AllAffected() {
		if n.IsAnyAny {
			return true
		}
	}
	return false
}

// redundancyAvailableForAllCriticalTargets reports whether every affected
// application or service carrying the RedundancyAvailable verdict has an
// alternate path, and there was at least one such target to check.
func redundancyAvailableForAllCriticalTargets(snap impact.Snapshot) bool {
	if len(snap.RedundancyAvailable) == 0 {
		return false
	}
	for _, available := range snap.RedundancyAvailable {
		if !available {
			return false
		}
	}
	return true
}

// onlyLowCriticalityTargets reports whether every affected node's
// criticality is low or unset.
func onlyLowCriticalityTargets(snap impact.Snapshot) bool {
	all := snap.AllAffected()
	if len(all) == 0 {
		return false
	}
	for _, n := range all {
		if n.Criticality != "" && n.Criticality != "low" {
			return false
		}
	}
	return true
}
