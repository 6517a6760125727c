package risk

// Weights holds the additive and discount contribution of each scoring
// factor, expressed as config-driven tunables rather than hardcoding magic
// numbers in the engine.
type Weights struct {
	// ProdEnvironment is added when the change's declared environment is
	// production.
	ProdEnvironment float64

	// CoreDeviceTouched is added when any root or directly impacted node is
	// flagged is_core.
	CoreDeviceTouched float64

	// HighDependencyCount is added when the impact snapshot's total
	// dependency count exceeds HighDependencyThreshold.
	HighDependencyCount     float64
	HighDependencyThreshold int

	// NoRollbackPlan is added when the change record has no rollback plan.
	NoRollbackPlan float64

	// OutsideMaintenanceWindow is added when the change would run outside
	// its declared maintenance window.
	OutsideMaintenanceWindow float64

	// PriorIncidentWithin90Days is added when a prior change touching the
	// same target nodes failed within the last 90 days.
	PriorIncidentWithin90Days float64

	// CriticalApplicationAffected is added per distinct critical-criticality
	// application in the impact snapshot, capped at
	// CriticalApplicationCap.
	CriticalApplicationAffected float64
	CriticalApplicationCap      float64

	// AnyAnyRule is added when the change touches a firewall rule flagged
	// is_any_any (an allow/deny spanning any source to any destination).
	AnyAnyRule float64

	// RedundancyDiscount (expected negative) is applied when every
	// application/service in the snapshot's RedundancyAvailable map still
	// has an alternate path after the change. The map covers affected
	// applications and services of any criticality, not only critical ones.
	RedundancyDiscount float64

	// LowCriticalityAddRuleDiscount (expected negative) is applied to an
	// add_rule change whose only affected nodes are low criticality.
	LowCriticalityAddRuleDiscount float64
}

// DefaultWeights returns the engine's scoring table.
func DefaultWeights() Weights {
	return Weights{
		ProdEnvironment:               30,
		CoreDeviceTouched:             40,
		HighDependencyCount:           20,
		HighDependencyThreshold:       10,
		NoRollbackPlan:                25,
		OutsideMaintenanceWindow:      30,
		PriorIncidentWithin90Days:     15,
		CriticalApplicationAffected:   20,
		CriticalApplicationCap:        40,
		AnyAnyRule:                    25,
		RedundancyDiscount:            -10,
		LowCriticalityAddRuleDiscount: -5,
	}
}

// LevelBands are the inclusive upper bounds separating risk levels: a
// clipped score in [0, LowMax] is low, (LowMax, MediumMax] is medium,
// (MediumMax, HighMax] is high, anything above HighMax is critical.
type LevelBands struct {
	LowMax    float64
	MediumMax float64
	HighMax   float64
}

// DefaultBands returns the standard 0-30/31-55/56-75/76-100 banding.
func DefaultBands() LevelBands {
	return LevelBands{LowMax: 30, MediumMax: 55, HighMax: 75}
}

// Config bundles scoring weights, the score's clip bounds, and the level
// bands used to translate a numeric score into a Level.
type Config struct {
	Weights  Weights
	MinScore float64
	MaxScore float64
	Bands    LevelBands
}

// DefaultConfig returns the default risk engine configuration: scores
// clipped to [0, 100] as required.
func DefaultConfig() Config {
	return Config{
		Weights:  DefaultWeights(),
		MinScore: 0,
		MaxScore: 100,
		Bands:    DefaultBands(),
	}
}
