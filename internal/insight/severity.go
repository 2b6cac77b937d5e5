package insight

// Impact is the qualitative label attached to a finding.
type Impact string

const (
	ImpactCritical      Impact = "critical"
	ImpactHigh          Impact = "high"
	ImpactModerate      Impact = "moderate"
	ImpactLow           Impact = "low"
	ImpactInformational Impact = "informational"
)

// Level is the numeric severity of an insight, 1 (informational) to 5 (critical).
type Level int

const (
	LevelInformational Level = 1
	LevelLow           Level = 2
	LevelModerate      Level = 3
	LevelHigh          Level = 4
	LevelCritical      Level = 5
)

// LevelFromImpact maps an impact label to its severity level.
// Unknown labels map to LevelModerate.
func LevelFromImpact(impact Impact) Level {
	switch impact {
	case ImpactCritical:
		return LevelCritical
	case ImpactHigh:
		return LevelHigh
	case ImpactModerate:
		return LevelModerate
	case ImpactLow:
		return LevelLow
	case ImpactInformational:
		return LevelInformational
	default:
		return LevelModerate
	}
}

// Impact returns the impact label for the level. Out-of-range levels
// report ImpactModerate.
func (l Level) Impact() Impact {
	switch l {
	case LevelCritical:
		return ImpactCritical
	case LevelHigh:
		return ImpactHigh
	case LevelModerate:
		return ImpactModerate
	case LevelLow:
		return ImpactLow
	case LevelInformational:
		return ImpactInformational
	default:
		return ImpactModerate
	}
}

// Text returns the display text for the level.
func (l Level) Text() string {
	switch l {
	case LevelCritical:
		return "Critical"
	case LevelHigh:
		return "High"
	case LevelModerate:
		return "Moderate"
	case LevelLow:
		return "Low"
	case LevelInformational:
		return "Informational"
	default:
		return "Moderate"
	}
}

func (l Level) String() string {
	return string(l.Impact())
}
