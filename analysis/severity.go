package analysis

// Severity tier names attached to events.
const (
	SeverityHigh    = "high"
	SeverityMedium  = "medium"
	SeverityLow     = "low"
	SeverityVeryLow = "very_low"
)

// SeverityForConfidence maps a confidence score onto its severity tier.
func SeverityForConfidence(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return SeverityHigh
	case confidence >= 0.6:
		return SeverityMedium
	case confidence >= 0.4:
		return SeverityLow
	default:
		return SeverityVeryLow
	}
}
