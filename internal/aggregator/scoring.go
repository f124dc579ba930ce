package aggregator

// confidenceWeight returns the base priority contribution for a stated
// confidence level.
func confidenceWeight(level string) float64 {
	switch level {
	case "high":
		return 0.9
	case "medium":
		return 0.6
	case "low":
		return 0.3
	default:
		return 0.5
	}
}

// priorityScore derives an insight's ranking score from its confidence level
// and the amount of supporting evidence. Evidence saturates: past five
// supporting items the score stops growing.
func priorityScore(confidenceLevel string, evidenceCount int) float64 {
	if evidenceCount > 5 {
		evidenceCount = 5
	}
	return clamp(confidenceWeight(confidenceLevel) + 0.02*float64(evidenceCount))
}

func clamp(score float64) float64 {
	if score < 0.0 {
		return 0.0
	}
	if score > 1.0 {
		return 1.0
	}
	return score
}
