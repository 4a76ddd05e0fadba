package grade

// Statistics summarizes the total marks of a cohort in one subject.
type Statistics struct {
	Count          int     `json:"count"`
	Average        float64 `json:"average"`
	Highest        float64 `json:"highest"`
	Lowest         float64 `json:"lowest"`
	PassCount      int     `json:"pass_count"`
	FailCount      int     `json:"fail_count"`
	PassPercentage float64 `json:"pass_percentage"`
}

// CohortStatistics computes average, highest & lowest marks and pass/fail counts in a single pass.
// The pass mark is DefaultPassMark unless given. Marks outside [0, 100] are clamped first.
// An empty cohort yields all zeros.
func CohortStatistics(marks []float64, passMark ...float64) Statistics {
	if len(marks) == 0 {
		return Statistics{}
	}

	stats := Statistics{Count: len(marks), Highest: 0, Lowest: 100}
	var total float64
	for _, m := range marks {
		m = clampMarks(m)
		total += m
		if m > stats.Highest {
			stats.Highest = m
		}
		if m < stats.Lowest {
			stats.Lowest = m
		}
		if IsPassed(m, passMark...) {
			stats.PassCount++
		} else {
			stats.FailCount++
		}
	}
	stats.Average = Round2(total / float64(stats.Count))
	stats.PassPercentage = Percentage(float64(stats.PassCount), float64(stats.Count))
	return stats
}
