package engine

import "strings"

// scoreResponse derives a normalized 0-1 quality score for a candidate
// answer. It is a deterministic heuristic: substance (length in words) plus
// overlap with the topics the question surfaced. A proper scoring pass can
// replace it behind the same signature; everything downstream only sees the
// normalized value.
func scoreResponse(answer, question string, topics []string) float64 {
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return 0
	}

	words := len(strings.Fields(answer))
	var score float64
	switch {
	case words >= 120:
		score = 0.6
	case words >= 40:
		score = 0.5
	case words >= 15:
		score = 0.35
	default:
		score = 0.15
	}

	lowered := strings.ToLower(answer)
	matched := 0
	for _, t := range topics {
		if strings.Contains(lowered, strings.ToLower(t)) {
			matched++
		}
	}
	if len(topics) > 0 {
		score += 0.4 * float64(matched) / float64(len(topics))
	} else if question != "" {
		// No known topics: credit echoing the question's key terms.
		qwords := strings.Fields(strings.ToLower(question))
		hits := 0
		long := 0
		for _, w := range qwords {
			if len(w) < 6 {
				continue
			}
			long++
			if strings.Contains(lowered, w) {
				hits++
			}
		}
		if long > 0 {
			score += 0.3 * float64(hits) / float64(long)
		}
	}

	if score > 1 {
		score = 1
	}
	return score
}
