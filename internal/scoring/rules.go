package scoring

import "github.com/terra-clan/mot-engine/internal/models"

// Tier thresholds on the 0..15 total
const (
	tierThreeMin = 15
	tierTwoMin   = 10
)

// RateStep1 looks up the fixed archetype rating
func RateStep1(key *models.AnswerKey, choice string) int {
	return key.Step1[choice]
}

// RateStep2 counts chosen items whose matrix position is optimal.
// Unknown IDs have no position and never match; 0 is a valid outcome.
func RateStep2(key *models.AnswerKey, choices []string) int {
	optimal := make(map[int]bool, len(key.Step2Optimal))
	for _, pos := range key.Step2Optimal {
		optimal[pos] = true
	}
	matches := 0
	for _, id := range choices {
		if pos, ok := key.Step2Positions[id]; ok && optimal[pos] {
			optimal[pos] = false
			matches++
		}
	}
	return clampStars(matches)
}

// RateStep3 counts categories answered with their optimal pilot.
// Floors at 1 star once played, unlike step 2.
func RateStep3(key *models.AnswerKey, choices map[string]string) int {
	matches := 0
	for category, optimal := range key.Step3Optimal {
		if choices[category] == optimal {
			matches++
		}
	}
	switch {
	case matches >= 3:
		return 3
	case matches == 2:
		return 2
	default:
		return 1
	}
}

// RateStep4 compares the funded enablers with the optimal subset:
// all present is 3 stars, exactly one missing is 2, anything else 1.
// Extra picks outside the subset are not penalized.
func RateStep4(key *models.AnswerKey, choices []string) int {
	chosen := make(map[string]bool, len(choices))
	for _, id := range choices {
		chosen[id] = true
	}
	matches := 0
	for _, id := range key.Step4Optimal {
		if chosen[id] {
			matches++
		}
	}
	switch missing := len(key.Step4Optimal) - matches; missing {
	case 0:
		return 3
	case 1:
		return 2
	default:
		return 1
	}
}

// RateStep5 looks up the fixed deployment rating
func RateStep5(key *models.AnswerKey, choice string) int {
	return key.Step5[choice]
}

// Tier maps a total score to the overall star tier
func Tier(total int) int {
	switch {
	case total >= tierThreeMin:
		return 3
	case total >= tierTwoMin:
		return 2
	default:
		return 1
	}
}

func clampStars(n int) int {
	if n < 0 {
		return 0
	}
	if n > models.MaxStars {
		return models.MaxStars
	}
	return n
}
