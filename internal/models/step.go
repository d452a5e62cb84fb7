package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Step identifies one of the five Moments of Truth
type Step int

const (
	Step1 Step = iota + 1
	Step2
	Step3
	Step4
	Step5
)

// StepCount is the fixed number of steps in a play-through
const StepCount = 5

// MaxStars is the best rating a single step can earn
const MaxStars = 3

// AllSteps lists the steps in play order
var AllSteps = []Step{Step1, Step2, Step3, Step4, Step5}

// Valid reports whether s is one of the five steps
func (s Step) Valid() bool {
	return s >= Step1 && s <= Step5
}

// String renders the step as its map key form ("step1".."step5")
func (s Step) String() string {
	return "step" + strconv.Itoa(int(s))
}

// MarshalText lets Step be used as a JSON object key
func (s Step) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText accepts "step3" as well as a bare "3"
func (s *Step) UnmarshalText(b []byte) error {
	parsed, err := ParseStep(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStep parses "stepN" or "N"
func ParseStep(v string) (Step, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(v)), "step"))
	if err != nil {
		return 0, fmt.Errorf("invalid step %q", v)
	}
	s := Step(n)
	if !s.Valid() {
		return 0, fmt.Errorf("step out of range: %d", n)
	}
	return s, nil
}

// Step-4 budget bounds, inclusive
const (
	MinBudget = 1
	MaxBudget = 30
)

// Step-3 sub-categories of the standard editions
const (
	CategoryPeopleProcesses      = "people_processes"
	CategoryPlatformPartnerships = "platform_partnerships"
	CategoryPoliciesGovernance   = "policies_governance"
)

