package models

import (
	"time"
)

// PlayerPath is one player's play-through: stored choices plus derived scores and unlocks.
// Scores and unlocks are only ever written by the scoring engine.
type PlayerPath struct {
	ID          string `json:"id"`
	SessionCode string `json:"session_code"`
	Username    string `json:"username"`
	Edition     string `json:"edition"`

	NextStep Step `json:"next_step,omitempty"` // zero once step 5 is recorded

	Step1Choice  string            `json:"step1_choice,omitempty"`
	Step2Choices []string          `json:"step2_choices,omitempty"`
	Step3Choices map[string]string `json:"step3_choices,omitempty"`
	Step4Choices []string          `json:"step4_choices,omitempty"`
	Step5Choice  string            `json:"step5_choice,omitempty"`

	StepScores  map[Step]int   `json:"step_scores"` // played steps only
	TotalScore  int            `json:"total_score"`
	OverallTier int            `json:"overall_tier,omitempty"`
	Unlocked    UnlockSnapshot `json:"unlocked"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewPlayerPath creates an empty path positioned at step 1
func NewPlayerPath(id, sessionCode, username, edition string) *PlayerPath {
	now := time.Now().UTC()
	return &PlayerPath{
		ID:          id,
		SessionCode: sessionCode,
		Username:    username,
		Edition:     edition,
		NextStep:    Step1,
		StepScores:  make(map[Step]int),
		Unlocked:    EmptyUnlockSnapshot(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Played reports whether the step has a recorded choice
func (p *PlayerPath) Played(s Step) bool {
	switch s {
	case Step1:
		return p.Step1Choice != ""
	case Step2:
		return len(p.Step2Choices) > 0
	case Step3:
		return len(p.Step3Choices) > 0
	case Step4:
		return len(p.Step4Choices) > 0
	case Step5:
		return p.Step5Choice != ""
	}
	return false
}

// Score returns the step rating and whether the step has been played.
// A step that was played and scored 0 returns (0, true).
func (p *PlayerPath) Score(s Step) (int, bool) {
	score, ok := p.StepScores[s]
	return score, ok
}

// Completed reports whether all five steps are recorded
func (p *PlayerPath) Completed() bool {
	return p.CompletedAt != nil
}

// Clone returns a deep copy
func (p *PlayerPath) Clone() *PlayerPath {
	if p == nil {
		return nil
	}
	c := *p
	c.Step2Choices = cloneStrings(p.Step2Choices)
	c.Step4Choices = cloneStrings(p.Step4Choices)
	if p.Step3Choices != nil {
		c.Step3Choices = make(map[string]string, len(p.Step3Choices))
		for k, v := range p.Step3Choices {
			c.Step3Choices[k] = v
		}
	}
	c.StepScores = make(map[Step]int, len(p.StepScores))
	for k, v := range p.StepScores {
		c.StepScores[k] = v
	}
	c.Unlocked = p.Unlocked.Clone()
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// UnlockSnapshot is the derived unlock state in its three views plus use cases
type UnlockSnapshot struct {
	Capabilities []string            `json:"capabilities"`
	ByCategory   map[string][]string `json:"by_category"`
	ByStep       map[Step][]string   `json:"by_step"`
	UseCases     []string            `json:"use_cases"`
}

// EmptyUnlockSnapshot returns a snapshot with an empty bucket for every step
func EmptyUnlockSnapshot() UnlockSnapshot {
	byStep := make(map[Step][]string, StepCount)
	for _, s := range AllSteps {
		byStep[s] = []string{}
	}
	return UnlockSnapshot{
		Capabilities: []string{},
		ByCategory:   make(map[string][]string),
		ByStep:       byStep,
		UseCases:     []string{},
	}
}

// Clone returns a deep copy
func (u UnlockSnapshot) Clone() UnlockSnapshot {
	c := UnlockSnapshot{
		Capabilities: cloneStrings(u.Capabilities),
		UseCases:     cloneStrings(u.UseCases),
		ByCategory:   make(map[string][]string, len(u.ByCategory)),
		ByStep:       make(map[Step][]string, len(u.ByStep)),
	}
	for k, v := range u.ByCategory {
		c.ByCategory[k] = cloneStrings(v)
	}
	for k, v := range u.ByStep {
		c.ByStep[k] = cloneStrings(v)
	}
	return c
}

// ScoreSummary is the running score over played steps
type ScoreSummary struct {
	Scores      map[Step]int `json:"scores"`
	Total       int          `json:"total"`
	MaxPossible int          `json:"max_possible"`
}

// Result is the immutable record produced after step 5.
// Its fields are exactly what the leaderboard persists.
type Result struct {
	PathID      string         `json:"path_id"`
	Username    string         `json:"username"`
	SessionCode string         `json:"session_code"`
	Edition     string         `json:"edition"`
	TotalScore  int            `json:"total_score"`
	OverallTier int            `json:"overall_tier"`
	StepScores  map[Step]int   `json:"step_scores"`
	Unlocked    UnlockSnapshot `json:"unlocked"`
	Impact      string         `json:"impact_message"`
	CompletedAt time.Time      `json:"completed_at"`
}

// StepOutcome is returned after a successful step submission
type StepOutcome struct {
	Step     Step        `json:"step"`
	Stars    int         `json:"stars"`
	Message  string      `json:"message"`
	NextStep Step        `json:"next_step,omitempty"`
	Path     *PlayerPath `json:"path"`
	Result   *Result     `json:"result,omitempty"`
}

// StepSubmission carries the player's answer for one step.
// Which field is read depends on the step.
type StepSubmission struct {
	Choice     string            `json:"choice,omitempty"`      // steps 1 and 5
	Choices    []string          `json:"choices,omitempty"`     // steps 2 and 4
	ByCategory map[string]string `json:"by_category,omitempty"` // step 3
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
