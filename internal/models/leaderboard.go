package models

import "time"

// ScoreRecord is a persisted final result
type ScoreRecord struct {
	ID          string       `json:"id"`
	Username    string       `json:"username"`
	SessionCode string       `json:"session_code,omitempty"`
	Edition     string       `json:"edition"`
	TotalScore  int          `json:"total_score"`
	Tier        int          `json:"tier"`
	StepScores  map[Step]int `json:"step_scores"`
	CompletedAt time.Time    `json:"completed_at"`
}

// ScoreRecordFromResult maps a final result onto its persisted form
func ScoreRecordFromResult(id string, r *Result) *ScoreRecord {
	scores := make(map[Step]int, len(r.StepScores))
	for k, v := range r.StepScores {
		scores[k] = v
	}
	return &ScoreRecord{
		ID:          id,
		Username:    r.Username,
		SessionCode: r.SessionCode,
		Edition:     r.Edition,
		TotalScore:  r.TotalScore,
		Tier:        r.OverallTier,
		StepScores:  scores,
		CompletedAt: r.CompletedAt,
	}
}

// LeaderboardEntry is one ranked player: their best score, earliest completion wins ties
type LeaderboardEntry struct {
	Rank        int          `json:"rank"`
	Username    string       `json:"username"`
	TotalScore  int          `json:"total_score"`
	Tier        int          `json:"tier"`
	StepScores  map[Step]int `json:"step_scores"`
	CompletedAt time.Time    `json:"completed_at"`
}

// SessionStats summarizes completed play-throughs of a session
type SessionStats struct {
	SessionCode      string      `json:"session_code"`
	Players          int         `json:"players"`
	Completed        int         `json:"completed"`
	AverageScore     float64     `json:"average_score"`
	BestScore        int         `json:"best_score"`
	WorstScore       int         `json:"worst_score"`
	TierDistribution map[int]int `json:"tier_distribution"`
}

// RankEntries assigns 1-based ranks in slice order
func RankEntries(entries []LeaderboardEntry) {
	for i := range entries {
		entries[i].Rank = i + 1
	}
}

// BoardUpdate is a session leaderboard as pushed to live viewers
type BoardUpdate struct {
	Type        string             `json:"type"` // "leaderboard" or "error"
	SessionCode string             `json:"session_code"`
	Entries     []LeaderboardEntry `json:"entries,omitempty"`
	Error       string             `json:"error,omitempty"`
}
