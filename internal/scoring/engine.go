package scoring

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/terra-clan/mot-engine/internal/models"
)

// Catalog is the read-only content the engine scores against
type Catalog interface {
	Choice(step models.Step, id string) (*models.Choice, bool)
	StepChoices(step models.Step) []*models.Choice
	Step3Categories() []string
	CapabilityCategory(id string) string
	CapabilityCategories() []models.Category
	AnswerKey() *models.AnswerKey
}

// messageSource is implemented by catalogs that carry authored score messages
type messageSource interface {
	ScoreMessage(step models.Step, choiceID string, stars int) (string, bool)
}

// impactSource is implemented by catalogs that carry an authored impact template
type impactSource interface {
	ImpactTemplate() string
}

// Engine validates submissions, rates steps and derives unlocks.
// It holds no per-player state; every call works on the given path.
// Callers must not submit to the same path concurrently.
type Engine struct {
	catalog Catalog
	now     func() time.Time
}

// NewEngine creates an engine bound to one content catalog
func NewEngine(catalog Catalog) *Engine {
	return &Engine{
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Catalog returns the content the engine scores against
func (e *Engine) Catalog() Catalog {
	return e.catalog
}

// Submit dispatches a submission to the rule of the given step
func (e *Engine) Submit(path *models.PlayerPath, step models.Step, sub models.StepSubmission) (*models.StepOutcome, error) {
	switch step {
	case models.Step1:
		return e.SubmitStep1(path, sub.Choice)
	case models.Step2:
		return e.SubmitStep2(path, sub.Choices)
	case models.Step3:
		return e.SubmitStep3(path, sub.ByCategory)
	case models.Step4:
		return e.SubmitStep4(path, sub.Choices)
	case models.Step5:
		return e.SubmitStep5(path, sub.Choice)
	}
	return nil, reject(step, ErrOutOfOrder, "unknown step")
}

// SubmitStep1 records the strategy archetype
func (e *Engine) SubmitStep1(path *models.PlayerPath, choice string) (*models.StepOutcome, error) {
	if err := checkTurn(path, models.Step1); err != nil {
		return nil, err
	}
	if _, ok := e.catalog.Choice(models.Step1, choice); !ok {
		return nil, reject(models.Step1, ErrInvalidChoice, "unknown choice %q", choice)
	}

	path.Step1Choice = choice
	return e.commit(path, models.Step1, RateStep1(e.catalog.AnswerKey(), choice), choice)
}

// SubmitStep2 records the three portfolio picks.
// IDs outside the catalog are kept as submitted and simply never match.
func (e *Engine) SubmitStep2(path *models.PlayerPath, choices []string) (*models.StepOutcome, error) {
	if err := checkTurn(path, models.Step2); err != nil {
		return nil, err
	}
	if len(choices) != 3 {
		return nil, reject(models.Step2, ErrSelectionCount, "got %d", len(choices))
	}
	if dup, ok := firstDuplicate(choices); ok {
		return nil, reject(models.Step2, ErrSelectionCount, "%q selected twice", dup)
	}

	path.Step2Choices = append([]string(nil), choices...)
	return e.commit(path, models.Step2, RateStep2(e.catalog.AnswerKey(), choices), "")
}

// SubmitStep3 records one pilot per sub-category
func (e *Engine) SubmitStep3(path *models.PlayerPath, choices map[string]string) (*models.StepOutcome, error) {
	if err := checkTurn(path, models.Step3); err != nil {
		return nil, err
	}
	categories := e.catalog.Step3Categories()
	if len(choices) != len(categories) {
		return nil, reject(models.Step3, ErrInvalidChoices, "expected %d categories, got %d", len(categories), len(choices))
	}
	for _, category := range categories {
		id, ok := choices[category]
		if !ok {
			return nil, reject(models.Step3, ErrInvalidChoices, "missing category %q", category)
		}
		c, ok := e.catalog.Choice(models.Step3, id)
		if !ok || c.Category != category {
			return nil, reject(models.Step3, ErrInvalidChoices, "%q is not a %s choice", id, category)
		}
	}

	stored := make(map[string]string, len(choices))
	for k, v := range choices {
		stored[k] = v
	}
	path.Step3Choices = stored
	return e.commit(path, models.Step3, RateStep3(e.catalog.AnswerKey(), choices), "")
}

// SubmitStep4 records the funded enablers; their cost must fit the budget
func (e *Engine) SubmitStep4(path *models.PlayerPath, choices []string) (*models.StepOutcome, error) {
	if err := checkTurn(path, models.Step4); err != nil {
		return nil, err
	}
	if dup, ok := firstDuplicate(choices); ok {
		return nil, reject(models.Step4, ErrBudget, "%q selected twice", dup)
	}
	total := 0
	for _, id := range choices {
		c, ok := e.catalog.Choice(models.Step4, id)
		if !ok || c.Cost == nil {
			return nil, reject(models.Step4, ErrBudget, "unknown enabler %q", id)
		}
		total += *c.Cost
	}
	if total < models.MinBudget || total > models.MaxBudget {
		return nil, reject(models.Step4, ErrBudget, "total cost %d outside %d-%d", total, models.MinBudget, models.MaxBudget)
	}

	path.Step4Choices = append([]string(nil), choices...)
	return e.commit(path, models.Step4, RateStep4(e.catalog.AnswerKey(), choices), "")
}

// SubmitStep5 records the deployment option and finalizes the path
func (e *Engine) SubmitStep5(path *models.PlayerPath, choice string) (*models.StepOutcome, error) {
	if err := checkTurn(path, models.Step5); err != nil {
		return nil, err
	}
	if _, ok := e.catalog.Choice(models.Step5, choice); !ok {
		return nil, reject(models.Step5, ErrInvalidChoice, "unknown choice %q", choice)
	}

	path.Step5Choice = choice
	return e.commit(path, models.Step5, RateStep5(e.catalog.AnswerKey(), choice), choice)
}

// commit stores the rating, recomputes unlocks, advances the pointer and
// finalizes after the last step
func (e *Engine) commit(path *models.PlayerPath, step models.Step, stars int, choiceID string) (*models.StepOutcome, error) {
	if path.StepScores == nil {
		path.StepScores = make(map[models.Step]int, models.StepCount)
	}
	path.StepScores[step] = stars
	path.TotalScore = sumScores(path.StepScores)
	path.Unlocked = DeriveUnlocks(e.catalog, path)
	path.UpdatedAt = e.now()

	outcome := &models.StepOutcome{
		Step:    step,
		Stars:   stars,
		Message: e.message(step, choiceID, stars),
		Path:    path,
	}

	if step == models.Step5 {
		path.NextStep = 0
		result, err := e.Finalize(path)
		if err != nil {
			return nil, err
		}
		outcome.Result = result
		return outcome, nil
	}

	path.NextStep = step + 1
	outcome.NextStep = path.NextStep
	return outcome, nil
}

// Finalize computes the total and tier once every step is played and
// stamps the completion time. Calling it again returns the same result.
func (e *Engine) Finalize(path *models.PlayerPath) (*models.Result, error) {
	for _, s := range models.AllSteps {
		if _, ok := path.Score(s); !ok {
			return nil, &ValidationError{Step: s, Err: ErrPathIncomplete, Reason: "not played"}
		}
	}
	path.TotalScore = sumScores(path.StepScores)
	path.OverallTier = Tier(path.TotalScore)
	if path.CompletedAt == nil {
		t := e.now()
		path.CompletedAt = &t
	}
	return e.Result(path)
}

// Result returns the final record of a completed path
func (e *Engine) Result(path *models.PlayerPath) (*models.Result, error) {
	if !path.Completed() {
		next := path.NextStep
		if !next.Valid() {
			next = models.Step5
		}
		return nil, &ValidationError{Step: next, Err: ErrPathIncomplete, Reason: "not played"}
	}
	scores := make(map[models.Step]int, len(path.StepScores))
	for k, v := range path.StepScores {
		scores[k] = v
	}
	return &models.Result{
		PathID:      path.ID,
		Username:    path.Username,
		SessionCode: path.SessionCode,
		Edition:     path.Edition,
		TotalScore:  path.TotalScore,
		OverallTier: path.OverallTier,
		StepScores:  scores,
		Unlocked:    path.Unlocked.Clone(),
		Impact:      e.impact(path.TotalScore, len(path.Unlocked.Capabilities)),
		CompletedAt: *path.CompletedAt,
	}, nil
}

// CurrentScore reports the running score over played steps only
func (e *Engine) CurrentScore(path *models.PlayerPath) models.ScoreSummary {
	scores := make(map[models.Step]int, len(path.StepScores))
	for k, v := range path.StepScores {
		scores[k] = v
	}
	return models.ScoreSummary{
		Scores:      scores,
		Total:       sumScores(scores),
		MaxPossible: models.MaxStars * len(scores),
	}
}

// StepChoices returns the choices offered at a step
func (e *Engine) StepChoices(step models.Step) []*models.Choice {
	return e.catalog.StepChoices(step)
}

func (e *Engine) message(step models.Step, choiceID string, stars int) string {
	if src, ok := e.catalog.(messageSource); ok && choiceID != "" {
		if msg, ok := src.ScoreMessage(step, choiceID, stars); ok {
			return msg
		}
	}
	return DefaultScoreMessage(stars)
}

func (e *Engine) impact(score, capabilities int) string {
	var template string
	if src, ok := e.catalog.(impactSource); ok {
		template = src.ImpactTemplate()
	}
	return ImpactMessage(template, score, models.MaxStars*models.StepCount, capabilities)
}

// DefaultImpactTemplate summarizes a finished run when the content has no template
const DefaultImpactTemplate = "With a score of {score}/{max_score}, you have {capability_count} capabilities available."

// ImpactMessage fills the {score}, {max_score} and {capability_count}
// placeholders of template. An empty template uses DefaultImpactTemplate.
func ImpactMessage(template string, score, maxScore, capabilities int) string {
	if template == "" {
		template = DefaultImpactTemplate
	}
	return strings.NewReplacer(
		"{score}", strconv.Itoa(score),
		"{max_score}", strconv.Itoa(maxScore),
		"{capability_count}", strconv.Itoa(capabilities),
	).Replace(template)
}

// DefaultScoreMessage is shown when the content has no authored message
func DefaultScoreMessage(stars int) string {
	if stars == 1 {
		return "You earned 1 star out of three."
	}
	return fmt.Sprintf("You earned %d stars out of three.", stars)
}

func checkTurn(path *models.PlayerPath, step models.Step) error {
	if path.Completed() {
		return reject(step, ErrPathComplete, "")
	}
	if path.NextStep != step {
		return reject(step, ErrOutOfOrder, "next step is %s", path.NextStep)
	}
	return nil
}

func sumScores(scores map[models.Step]int) int {
	total := 0
	for _, v := range scores {
		total += v
	}
	return total
}

func firstDuplicate(ids []string) (string, bool) {
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return id, true
		}
		seen[id] = true
	}
	return "", false
}
