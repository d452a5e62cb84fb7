package catalog

import (
	"github.com/terra-clan/mot-engine/internal/models"
)

// Edition is one loaded content pack: steps, choices, capability tables and answer key.
// An Edition is immutable once built and safe for concurrent reads.
type Edition struct {
	ID       string
	Title    string
	Subtitle string
	Company  string

	steps   map[models.Step]*models.StepInfo
	choices map[models.Step]map[string]*models.Choice

	capabilities    map[string]*models.Capability
	capabilityOrder []string
	categories      []models.Category
	step3Categories []models.Category
	useCases        map[string]*models.UseCase
	useCaseOrder    []string
	answerKey       models.AnswerKey
	scoreMessages   map[models.Step]map[string]map[int]string
	impactTemplate  string
}

// Summary returns the edition header with table sizes
func (e *Edition) Summary() models.EditionSummary {
	return models.EditionSummary{
		ID:           e.ID,
		Title:        e.Title,
		Subtitle:     e.Subtitle,
		Company:      e.Company,
		Capabilities: len(e.capabilities),
		UseCases:     len(e.useCases),
	}
}

// Step returns a step with its ordered choices
func (e *Edition) Step(step models.Step) (*models.StepInfo, bool) {
	info, ok := e.steps[step]
	return info, ok
}

// StepChoices returns the choices of a step in catalog order
func (e *Edition) StepChoices(step models.Step) []*models.Choice {
	info, ok := e.steps[step]
	if !ok {
		return nil
	}
	return info.Choices
}

// StepView returns the step as shown to players. The answer key never leaves the catalog.
func (e *Edition) StepView(step models.Step) (*models.StepView, bool) {
	info, ok := e.steps[step]
	if !ok {
		return nil, false
	}
	view := &models.StepView{
		Step:        info.Step,
		Title:       info.Title,
		Description: info.Description,
		Choices:     make([]models.ChoiceView, 0, len(info.Choices)),
	}
	if step == models.Step3 {
		view.Categories = e.step3Categories
	}
	for _, c := range info.Choices {
		view.Choices = append(view.Choices, c.View())
	}
	return view, true
}

// Choice looks up a choice by step and ID
func (e *Edition) Choice(step models.Step, id string) (*models.Choice, bool) {
	c, ok := e.choices[step][id]
	return c, ok
}

// Step3Categories returns the step-3 sub-category IDs in display order
func (e *Edition) Step3Categories() []string {
	ids := make([]string, len(e.step3Categories))
	for i, c := range e.step3Categories {
		ids[i] = c.ID
	}
	return ids
}

// Step3CategoryInfo returns the step-3 sub-categories with their titles
func (e *Edition) Step3CategoryInfo() []models.Category {
	return e.step3Categories
}

// CapabilityCategory returns the declared category of a capability.
// Unknown IDs fall back to the first declared category.
func (e *Edition) CapabilityCategory(id string) string {
	if c, ok := e.capabilities[id]; ok {
		return c.Category
	}
	return e.categories[0].ID
}

// CapabilityCategories returns the capability categories in display order
func (e *Edition) CapabilityCategories() []models.Category {
	return e.categories
}

// Capability returns the display entry of a capability
func (e *Edition) Capability(id string) (*models.Capability, bool) {
	c, ok := e.capabilities[id]
	return c, ok
}

// Capabilities returns every capability in catalog order
func (e *Edition) Capabilities() []*models.Capability {
	out := make([]*models.Capability, 0, len(e.capabilityOrder))
	for _, id := range e.capabilityOrder {
		out = append(out, e.capabilities[id])
	}
	return out
}

// UseCase returns the display entry of an illustrative use case
func (e *Edition) UseCase(id string) (*models.UseCase, bool) {
	u, ok := e.useCases[id]
	return u, ok
}

// UseCases returns every use case in catalog order
func (e *Edition) UseCases() []*models.UseCase {
	out := make([]*models.UseCase, 0, len(e.useCaseOrder))
	for _, id := range e.useCaseOrder {
		out = append(out, e.useCases[id])
	}
	return out
}

// AnswerKey returns the optimal answers
func (e *Edition) AnswerKey() *models.AnswerKey {
	return &e.answerKey
}

// ScoreMessage returns an authored message for a choice at a rating, if any
func (e *Edition) ScoreMessage(step models.Step, choiceID string, stars int) (string, bool) {
	msg, ok := e.scoreMessages[step][choiceID][stars]
	return msg, ok
}

// ImpactTemplate returns the authored end-of-run summary, or "" for the default
func (e *Edition) ImpactTemplate() string {
	return e.impactTemplate
}

// Detail returns the edition's public content
func (e *Edition) Detail() models.EditionDetail {
	d := models.EditionDetail{
		EditionSummary:       e.Summary(),
		CapabilityCategories: e.categories,
		Step3Categories:      e.step3Categories,
		Capabilities:         e.Capabilities(),
		UseCases:             e.UseCases(),
		Steps:                make([]models.StepView, 0, models.StepCount),
	}
	for _, s := range models.AllSteps {
		if view, ok := e.StepView(s); ok {
			d.Steps = append(d.Steps, *view)
		}
	}
	return d
}
