package catalog

import (
	"errors"
	"fmt"

	"github.com/terra-clan/mot-engine/internal/models"
)

// ErrInvalidEdition wraps every content validation failure
var ErrInvalidEdition = errors.New("invalid edition")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidEdition, fmt.Sprintf(format, args...))
}

// build resolves capability specs and checks the edition is playable end to end
func build(f *editionFile) (*Edition, error) {
	if f.ID == "" {
		return nil, invalid("edition id is required")
	}

	e := &Edition{
		ID:             f.ID,
		Title:          f.Title,
		Subtitle:       f.Subtitle,
		Company:        f.Company,
		steps:          make(map[models.Step]*models.StepInfo, models.StepCount),
		choices:        make(map[models.Step]map[string]*models.Choice, models.StepCount),
		capabilities:   make(map[string]*models.Capability, len(f.Capabilities)),
		categories:     f.CapabilityCategories,
		useCases:       make(map[string]*models.UseCase, len(f.UseCases)),
		scoreMessages:  make(map[models.Step]map[string]map[int]string),
		impactTemplate: f.ImpactMessage,
	}

	if len(f.CapabilityCategories) != 3 {
		return nil, invalid("need exactly 3 capability categories, got %d", len(f.CapabilityCategories))
	}
	knownCategories := make(map[string]bool, len(f.CapabilityCategories))
	for _, c := range f.CapabilityCategories {
		if c.ID == "" || knownCategories[c.ID] {
			return nil, invalid("capability category ids must be unique and non-empty")
		}
		knownCategories[c.ID] = true
	}

	for _, c := range f.Capabilities {
		if c.ID == "" {
			return nil, invalid("capability without id")
		}
		if _, dup := e.capabilities[c.ID]; dup {
			return nil, invalid("duplicate capability %q", c.ID)
		}
		if !knownCategories[c.Category] {
			return nil, invalid("capability %q has unknown category %q", c.ID, c.Category)
		}
		e.capabilities[c.ID] = &models.Capability{
			ID:          c.ID,
			Title:       c.Title,
			Description: c.Description,
			Icon:        c.Icon,
			Category:    c.Category,
		}
		e.capabilityOrder = append(e.capabilityOrder, c.ID)
	}

	for _, u := range f.UseCases {
		if u.ID == "" {
			return nil, invalid("use case without id")
		}
		if _, dup := e.useCases[u.ID]; dup {
			return nil, invalid("duplicate use case %q", u.ID)
		}
		e.useCases[u.ID] = &models.UseCase{
			ID:          u.ID,
			Title:       u.Title,
			Description: u.Description,
			Icon:        u.Icon,
		}
		e.useCaseOrder = append(e.useCaseOrder, u.ID)
	}

	if len(f.Step3Categories) != 3 {
		return nil, invalid("step 3 needs exactly 3 categories, got %d", len(f.Step3Categories))
	}
	step3Categories := make(map[string]bool, 3)
	for _, c := range f.Step3Categories {
		if c.ID == "" || step3Categories[c.ID] {
			return nil, invalid("step 3 category ids must be unique and non-empty")
		}
		step3Categories[c.ID] = true
	}
	e.step3Categories = f.Step3Categories

	for _, sf := range f.Steps {
		step := models.Step(sf.Step)
		if !step.Valid() {
			return nil, invalid("unknown step %d", sf.Step)
		}
		if _, dup := e.steps[step]; dup {
			return nil, invalid("step %d defined twice", sf.Step)
		}
		if len(sf.Choices) == 0 {
			return nil, invalid("step %d has no choices", sf.Step)
		}

		info := &models.StepInfo{Step: step, Title: sf.Title, Description: sf.Description}
		byID := make(map[string]*models.Choice, len(sf.Choices))
		for _, cf := range sf.Choices {
			choice, err := buildChoice(step, cf)
			if err != nil {
				return nil, err
			}
			if _, dup := byID[choice.ID]; dup {
				return nil, invalid("duplicate choice %q in step %d", choice.ID, sf.Step)
			}
			for _, id := range choice.Capabilities.IDs() {
				if _, ok := e.capabilities[id]; !ok {
					return nil, invalid("choice %q references unknown capability %q", choice.ID, id)
				}
			}
			for _, uc := range choice.UseCases {
				if _, ok := e.useCases[uc]; !ok {
					return nil, invalid("choice %q references unknown use case %q", choice.ID, uc)
				}
			}
			if step == models.Step3 && !step3Categories[choice.Category] {
				return nil, invalid("step 3 choice %q has unknown category %q", choice.ID, choice.Category)
			}
			byID[choice.ID] = choice
			info.Choices = append(info.Choices, choice)
		}
		e.steps[step] = info
		e.choices[step] = byID
	}

	for _, s := range models.AllSteps {
		if _, ok := e.steps[s]; !ok {
			return nil, invalid("missing %s", s)
		}
	}

	for _, cat := range f.Step3Categories {
		found := false
		for _, c := range e.steps[models.Step3].Choices {
			if c.Category == cat.ID {
				found = true
				break
			}
		}
		if !found {
			return nil, invalid("step 3 category %q has no choices", cat.ID)
		}
	}

	if err := e.buildAnswerKey(&f.AnswerKey); err != nil {
		return nil, err
	}

	for key, byChoice := range f.ScoreMessages {
		step, err := models.ParseStep(key)
		if err != nil {
			return nil, invalid("score_messages: %v", err)
		}
		e.scoreMessages[step] = byChoice
	}

	return e, nil
}

func buildChoice(step models.Step, cf choiceFile) (*models.Choice, error) {
	if cf.ID == "" {
		return nil, invalid("choice without id in step %d", step)
	}
	if len(cf.Capabilities) > 0 && len(cf.CapabilitiesByStar) > 0 {
		return nil, invalid("choice %q declares both capabilities and capabilities_by_star", cf.ID)
	}

	var spec models.CapabilitySpec = models.FlatCapabilities(cf.Capabilities)
	if len(cf.CapabilitiesByStar) > 0 {
		var tiers models.TieredCapabilities
		for stars, ids := range cf.CapabilitiesByStar {
			if stars < 1 || stars > models.MaxStars {
				return nil, invalid("choice %q has capability tier %d", cf.ID, stars)
			}
			tiers[stars-1] = ids
		}
		spec = tiers
	}

	if step == models.Step4 && (cf.Cost == nil || *cf.Cost <= 0) {
		return nil, invalid("step 4 choice %q needs a positive cost", cf.ID)
	}
	if step != models.Step4 && cf.Cost != nil {
		return nil, invalid("choice %q has a cost outside step 4", cf.ID)
	}
	if step == models.Step3 && cf.Category == "" {
		return nil, invalid("step 3 choice %q has no category", cf.ID)
	}
	if step != models.Step1 && len(cf.UseCases) > 0 {
		return nil, invalid("choice %q lists use cases outside step 1", cf.ID)
	}

	return &models.Choice{
		ID:           cf.ID,
		Step:         step,
		Title:        cf.Title,
		Description:  cf.Description,
		Icon:         cf.Icon,
		Category:     cf.Category,
		Cost:         cf.Cost,
		Capabilities: spec,
		UseCases:     cf.UseCases,
	}, nil
}

func (e *Edition) buildAnswerKey(f *answerKeyFile) error {
	key := models.AnswerKey{
		Step1:          f.Step1,
		Step2Positions: f.Step2.Positions,
		Step2Optimal:   f.Step2.Optimal,
		Step3Optimal:   f.Step3,
		Step4Optimal:   f.Step4,
		Step5:          f.Step5,
	}

	for _, s := range []models.Step{models.Step1, models.Step5} {
		table := key.Step1
		if s == models.Step5 {
			table = key.Step5
		}
		for _, c := range e.steps[s].Choices {
			stars, ok := table[c.ID]
			if !ok {
				return invalid("answer key: %s choice %q has no rating", s, c.ID)
			}
			if stars < 1 || stars > models.MaxStars {
				return invalid("answer key: %s choice %q rated %d", s, c.ID, stars)
			}
		}
		for id := range table {
			if _, ok := e.choices[s][id]; !ok {
				return invalid("answer key: %s references unknown choice %q", s, id)
			}
		}
	}

	usedPositions := make(map[int]bool, len(key.Step2Positions))
	for id, pos := range key.Step2Positions {
		if _, ok := e.choices[models.Step2][id]; !ok {
			return invalid("answer key: step2 position for unknown choice %q", id)
		}
		if pos < 1 || usedPositions[pos] {
			return invalid("answer key: step2 position %d for %q is invalid or reused", pos, id)
		}
		usedPositions[pos] = true
	}
	if len(key.Step2Optimal) != 3 {
		return invalid("answer key: step2 needs 3 optimal positions, got %d", len(key.Step2Optimal))
	}
	seen := make(map[int]bool, 3)
	for _, pos := range key.Step2Optimal {
		if !usedPositions[pos] || seen[pos] {
			return invalid("answer key: step2 optimal position %d is unassigned or repeated", pos)
		}
		seen[pos] = true
	}

	if len(key.Step3Optimal) != len(e.step3Categories) {
		return invalid("answer key: step3 needs one optimal choice per category")
	}
	for _, cat := range e.step3Categories {
		id, ok := key.Step3Optimal[cat.ID]
		if !ok {
			return invalid("answer key: step3 category %q has no optimal choice", cat.ID)
		}
		c, ok := e.choices[models.Step3][id]
		if !ok || c.Category != cat.ID {
			return invalid("answer key: step3 optimal %q is not a %q choice", id, cat.ID)
		}
	}

	if len(key.Step4Optimal) < 2 {
		return invalid("answer key: step4 optimal set needs at least 2 choices")
	}
	cost := 0
	picked := make(map[string]bool, len(key.Step4Optimal))
	for _, id := range key.Step4Optimal {
		c, ok := e.choices[models.Step4][id]
		if !ok || picked[id] {
			return invalid("answer key: step4 optimal %q is unknown or repeated", id)
		}
		picked[id] = true
		cost += *c.Cost
	}
	if cost < models.MinBudget || cost > models.MaxBudget {
		return invalid("answer key: step4 optimal set costs %d, outside budget", cost)
	}

	e.answerKey = key
	return nil
}
