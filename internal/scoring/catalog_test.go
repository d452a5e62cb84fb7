package scoring

import (
	"fmt"

	"github.com/terra-clan/mot-engine/internal/models"
)

// testCatalog is a small hand-built edition with the same shape as the shipped content
type testCatalog struct {
	steps      map[models.Step][]*models.Choice
	categories map[string]string
	key        models.AnswerKey
	messages   map[string]string
}

func cost(n int) *int { return &n }

func newTestCatalog() *testCatalog {
	c := &testCatalog{
		steps: map[models.Step][]*models.Choice{
			models.Step1: {
				{ID: "mapper", Capabilities: models.FlatCapabilities{"value_map", "landscape_scan"}},
				{ID: "builder", Capabilities: models.FlatCapabilities{"alliances"}},
				{ID: "explorer", Capabilities: models.FlatCapabilities{}, UseCases: []string{"uc_banners", "uc_email"}},
			},
			models.Step2: {
				{ID: "p1", Capabilities: models.TieredCapabilities{{"p1_base"}, {"p1_plus"}, {"p1_max"}}},
				{ID: "p2", Capabilities: models.FlatCapabilities{"p2"}},
				{ID: "p3", Capabilities: models.FlatCapabilities{"p3"}},
				{ID: "p4", Capabilities: models.FlatCapabilities{"p4"}},
				{ID: "p5", Capabilities: models.FlatCapabilities{"p5"}},
			},
			models.Step3: {
				{ID: "bootcamp", Category: "people_processes", Capabilities: models.FlatCapabilities{"bootcamp"}},
				{ID: "labs", Category: "people_processes", Capabilities: models.FlatCapabilities{"labs"}},
				{ID: "foundations", Category: "platform_partnerships", Capabilities: models.FlatCapabilities{"foundations"}},
				{ID: "automation", Category: "platform_partnerships", Capabilities: models.FlatCapabilities{"automation"}},
				{ID: "framework", Category: "policies_governance", Capabilities: models.FlatCapabilities{"framework"}},
				{ID: "board", Category: "policies_governance", Capabilities: models.FlatCapabilities{"board"}},
			},
			models.Step4: {
				{ID: "playbook", Cost: cost(10), Capabilities: models.FlatCapabilities{"playbook"}},
				{ID: "pipelines", Cost: cost(10), Capabilities: models.FlatCapabilities{"pipelines"}},
				{ID: "risk", Cost: cost(5), Capabilities: models.FlatCapabilities{"risk"}},
				{ID: "champions", Cost: cost(5), Capabilities: models.FlatCapabilities{"champions"}},
				{ID: "api", Cost: cost(5), Capabilities: models.FlatCapabilities{"api"}},
				{ID: "storytelling", Cost: cost(5), Capabilities: models.FlatCapabilities{"storytelling"}},
				{ID: "megaproject", Cost: cost(31), Capabilities: models.FlatCapabilities{"megaproject"}},
			},
			models.Step5: {
				{ID: "people", Capabilities: models.TieredCapabilities{{"academy"}, {"academy"}, {"academy", "governance"}}},
				{ID: "roadmap", Capabilities: models.FlatCapabilities{"awareness"}},
				{ID: "service", Capabilities: models.FlatCapabilities{"service_layer", "alliances"}},
			},
		},
		categories: map[string]string{
			"p1_base":        "technology_partnerships",
			"p1_plus":        "technology_partnerships",
			"p1_max":         "technology_partnerships",
			"p2":             "transformation_change",
			"p3":             "transformation_change",
			"p4":             "policies_governance",
			"p5":             "transformation_change",
			"value_map":      "transformation_change",
			"landscape_scan": "technology_partnerships",
			"alliances":      "technology_partnerships",
			"bootcamp":       "transformation_change",
			"labs":           "transformation_change",
			"foundations":    "technology_partnerships",
			"automation":     "technology_partnerships",
			"framework":      "policies_governance",
			"board":          "policies_governance",
			"playbook":       "transformation_change",
			"pipelines":      "technology_partnerships",
			"risk":           "policies_governance",
			"champions":      "transformation_change",
			"api":            "technology_partnerships",
			"storytelling":   "transformation_change",
			"academy":        "transformation_change",
			"governance":     "policies_governance",
			"awareness":      "policies_governance",
			"service_layer":  "technology_partnerships",
		},
		key: models.AnswerKey{
			Step1:          map[string]int{"mapper": 3, "builder": 2, "explorer": 1},
			Step2Positions: map[string]int{"p1": 1, "p2": 2, "p3": 3, "p4": 4, "p5": 5},
			Step2Optimal:   []int{1, 3, 4},
			Step3Optimal: map[string]string{
				"people_processes":      "bootcamp",
				"platform_partnerships": "foundations",
				"policies_governance":   "framework",
			},
			Step4Optimal: []string{"playbook", "pipelines", "risk", "champions"},
			Step5:        map[string]int{"people": 3, "roadmap": 2, "service": 1},
		},
		messages: map[string]string{"step1/mapper/3": "Great call."},
	}
	for step, choices := range c.steps {
		for _, ch := range choices {
			ch.Step = step
		}
	}
	return c
}

func (c *testCatalog) Choice(step models.Step, id string) (*models.Choice, bool) {
	for _, ch := range c.steps[step] {
		if ch.ID == id {
			return ch, true
		}
	}
	return nil, false
}

func (c *testCatalog) StepChoices(step models.Step) []*models.Choice {
	return c.steps[step]
}

func (c *testCatalog) Step3Categories() []string {
	return []string{"people_processes", "platform_partnerships", "policies_governance"}
}

func (c *testCatalog) CapabilityCategory(id string) string {
	if cat, ok := c.categories[id]; ok {
		return cat
	}
	return "transformation_change"
}

func (c *testCatalog) CapabilityCategories() []models.Category {
	return []models.Category{
		{ID: "transformation_change", Title: "Transformation & Change"},
		{ID: "technology_partnerships", Title: "Technology & Partnerships"},
		{ID: "policies_governance", Title: "Policies & Governance"},
	}
}

func (c *testCatalog) AnswerKey() *models.AnswerKey {
	return &c.key
}

func (c *testCatalog) ScoreMessage(step models.Step, choiceID string, stars int) (string, bool) {
	msg, ok := c.messages[fmt.Sprintf("%s/%s/%d", step, choiceID, stars)]
	return msg, ok
}

func optimalStep3() map[string]string {
	return map[string]string{
		"people_processes":      "bootcamp",
		"platform_partnerships": "foundations",
		"policies_governance":   "framework",
	}
}

func weakestStep3() map[string]string {
	return map[string]string{
		"people_processes":      "labs",
		"platform_partnerships": "automation",
		"policies_governance":   "board",
	}
}
