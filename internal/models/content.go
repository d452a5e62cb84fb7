package models

// CapabilitySpec describes which capability IDs a choice unlocks at a given rating.
// Resolved once when an edition is loaded; see FlatCapabilities and TieredCapabilities.
type CapabilitySpec interface {
	// Unlocked returns the capability IDs unlocked at the given star rating
	Unlocked(stars int) []string
	// IDs returns every capability ID this choice can ever unlock
	IDs() []string
}

// FlatCapabilities unlock unconditionally once the choice is picked
type FlatCapabilities []string

// Unlocked ignores the rating
func (f FlatCapabilities) Unlocked(int) []string {
	return []string(f)
}

// IDs returns the list itself
func (f FlatCapabilities) IDs() []string {
	return []string(f)
}

// TieredCapabilities unlock cumulatively: tier i (1-based) is included for every rating >= i
type TieredCapabilities [MaxStars][]string

// Unlocked returns the deduplicated union of tiers 1..stars
func (t TieredCapabilities) Unlocked(stars int) []string {
	if stars > MaxStars {
		stars = MaxStars
	}
	var out []string
	seen := make(map[string]bool)
	for i := 0; i < stars; i++ {
		for _, id := range t[i] {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// IDs returns every capability across all tiers
func (t TieredCapabilities) IDs() []string {
	return t.Unlocked(MaxStars)
}

// Choice is a selectable option within a step
type Choice struct {
	ID           string         `json:"id"`
	Step         Step           `json:"step"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Icon         string         `json:"icon,omitempty"`
	Category     string         `json:"category,omitempty"` // step 3 sub-category
	Cost         *int           `json:"cost,omitempty"`     // step 4 budget points
	Capabilities CapabilitySpec `json:"-"`
	UseCases     []string       `json:"use_cases,omitempty"`
}

// Exploratory reports whether the choice shows illustrative use cases instead of capabilities
func (c *Choice) Exploratory() bool {
	return len(c.UseCases) > 0
}

// View flattens the choice for clients
func (c *Choice) View() ChoiceView {
	var caps []string
	if c.Capabilities != nil {
		caps = c.Capabilities.IDs()
	}
	return ChoiceView{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		Icon:         c.Icon,
		Category:     c.Category,
		Cost:         c.Cost,
		Capabilities: caps,
		UseCases:     c.UseCases,
	}
}

// ChoiceView is a choice as shown to players
type ChoiceView struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Icon         string   `json:"icon,omitempty"`
	Category     string   `json:"category,omitempty"`
	Cost         *int     `json:"cost,omitempty"`
	Capabilities []string `json:"capabilities,omitempty"`
	UseCases     []string `json:"use_cases,omitempty"`
}

// Capability is an unlockable enabler
type Capability struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
	Category    string `json:"category"`
}

// UseCase is an illustrative example shown for the exploratory archetype.
// Use cases are never scored and never counted as capabilities.
type UseCase struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Icon        string `json:"icon,omitempty"`
}

// Category is a named grouping (capability category or step-3 sub-category)
type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// StepInfo is a step with its display text and ordered choices
type StepInfo struct {
	Step        Step      `json:"step"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Choices     []*Choice `json:"choices"`
}

// StepView is a step with its choices as shown to players
type StepView struct {
	Step        Step         `json:"step"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Categories  []Category   `json:"categories,omitempty"` // step 3 only
	Choices     []ChoiceView `json:"choices"`
}

// AnswerKey holds the literal optimal answers of an edition
type AnswerKey struct {
	Step1          map[string]int    `json:"step1"`
	Step2Positions map[string]int    `json:"step2_positions"`
	Step2Optimal   []int             `json:"step2_optimal_positions"`
	Step3Optimal   map[string]string `json:"step3_optimal"`
	Step4Optimal   []string          `json:"step4_optimal"`
	Step5          map[string]int    `json:"step5"`
}

// EditionSummary describes a loaded content edition
type EditionSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Subtitle     string `json:"subtitle,omitempty"`
	Company      string `json:"company,omitempty"`
	Capabilities int    `json:"capabilities"`
	UseCases     int    `json:"use_cases"`
}

// EditionDetail is an edition's full public content, without its answer key
type EditionDetail struct {
	EditionSummary
	CapabilityCategories []Category    `json:"capability_categories"`
	Step3Categories      []Category    `json:"step3_categories"`
	Capabilities         []*Capability `json:"capability_table"`
	UseCases             []*UseCase    `json:"use_case_table"`
	Steps                []StepView    `json:"steps"`
}
