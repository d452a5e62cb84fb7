package scoring

import (
	"sort"

	"github.com/terra-clan/mot-engine/internal/models"
)

// DeriveUnlocks rebuilds the full unlock snapshot from the stored choices
// and step ratings. The result depends on nothing else, so repeated calls on
// an unchanged path yield identical snapshots.
func DeriveUnlocks(catalog Catalog, path *models.PlayerPath) models.UnlockSnapshot {
	snap := models.EmptyUnlockSnapshot()
	flat := make(map[string]bool)
	useCases := make(map[string]bool)

	for _, step := range models.AllSteps {
		if !path.Played(step) {
			continue
		}
		stars, _ := path.Score(step)
		bucket := newOrderedSet()

		for _, choice := range chosenEntries(catalog, path, step) {
			if step == models.Step1 && choice.Exploratory() {
				for _, id := range choice.UseCases {
					bucket.add(id)
					if !useCases[id] {
						useCases[id] = true
						snap.UseCases = append(snap.UseCases, id)
					}
				}
				continue
			}
			if choice.Capabilities == nil {
				continue
			}
			for _, id := range choice.Capabilities.Unlocked(stars) {
				bucket.add(id)
				flat[id] = true
			}
		}
		snap.ByStep[step] = bucket.items
	}

	for id := range flat {
		snap.Capabilities = append(snap.Capabilities, id)
	}
	sort.Strings(snap.Capabilities)

	for _, c := range catalog.CapabilityCategories() {
		snap.ByCategory[c.ID] = []string{}
	}
	for _, id := range snap.Capabilities {
		category := catalog.CapabilityCategory(id)
		snap.ByCategory[category] = append(snap.ByCategory[category], id)
	}

	return snap
}

// chosenEntries resolves the recorded choices of a step in a stable order:
// submission order for lists, catalog category order for step 3.
// Unknown step-2 IDs are skipped.
func chosenEntries(catalog Catalog, path *models.PlayerPath, step models.Step) []*models.Choice {
	var ids []string
	switch step {
	case models.Step1:
		ids = []string{path.Step1Choice}
	case models.Step2:
		ids = path.Step2Choices
	case models.Step3:
		for _, category := range catalog.Step3Categories() {
			if id, ok := path.Step3Choices[category]; ok {
				ids = append(ids, id)
			}
		}
	case models.Step4:
		ids = path.Step4Choices
	case models.Step5:
		ids = []string{path.Step5Choice}
	}

	entries := make([]*models.Choice, 0, len(ids))
	for _, id := range ids {
		if c, ok := catalog.Choice(step, id); ok {
			entries = append(entries, c)
		}
	}
	return entries
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool), items: []string{}}
}

func (s *orderedSet) add(id string) {
	if s.seen[id] {
		return
	}
	s.seen[id] = true
	s.items = append(s.items, id)
}
