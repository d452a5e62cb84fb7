package scoring

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/terra-clan/mot-engine/internal/models"
)

func TestDeriveUnlocksIsIdempotent(t *testing.T) {
	catalog := newTestCatalog()
	e := NewEngine(catalog)
	p := newPath()
	play(t, e, p, "mapper", []string{"p1", "ghost", "p4"}, weakestStep3(), []string{"api", "risk"}, "service")

	first, err := json.Marshal(DeriveUnlocks(catalog, p))
	if err != nil {
		t.Fatal(err)
	}
	second, err := json.Marshal(DeriveUnlocks(catalog, p))
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(second) {
		t.Errorf("derivation not idempotent:\n%s\n%s", first, second)
	}

	stored, err := json.Marshal(p.Unlocked)
	if err != nil {
		t.Fatal(err)
	}
	if string(stored) != string(first) {
		t.Errorf("stored snapshot differs from recomputation:\n%s\n%s", stored, first)
	}
}

func TestDeriveUnlocksEveryStepKeyPresent(t *testing.T) {
	catalog := newTestCatalog()
	snap := DeriveUnlocks(catalog, newPath())

	for _, s := range models.AllSteps {
		bucket, ok := snap.ByStep[s]
		if !ok {
			t.Errorf("%s bucket missing", s)
		}
		if bucket == nil || len(bucket) != 0 {
			t.Errorf("%s: expected empty non-nil bucket, got %#v", s, bucket)
		}
	}

	data, err := json.Marshal(snap.ByStep)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"step1":[],"step2":[],"step3":[],"step4":[],"step5":[]}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestDeriveUnlocksEveryCategoryKeyPresent(t *testing.T) {
	catalog := newTestCatalog()
	e := NewEngine(catalog)
	p := newPath()

	// Explorer unlocks use cases only, so every category stays empty
	if _, err := e.SubmitStep1(p, "explorer"); err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(p.Unlocked.ByCategory)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"policies_governance":[],"technology_partnerships":[],"transformation_change":[]}`
	if string(data) != want {
		t.Errorf("expected %s, got %s", want, data)
	}
}

func TestDeriveUnlocksCategoryFromCapability(t *testing.T) {
	catalog := newTestCatalog()
	e := NewEngine(catalog)
	p := newPath()

	if _, err := e.SubmitStep1(p, "builder"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitStep2(p, []string{"p1", "p3", "p4"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.SubmitStep3(p, optimalStep3()); err != nil {
		t.Fatal(err)
	}

	// "framework" is picked under policies_governance and declared there;
	// "bootcamp" is picked under people_processes but declared transformation_change
	want := map[string][]string{
		"transformation_change":   {"bootcamp", "p3"},
		"technology_partnerships": {"alliances", "foundations", "p1_base", "p1_max", "p1_plus"},
		"policies_governance":     {"framework", "p4"},
	}
	if !reflect.DeepEqual(p.Unlocked.ByCategory, want) {
		t.Errorf("expected %v, got %v", want, p.Unlocked.ByCategory)
	}
	if _, ok := p.Unlocked.ByCategory["people_processes"]; ok {
		t.Error("choice category must never be used for capabilities")
	}
}

func TestDeriveUnlocksTieredAtRating(t *testing.T) {
	catalog := newTestCatalog()

	tests := []struct {
		name  string
		step2 []string
		want  []string
	}{
		{"three stars", []string{"p1", "p3", "p4"}, []string{"p1_base", "p1_plus", "p1_max", "p3", "p4"}},
		{"one star", []string{"p1", "p2", "p5"}, []string{"p1_base", "p2", "p5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine(catalog)
			p := newPath()
			e.SubmitStep1(p, "mapper")
			if _, err := e.SubmitStep2(p, tt.step2); err != nil {
				t.Fatal(err)
			}
			if got := p.Unlocked.ByStep[models.Step2]; !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDeriveUnlocksDeduplicates(t *testing.T) {
	catalog := newTestCatalog()
	e := NewEngine(catalog)
	p := newPath()

	// "alliances" is unlocked by both step 1 and step 5
	play(t, e, p, "builder", []string{"p2", "p3", "p5"}, optimalStep3(), []string{"risk"}, "service")

	count := 0
	for _, id := range p.Unlocked.Capabilities {
		if id == "alliances" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected alliances once in flat set, got %d", count)
	}
	if got := p.Unlocked.ByStep[models.Step5]; !reflect.DeepEqual(got, []string{"service_layer", "alliances"}) {
		t.Errorf("unexpected step5 bucket %v", got)
	}
}
