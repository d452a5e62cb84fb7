package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/terra-clan/mot-engine/internal/models"
)

// ErrNoEditions is returned when a content directory holds no loadable edition
var ErrNoEditions = errors.New("no editions loaded")

// Loader manages loading and caching of content editions
type Loader struct {
	mu       sync.RWMutex
	editions map[string]*Edition
}

// NewLoader creates a new edition loader
func NewLoader() *Loader {
	return &Loader{
		editions: make(map[string]*Edition),
	}
}

// LoadFromDir loads all YAML editions from a directory.
// Invalid files are logged and skipped; an empty result is an error.
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading editions from directory", "dir", dir)

	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load edition", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("editions loaded", "count", loaded, "total_files", len(files))

	if loaded == 0 {
		return fmt.Errorf("%w: %s", ErrNoEditions, dir)
	}
	return nil
}

// LoadFromFile loads a single edition from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	edition, err := Parse(data)
	if err != nil {
		return err
	}

	l.Add(edition)

	slog.Info("edition loaded", "id", edition.ID, "title", edition.Title,
		"capabilities", len(edition.capabilities), "use_cases", len(edition.useCases))
	return nil
}

// Get retrieves an edition by ID
func (l *Loader) Get(id string) *Edition {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.editions[id]
}

// List returns all loaded editions ordered by ID
func (l *Loader) List() []*Edition {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]*Edition, 0, len(l.editions))
	for _, e := range l.editions {
		result = append(result, e)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Add programmatically adds an edition, replacing one with the same ID
func (l *Loader) Add(edition *Edition) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.editions[edition.ID] = edition
}

// Remove removes an edition by ID
func (l *Loader) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.editions, id)
}

// Parse builds and validates an edition from YAML
func Parse(data []byte) (*Edition, error) {
	var f editionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return build(&f)
}

// --- YAML file structs ---

type editionFile struct {
	ID                   string                               `yaml:"id"`
	Title                string                               `yaml:"title"`
	Subtitle             string                               `yaml:"subtitle"`
	Company              string                               `yaml:"company"`
	CapabilityCategories []models.Category                    `yaml:"capability_categories"`
	Step3Categories      []models.Category                    `yaml:"step3_categories"`
	Steps                []stepFile                           `yaml:"steps"`
	Capabilities         []capabilityFile                     `yaml:"capabilities"`
	UseCases             []useCaseFile                        `yaml:"use_cases"`
	AnswerKey            answerKeyFile                        `yaml:"answer_key"`
	ScoreMessages        map[string]map[string]map[int]string `yaml:"score_messages"`
	ImpactMessage        string                               `yaml:"impact_message"`
}

type stepFile struct {
	Step        int          `yaml:"step"`
	Title       string       `yaml:"title"`
	Description string       `yaml:"description"`
	Choices     []choiceFile `yaml:"choices"`
}

type choiceFile struct {
	ID                 string           `yaml:"id"`
	Title              string           `yaml:"title"`
	Description        string           `yaml:"description"`
	Icon               string           `yaml:"icon"`
	Category           string           `yaml:"category"`
	Cost               *int             `yaml:"cost"`
	Capabilities       []string         `yaml:"capabilities"`
	CapabilitiesByStar map[int][]string `yaml:"capabilities_by_star"`
	UseCases           []string         `yaml:"use_cases"`
}

type capabilityFile struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
	Category    string `yaml:"category"`
}

type useCaseFile struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Icon        string `yaml:"icon"`
}

type answerKeyFile struct {
	Step1 map[string]int `yaml:"step1"`
	Step2 struct {
		Positions map[string]int `yaml:"positions"`
		Optimal   []int          `yaml:"optimal"`
	} `yaml:"step2"`
	Step3 map[string]string `yaml:"step3"`
	Step4 []string          `yaml:"step4"`
	Step5 map[string]int    `yaml:"step5"`
}
