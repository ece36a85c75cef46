// Package scenario defines scenario templates, live scenario instances and
// the staged procedural generator that turns an abstract template into a
// fully concrete, internally consistent world by driving a decision maker
// through an ordered generation protocol.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// ActionKind enumerates the player actions a template may permit. The engine
// matches these exhaustively; there is no open-ended string dispatch.
type ActionKind string

const (
	ActionMove      ActionKind = "move"
	ActionObserve   ActionKind = "observe"
	ActionTalk      ActionKind = "talk"
	ActionNegotiate ActionKind = "negotiate"
	ActionBuy       ActionKind = "buy"
	ActionHire      ActionKind = "hire"
	ActionSteal     ActionKind = "steal"
	ActionTrade     ActionKind = "trade"
)

// CountRange bounds how many of something the generator may produce.
type CountRange struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// Contains reports whether n lies within the range (inclusive).
func (r CountRange) Contains(n int) bool { return n >= r.Min && n <= r.Max }

// Template is the immutable, reusable ruleset a world instance is generated
// from. Templates are loaded at startup and never mutated; every concrete
// detail (store names, NPC personalities, item placement) is produced by the
// generator within these constraints so no two instances are alike.
type Template struct {
	ID          string   `yaml:"id" json:"id"`
	Name        string   `yaml:"name" json:"name"`
	Description string   `yaml:"description" json:"description"`
	Rules       string   `yaml:"rules" json:"rules"`
	Objectives  []string `yaml:"objectives" json:"objectives"`
	Difficulty  string   `yaml:"difficulty" json:"difficulty"`

	WorldWidth   float64 `yaml:"world_width" json:"world_width"`
	WorldHeight  float64 `yaml:"world_height" json:"world_height"`
	MaxTurns     int     `yaml:"max_turns" json:"max_turns"`
	StartingGold int     `yaml:"starting_gold" json:"starting_gold"`

	NumStores CountRange `yaml:"num_stores" json:"num_stores"`
	NumNPCs   CountRange `yaml:"num_npcs" json:"num_npcs"`
	NumItems  CountRange `yaml:"num_items" json:"num_items"`

	// PossibleNPCJobs is the closed job vocabulary for generated NPCs; a
	// generated "thief" is only valid if this list allows one.
	PossibleNPCJobs []string `yaml:"possible_npc_jobs" json:"possible_npc_jobs"`

	// ItemRarityDistribution maps rarity tag to its target share, e.g.
	// {"common": 0.5, "rare": 0.15}. Shares are guidance for the decision
	// maker, not a hard validation constraint.
	ItemRarityDistribution map[string]float64 `yaml:"item_rarity_distribution" json:"item_rarity_distribution"`

	AllowedActions    []ActionKind   `yaml:"allowed_actions" json:"allowed_actions"`
	EnvironmentThemes []string       `yaml:"environment_themes" json:"environment_themes"`
	SuccessMetrics    map[string]any `yaml:"success_metrics" json:"success_metrics"`
}

// Allows reports whether the template permits the given action kind.
func (t *Template) Allows(kind ActionKind) bool {
	for _, a := range t.AllowedActions {
		if a == kind {
			return true
		}
	}
	return false
}

// AllowsJob reports whether job is in the template's job vocabulary.
func (t *Template) AllowsJob(job string) bool {
	for _, j := range t.PossibleNPCJobs {
		if j == job {
			return true
		}
	}
	return false
}

// Validate checks the internal consistency of a template definition.
func (t *Template) Validate() error {
	switch {
	case t.ID == "":
		return fmt.Errorf("template: missing id")
	case t.WorldWidth <= 0 || t.WorldHeight <= 0:
		return fmt.Errorf("template %s: non-positive world bounds", t.ID)
	case t.StartingGold <= 0:
		return fmt.Errorf("template %s: non-positive starting gold", t.ID)
	case t.NumStores.Min < 1 || t.NumStores.Max < t.NumStores.Min:
		return fmt.Errorf("template %s: invalid store count range", t.ID)
	case t.NumNPCs.Min < 1 || t.NumNPCs.Max < t.NumNPCs.Min:
		return fmt.Errorf("template %s: invalid npc count range", t.ID)
	case t.NumItems.Min < 1 || t.NumItems.Max < t.NumItems.Min:
		return fmt.Errorf("template %s: invalid item count range", t.ID)
	case len(t.PossibleNPCJobs) == 0:
		return fmt.Errorf("template %s: empty job vocabulary", t.ID)
	case len(t.AllowedActions) == 0:
		return fmt.Errorf("template %s: no allowed actions", t.ID)
	}
	return nil
}

// MarketSquareTemplate is the built-in reference template: a procedurally
// generated market where the objective is to acquire a valuable item through
// negotiation, trade, hired help or theft.
func MarketSquareTemplate() *Template {
	return &Template{
		ID:          "market_square",
		Name:        "Dynamic Market Acquisition",
		Description: "A generated market with unique stores, NPCs and items. Acquire the target item through negotiation, trade, hired help or theft.",
		Rules:       "Each action consumes one turn. Trust affects pricing. Theft success depends on guards and skills.",
		Objectives: []string{
			"Obtain the target item",
			"Minimize gold spent",
			"Build strategic relationships with key NPCs",
		},
		Difficulty:   "medium",
		WorldWidth:   800,
		WorldHeight:  600,
		MaxTurns:     150,
		StartingGold: 500,
		NumStores:    CountRange{Min: 3, Max: 6},
		NumNPCs:      CountRange{Min: 4, Max: 8},
		NumItems:     CountRange{Min: 10, Max: 20},
		PossibleNPCJobs: []string{
			"shopkeeper", "guard", "thief", "merchant",
			"information_broker", "bouncer", "wealthy_collector", "fence",
		},
		ItemRarityDistribution: map[string]float64{
			"common": 0.5, "uncommon": 0.3, "rare": 0.15, "legendary": 0.05,
		},
		AllowedActions: []ActionKind{
			ActionMove, ActionObserve, ActionTalk, ActionNegotiate,
			ActionBuy, ActionHire, ActionSteal, ActionTrade,
		},
		EnvironmentThemes: []string{"urban_market", "merchant_district", "bustling"},
		SuccessMetrics:    map[string]any{"obtain_target_item": true},
	}
}

// Registry holds the loaded templates keyed by id. Safe for concurrent reads
// after startup; Add is intended for initialization only.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewRegistry creates a registry pre-populated with the built-in templates.
func NewRegistry() *Registry {
	r := &Registry{templates: map[string]*Template{}}
	_ = r.Add(MarketSquareTemplate())
	return r
}

// Add validates and registers a template.
func (r *Registry) Add(t *Template) error {
	if err := t.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.ID] = t
	return nil
}

// Get returns the template with the given id.
func (r *Registry) Get(id string) (*Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.templates[id]
	return t, ok
}

// All returns every registered template sorted by id.
func (r *Registry) All() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Template, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDir reads every *.yaml / *.yml file in dir as a template definition and
// registers it. Files that fail validation abort the load.
func (r *Registry) LoadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read template dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return fmt.Errorf("read template %s: %w", e.Name(), err)
		}
		var t Template
		if err := yaml.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("parse template %s: %w", e.Name(), err)
		}
		if err := r.Add(&t); err != nil {
			return fmt.Errorf("template %s: %w", e.Name(), err)
		}
	}
	return nil
}

// nowUTC is indirected for tests that need deterministic timestamps.
var nowUTC = func() time.Time { return time.Now().UTC() }
