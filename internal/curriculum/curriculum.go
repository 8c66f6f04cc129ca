// Package curriculum holds the read-only reference data the learning core
// schedules against: phonics units, skill items, and their prerequisite
// graph. It is loaded once at startup and never mutated afterwards.
package curriculum

import (
	"context"
	"fmt"

	"github.com/example/phonicsbot/pkg/models"
)

// Repository is the data source the library loads from.
type Repository interface {
	GetUnits(ctx context.Context) ([]models.Unit, error)
	GetSkillItems(ctx context.Context) ([]models.SkillItem, error)
}

// Library is the in-memory curriculum graph.
type Library struct {
	items       map[string]models.SkillItem
	order       []string // Item IDs in curriculum order
	units       map[string]models.Unit
	unitOrder   []string
	itemsByUnit map[string][]string
}

// Load reads the curriculum tables and builds the library.
func Load(ctx context.Context, repo Repository) (*Library, error) {
	units, err := repo.GetUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load units: %w", err)
	}
	items, err := repo.GetSkillItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load skill items: %w", err)
	}
	return New(units, items), nil
}

// New builds a library from already-loaded records. Used directly in tests.
func New(units []models.Unit, items []models.SkillItem) *Library {
	l := &Library{
		items:       make(map[string]models.SkillItem, len(items)),
		units:       make(map[string]models.Unit, len(units)),
		itemsByUnit: make(map[string][]string),
	}
	for _, u := range units {
		l.units[u.ID] = u
		l.unitOrder = append(l.unitOrder, u.ID)
	}
	for _, item := range items {
		l.items[item.ID] = item
		l.order = append(l.order, item.ID)
		l.itemsByUnit[item.UnitID] = append(l.itemsByUnit[item.UnitID], item.ID)
	}
	return l
}

// Item returns the skill item with the given ID.
func (l *Library) Item(id string) (models.SkillItem, bool) {
	item, ok := l.items[id]
	return item, ok
}

// ItemIDs returns all item IDs in curriculum order.
func (l *Library) ItemIDs() []string {
	return l.order
}

// Len returns the number of skill items in the curriculum.
func (l *Library) Len() int {
	return len(l.order)
}

// Unit returns the unit with the given ID.
func (l *Library) Unit(id string) (models.Unit, bool) {
	u, ok := l.units[id]
	return u, ok
}

// UnitIDs returns all unit IDs in curriculum order.
func (l *Library) UnitIDs() []string {
	return l.unitOrder
}

// ItemsInUnit returns the item IDs belonging to a unit, in curriculum order.
func (l *Library) ItemsInUnit(unitID string) []string {
	return l.itemsByUnit[unitID]
}

// FallbackText returns the canned, zero-cost substitute for AI-generated
// content about an item. It is always speakable plain text, so it serves
// both text and audio modality fallbacks.
func (l *Library) FallbackText(itemID string) string {
	item, ok := l.items[itemID]
	if !ok {
		return ""
	}
	if item.ExampleSentence != "" {
		return item.ExampleSentence
	}
	if item.ExampleWord != "" {
		return fmt.Sprintf("The letters '%s' make the %s sound, like in '%s'.",
			item.Grapheme, item.Phoneme, item.ExampleWord)
	}
	return fmt.Sprintf("The letters '%s' make the %s sound.", item.Grapheme, item.Phoneme)
}
