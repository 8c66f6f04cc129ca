package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/example/phonicsbot/pkg/models"
)

// CurriculumRepository handles database operations for the static
// curriculum tables (units and skill items). The tables are written only
// by the importer; the learning core reads them once at startup.
type CurriculumRepository struct{}

// NewCurriculumRepository creates a new repository instance
func NewCurriculumRepository() *CurriculumRepository {
	return &CurriculumRepository{}
}

// GetUnits returns all units in curriculum order
func (r *CurriculumRepository) GetUnits(ctx context.Context) ([]models.Unit, error) {
	rows, err := DB.QueryContext(ctx,
		"SELECT id, name, position, prerequisites, created_at FROM units ORDER BY position ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to get units: %v", err)
	}
	defer rows.Close()

	var units []models.Unit
	for rows.Next() {
		var u models.Unit
		var prereqs string
		if err := rows.Scan(&u.ID, &u.Name, &u.Position, &prereqs, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unit: %v", err)
		}
		u.Prerequisites = splitIDs(prereqs)
		units = append(units, u)
	}

	return units, rows.Err()
}

// GetSkillItems returns all skill items in curriculum order
func (r *CurriculumRepository) GetSkillItems(ctx context.Context) ([]models.SkillItem, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT id, unit_id, grapheme, phoneme, example_word, example_sentence,
			difficulty, prerequisites, position, created_at, updated_at
		FROM skill_items ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get skill items: %v", err)
	}
	defer rows.Close()

	var items []models.SkillItem
	for rows.Next() {
		var item models.SkillItem
		var prereqs string
		err := rows.Scan(
			&item.ID,
			&item.UnitID,
			&item.Grapheme,
			&item.Phoneme,
			&item.ExampleWord,
			&item.ExampleSentence,
			&item.Difficulty,
			&prereqs,
			&item.Position,
			&item.CreatedAt,
			&item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan skill item: %v", err)
		}
		item.Prerequisites = splitIDs(prereqs)
		items = append(items, item)
	}

	return items, rows.Err()
}

// UpsertUnit creates or updates a unit
func (r *CurriculumRepository) UpsertUnit(ctx context.Context, u *models.Unit) error {
	prereqs := strings.Join(u.Prerequisites, ",")

	query := `
		INSERT INTO units (id, name, position, prerequisites)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			position = excluded.position,
			prerequisites = excluded.prerequisites
	`
	if DB.DriverName() == "postgres" {
		query = `
			INSERT INTO units (id, name, position, prerequisites)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				position = EXCLUDED.position,
				prerequisites = EXCLUDED.prerequisites
		`
	}

	_, err := DB.ExecContext(ctx, query, u.ID, u.Name, u.Position, prereqs)
	if err != nil {
		return fmt.Errorf("failed to upsert unit: %v", err)
	}
	return nil
}

// UpsertSkillItem creates or updates a skill item
func (r *CurriculumRepository) UpsertSkillItem(ctx context.Context, item *models.SkillItem) error {
	prereqs := strings.Join(item.Prerequisites, ",")

	query := `
		INSERT INTO skill_items (
			id, unit_id, grapheme, phoneme, example_word, example_sentence,
			difficulty, prerequisites, position
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			unit_id = excluded.unit_id,
			grapheme = excluded.grapheme,
			phoneme = excluded.phoneme,
			example_word = excluded.example_word,
			example_sentence = excluded.example_sentence,
			difficulty = excluded.difficulty,
			prerequisites = excluded.prerequisites,
			position = excluded.position,
			updated_at = CURRENT_TIMESTAMP
	`
	if DB.DriverName() == "postgres" {
		query = `
			INSERT INTO skill_items (
				id, unit_id, grapheme, phoneme, example_word, example_sentence,
				difficulty, prerequisites, position
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO UPDATE SET
				unit_id = EXCLUDED.unit_id,
				grapheme = EXCLUDED.grapheme,
				phoneme = EXCLUDED.phoneme,
				example_word = EXCLUDED.example_word,
				example_sentence = EXCLUDED.example_sentence,
				difficulty = EXCLUDED.difficulty,
				prerequisites = EXCLUDED.prerequisites,
				position = EXCLUDED.position,
				updated_at = NOW()
		`
	}

	_, err := DB.ExecContext(ctx, query,
		item.ID, item.UnitID, item.Grapheme, item.Phoneme, item.ExampleWord,
		item.ExampleSentence, item.Difficulty, prereqs, item.Position)
	if err != nil {
		return fmt.Errorf("failed to upsert skill item: %v", err)
	}
	return nil
}

// splitIDs parses a comma-separated ID list, tolerating blanks
func splitIDs(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var ids []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, p)
		}
	}
	return ids
}
