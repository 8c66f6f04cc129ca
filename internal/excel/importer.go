package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/example/phonicsbot/internal/database"
	"github.com/example/phonicsbot/pkg/models"
)

// ImportConfig defines the curriculum import configuration
type ImportConfig struct {
	FilePath        string // Path to the Excel or CSV file
	ItemIDColumn    string // Column with the skill item ID
	UnitIDColumn    string // Column with the unit ID
	UnitNameColumn  string // Column with the unit display name
	GraphemeColumn  string // Column with the grapheme
	PhonemeColumn   string // Column with the phoneme
	WordColumn      string // Column with the example word
	SentenceColumn  string // Column with the example sentence
	DifficultyColumn string // Column with the difficulty (1-5)
	PrereqColumn    string // Column with comma-separated prerequisite item IDs
	SheetName       string // Name of the sheet to import
	StartRow        int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		ItemIDColumn:     "A",
		UnitIDColumn:     "B",
		UnitNameColumn:   "C",
		GraphemeColumn:   "D",
		PhonemeColumn:    "E",
		WordColumn:       "F",
		SentenceColumn:   "G",
		DifficultyColumn: "H",
		PrereqColumn:     "I",
		SheetName:        "Sheet1",
		StartRow:         2, // By default, start from the second row (skip header)
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	UnitsCreated   int
	ItemsImported  int
	Skipped        int
	Errors         []string
}

// ImportCurriculum imports units and skill items from an Excel or CSV file
func ImportCurriculum(ctx context.Context, config ImportConfig) (*ImportResult, error) {
	ext := strings.ToLower(filepath.Ext(config.FilePath))

	if ext == ".csv" {
		return importFromCSV(ctx, config)
	}

	return importFromExcel(ctx, config)
}

// importFromExcel imports the curriculum from an Excel file
func importFromExcel(ctx context.Context, config ImportConfig) (*ImportResult, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %v", err)
	}
	defer f.Close()

	repo := database.NewCurriculumRepository()
	result := &ImportResult{
		Errors: make([]string, 0),
	}

	// Map already-seen units so each is upserted once per run
	seenUnits, err := existingUnits(ctx, repo)
	if err != nil {
		return nil, err
	}

	rows, err := f.GetRows(config.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %v", err)
	}

	position := 0
	for i, row := range rows {
		// Skip header rows
		if i < config.StartRow-1 {
			continue
		}

		result.TotalProcessed++
		position++

		// Empty rows in the sheet are not an import failure
		if isBlankRow(row) {
			result.Skipped++
			continue
		}

		if err := processRow(ctx, row, config, position, seenUnits, repo, result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", i+1, err))
		}
	}

	return result, nil
}

// importFromCSV imports the curriculum from a CSV file. The CSV layout is
// positional: item ID, grapheme, phoneme, example word, example sentence,
// difficulty, prerequisites. Rows where only the first cell is filled
// declare a new unit ("u2,Digraphs" style headers are written as
// "Digraphs" with the ID derived from order).
func importFromCSV(ctx context.Context, config ImportConfig) (*ImportResult, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	repo := database.NewCurriculumRepository()
	result := &ImportResult{
		Errors: make([]string, 0),
	}

	seenUnits, err := existingUnits(ctx, repo)
	if err != nil {
		return nil, err
	}

	rowNum := 0
	position := 0
	unitCount := len(seenUnits)
	currentUnit := ""

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %v", err)
		}

		rowNum++

		if rowNum < config.StartRow {
			continue
		}

		// A row with only the first cell filled starts a new unit
		if isUnitHeader(row) {
			unitCount++
			name := strings.Trim(strings.TrimSpace(row[0]), "\"")
			unit := &models.Unit{
				ID:       fmt.Sprintf("u%d", unitCount),
				Name:     name,
				Position: unitCount,
			}
			// Each unit requires the one before it
			if currentUnit != "" {
				unit.Prerequisites = []string{currentUnit}
			}
			if err := repo.UpsertUnit(ctx, unit); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
				continue
			}
			if !seenUnits[unit.ID] {
				seenUnits[unit.ID] = true
				result.UnitsCreated++
			}
			currentUnit = unit.ID
			continue
		}

		result.TotalProcessed++
		position++

		if err := processCSVRow(ctx, row, position, currentUnit, repo, result); err != nil {
			if err.Error() != "skipping row" {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			} else {
				result.Skipped++
			}
		}
	}

	return result, nil
}

// processRow processes a single row from Excel
func processRow(ctx context.Context, row []string, config ImportConfig, position int,
	seenUnits map[string]bool, repo *database.CurriculumRepository, result *ImportResult) error {
	cell := func(column string) string {
		if colIdx := columnToIndex(column); colIdx >= 0 && colIdx < len(row) {
			return strings.TrimSpace(row[colIdx])
		}
		return ""
	}

	item := &models.SkillItem{
		ID:              strings.ToLower(cell(config.ItemIDColumn)),
		UnitID:          strings.ToLower(cell(config.UnitIDColumn)),
		Grapheme:        cell(config.GraphemeColumn),
		Phoneme:         cell(config.PhonemeColumn),
		ExampleWord:     cell(config.WordColumn),
		ExampleSentence: cell(config.SentenceColumn),
		Difficulty:      parseIntOrDefault(cell(config.DifficultyColumn), 1, 5, 3),
		Prerequisites:   splitList(cell(config.PrereqColumn)),
		Position:        position,
	}

	unitName := cell(config.UnitNameColumn)
	return importItem(ctx, item, unitName, seenUnits, repo, result)
}

// processCSVRow processes a single skill item row from CSV
func processCSVRow(ctx context.Context, row []string, position int, unitID string,
	repo *database.CurriculumRepository, result *ImportResult) error {
	if len(row) < 2 || strings.TrimSpace(row[0]) == "" {
		return fmt.Errorf("skipping row")
	}
	if unitID == "" {
		return fmt.Errorf("skill item before any unit header")
	}

	field := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	item := &models.SkillItem{
		ID:              strings.ToLower(field(0)),
		UnitID:          unitID,
		Grapheme:        field(1),
		Phoneme:         field(2),
		ExampleWord:     field(3),
		ExampleSentence: field(4),
		Difficulty:      parseIntOrDefault(field(5), 1, 5, 3),
		Prerequisites:   splitList(field(6)),
		Position:        position,
	}
	if item.Grapheme == "" {
		item.Grapheme = item.ID
	}

	result.ItemsImported++
	if err := repo.UpsertSkillItem(ctx, item); err != nil {
		result.ItemsImported--
		return fmt.Errorf("failed to import skill item: %v", err)
	}
	return nil
}

// importItem validates the item, ensures its unit exists, and upserts it
func importItem(ctx context.Context, item *models.SkillItem, unitName string,
	seenUnits map[string]bool, repo *database.CurriculumRepository, result *ImportResult) error {
	if item.ID == "" {
		return fmt.Errorf("item ID cannot be empty")
	}
	if item.Grapheme == "" {
		return fmt.Errorf("grapheme cannot be empty")
	}
	if item.UnitID == "" {
		return fmt.Errorf("unit ID cannot be empty")
	}

	if !seenUnits[item.UnitID] {
		if unitName == "" {
			unitName = strings.ToUpper(item.UnitID[:1]) + item.UnitID[1:]
		}
		unit := &models.Unit{
			ID:       item.UnitID,
			Name:     unitName,
			Position: len(seenUnits) + 1,
		}
		if err := repo.UpsertUnit(ctx, unit); err != nil {
			return fmt.Errorf("failed to create unit: %v", err)
		}
		seenUnits[item.UnitID] = true
		result.UnitsCreated++
	}

	if err := repo.UpsertSkillItem(ctx, item); err != nil {
		return fmt.Errorf("failed to import skill item: %v", err)
	}
	result.ItemsImported++
	return nil
}

// existingUnits returns the IDs of units already in the database
func existingUnits(ctx context.Context, repo *database.CurriculumRepository) (map[string]bool, error) {
	units, err := repo.GetUnits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get existing units: %v", err)
	}
	seen := make(map[string]bool, len(units))
	for _, u := range units {
		seen[u.ID] = true
	}
	return seen, nil
}

// isBlankRow reports whether every cell in the row is empty
func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// isUnitHeader reports whether a CSV row declares a unit rather than an item
func isUnitHeader(row []string) bool {
	if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
		return false
	}
	for _, cell := range row[1:] {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// splitList parses a comma-separated list, tolerating blanks
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}

// Helper function to parse integer within a range
func parseIntInRange(s string, min, max int) (int, error) {
	var val int
	if _, err := fmt.Sscanf(s, "%d", &val); err != nil {
		return min, err
	}
	if val < min {
		return min, nil
	}
	if val > max {
		return max, nil
	}
	return val, nil
}

// Helper function to parse integer with default value
func parseIntOrDefault(s string, min, max, defaultVal int) int {
	if val, err := parseIntInRange(s, min, max); err == nil {
		return val
	}
	return defaultVal
}
