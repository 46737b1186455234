package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Hunselvm/genai/internal/domain"
)

const resultsSheet = "Results"

// BuildXLSXSummary renders a batch's results as a spreadsheet: a summary
// block with the completed/failed totals followed by one row per item.
// Operators who hand reports around prefer this over the raw CSV.
func BuildXLSXSummary(results map[string]domain.ProcessingResult) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", resultsSheet); err != nil {
		return nil, fmt.Errorf("rename results sheet: %w", err)
	}

	completed, failed := 0, 0
	for _, r := range results {
		if r.Completed() {
			completed++
		} else {
			failed++
		}
	}

	summary := [][]any{
		{"Total items", len(results)},
		{"Completed", completed},
		{"Failed", failed},
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, fmt.Errorf("summary cell: %w", err)
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write summary row: %w", err)
		}
	}

	headerRow := len(summary) + 2
	header := []any{"ID", "Prompt", "Status", "URLs", "Error", "Error category"}
	cell, err := excelize.CoordinatesToCellName(1, headerRow)
	if err != nil {
		return nil, fmt.Errorf("header cell: %w", err)
	}
	if err := f.SetSheetRow(resultsSheet, cell, &header); err != nil {
		return nil, fmt.Errorf("write header row: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		endCell, _ := excelize.CoordinatesToCellName(len(header), headerRow)
		_ = f.SetCellStyle(resultsSheet, cell, endCell, headerStyle)
	}

	for i, r := range sortedResults(results) {
		row := []any{r.ID, r.Prompt, r.Status, strings.Join(r.URLs, ";"), r.Error, r.ErrorCategory}
		cell, err := excelize.CoordinatesToCellName(1, headerRow+1+i)
		if err != nil {
			return nil, fmt.Errorf("result cell: %w", err)
		}
		if err := f.SetSheetRow(resultsSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write result row: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("serialize workbook: %w", err)
	}
	return buf.Bytes(), nil
}
