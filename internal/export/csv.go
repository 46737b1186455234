package export

import (
	"encoding/csv"
	"fmt"
	"sort"
	"strings"

	"github.com/Hunselvm/genai/internal/domain"
	"github.com/Hunselvm/genai/internal/retry"
)

// BuildResultsCSV flattens every result into one row per item, id order.
func BuildResultsCSV(results map[string]domain.ProcessingResult) (string, error) {
	return writeRows(
		[]string{"id", "prompt", "status", "urls", "error"},
		sortedResults(results),
		func(r domain.ProcessingResult) []string {
			return []string{r.ID, r.Prompt, r.Status, strings.Join(r.URLs, ";"), r.Error}
		},
	)
}

// BuildFailedCSV lists only failed items worth re-running: permanent
// failures (content policy, auth) are excluded since they would fail again
// unchanged.
func BuildFailedCSV(results map[string]domain.ProcessingResult) (string, error) {
	var failed []domain.ProcessingResult
	for _, r := range sortedResults(results) {
		if r.Status != domain.StatusFailed {
			continue
		}
		if r.ErrorCategory == retry.CategoryPermanent {
			continue
		}
		failed = append(failed, r)
	}

	return writeRows(
		[]string{"id", "prompt", "status", "urls", "error"},
		failed,
		func(r domain.ProcessingResult) []string {
			return []string{r.ID, r.Prompt, r.Status, strings.Join(r.URLs, ";"), r.Error}
		},
	)
}

// BuildPipelineCSV writes one row per logical pipeline item with both stage
// outcomes side by side.
func BuildPipelineCSV(results map[string]domain.PipelineResult) (string, error) {
	ids := make([]string, 0, len(results))
	for itemID := range results {
		ids = append(ids, itemID)
	}
	sort.Strings(ids)

	rows := make([]domain.PipelineResult, 0, len(ids))
	for _, itemID := range ids {
		rows = append(rows, results[itemID])
	}

	return writeRows(
		[]string{"id", "prompt", "image_status", "image_urls", "image_error", "video_status", "video_urls", "video_error"},
		rows,
		func(r domain.PipelineResult) []string {
			row := []string{r.ID, r.Prompt, "", "", "", "", "", ""}
			if r.Image != nil {
				row[2] = r.Image.Status
				row[3] = strings.Join(r.Image.URLs, ";")
				row[4] = r.Image.Error
			}
			if r.Video != nil {
				row[5] = r.Video.Status
				row[6] = strings.Join(r.Video.URLs, ";")
				row[7] = r.Video.Error
			}
			return row
		},
	)
}

func sortedResults(results map[string]domain.ProcessingResult) []domain.ProcessingResult {
	ids := make([]string, 0, len(results))
	for itemID := range results {
		ids = append(ids, itemID)
	}
	sort.Strings(ids)

	out := make([]domain.ProcessingResult, 0, len(ids))
	for _, itemID := range ids {
		out = append(out, results[itemID])
	}
	return out
}

func writeRows[T any](header []string, rows []T, toRow func(T) []string) (string, error) {
	var sb strings.Builder
	writer := csv.NewWriter(&sb)

	if err := writer.Write(header); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range rows {
		if err := writer.Write(toRow(row)); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	return sb.String(), nil
}
