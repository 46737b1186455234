package domain

import (
	"fmt"
	"strings"
)

const (
	promptMinLen = 10
	promptMaxLen = 2000

	maxArtifactsPerItem = 4
)

// ProcessingItem is one unit of generation work: a single prompt that may
// produce up to maxArtifactsPerItem artifacts. Immutable once enqueued.
type ProcessingItem struct {
	ID                 string `json:"id"`
	Prompt             string `json:"prompt"`
	Count              int    `json:"count"`
	ReferenceFramePath string `json:"reference_frame_path,omitempty"`
}

// Normalize fills defaults and clamps the artifact count.
func (i ProcessingItem) Normalize() ProcessingItem {
	if i.Count < 1 {
		i.Count = 1
	}
	if i.Count > maxArtifactsPerItem {
		i.Count = maxArtifactsPerItem
	}
	return i
}

// ValidateItems screens a batch before any remote work starts. It returns
// the usable items plus one message per rejected item.
func ValidateItems(items []ProcessingItem) ([]ProcessingItem, []string) {
	valid := make([]ProcessingItem, 0, len(items))
	var problems []string

	for _, item := range items {
		itemID := item.ID
		if itemID == "" {
			itemID = "unknown"
		}
		prompt := strings.TrimSpace(item.Prompt)

		switch {
		case prompt == "":
			problems = append(problems, fmt.Sprintf("%s: empty prompt", itemID))
		case len(prompt) < promptMinLen:
			problems = append(problems, fmt.Sprintf("%s: prompt too short (min %d chars, got %d)", itemID, promptMinLen, len(prompt)))
		case len(prompt) > promptMaxLen:
			problems = append(problems, fmt.Sprintf("%s: prompt too long (max %d chars, got %d)", itemID, promptMaxLen, len(prompt)))
		default:
			item.Prompt = prompt
			valid = append(valid, item.Normalize())
		}
	}

	return valid, problems
}
