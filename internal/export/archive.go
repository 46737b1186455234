package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/Hunselvm/genai/internal/domain"
)

// ArchivePart is one sealed ZIP file of a chunked export.
type ArchivePart struct {
	Filename string
	Data     []byte
}

type archiveEntry struct {
	name string
	data []byte
}

// BuildChunkedArchive packages every completed result's downloaded files
// into ZIP parts, sealing a part whenever the next file would push it past
// maxPartMB of raw content. Results are walked in id order so the part
// layout is stable. A single-part export is named "<prefix>.zip"; multiple
// parts get "_partN" suffixes.
func BuildChunkedArchive(results map[string]domain.ProcessingResult, prefix string, maxPartMB int) ([]ArchivePart, error) {
	if maxPartMB < 1 {
		return nil, fmt.Errorf("max part size must be at least 1 MB")
	}
	maxPartBytes := int64(maxPartMB) * 1024 * 1024

	ids := make([]string, 0, len(results))
	for itemID, result := range results {
		if result.Completed() {
			ids = append(ids, itemID)
		}
	}
	sort.Strings(ids)

	var (
		parts       []ArchivePart
		current     []archiveEntry
		currentSize int64
		partNum     = 1
	)

	seal := func() error {
		if len(current) == 0 {
			return nil
		}
		data, err := zipEntries(current)
		if err != nil {
			return err
		}
		parts = append(parts, ArchivePart{
			Filename: fmt.Sprintf("%s_part%d.zip", prefix, partNum),
			Data:     data,
		})
		current = nil
		currentSize = 0
		partNum++
		return nil
	}

	for _, itemID := range ids {
		result := results[itemID]
		for idx, path := range result.FilePaths {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("read artifact %s: %w", path, err)
			}

			if currentSize+int64(len(data)) > maxPartBytes && len(current) > 0 {
				if err := seal(); err != nil {
					return nil, err
				}
			}

			current = append(current, archiveEntry{
				name: entryName(prefix, result.ID, idx, len(result.FilePaths), path),
				data: data,
			})
			currentSize += int64(len(data))
		}
	}
	if err := seal(); err != nil {
		return nil, err
	}

	// A single part drops the _part1 suffix.
	if len(parts) == 1 {
		parts[0].Filename = prefix + ".zip"
	}
	return parts, nil
}

func entryName(prefix, itemID string, idx, total int, path string) string {
	suffix := ""
	if total > 1 {
		suffix = fmt.Sprintf("_%d", idx+1)
	}
	ext := filepath.Ext(path)
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%s_%s%s%s", prefix, itemID, suffix, ext)
}

func zipEntries(entries []archiveEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := zip.NewWriter(&buf)
	for _, entry := range entries {
		f, err := writer.Create(entry.name)
		if err != nil {
			return nil, fmt.Errorf("add %s to archive: %w", entry.name, err)
		}
		if _, err := f.Write(entry.data); err != nil {
			return nil, fmt.Errorf("write %s to archive: %w", entry.name, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
