// Package normalize maps the loosely shaped payload returned by a migration
// backend onto file record drafts.
//
// Four payload shapes are accepted, tried in order:
//
//  1. a JSON array of file entries
//  2. an object whose "files" field is an array
//  3. an object whose "data.files" field is an array
//  4. an object whose "files" field is an object keyed by index ("0", "1", ...)
//
// Anything else yields no files. Within an entry each field is resolved from
// a fixed list of aliases; the first alias present wins and a literal default
// applies when none is.
package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zulandar/codem/internal/models"
)

// Placeholders used when a backend sends no code for a file.
const (
	OriginalNotProvided  = "// original code not provided by migration backend"
	ConvertedNotProvided = "// converted code not provided by migration backend"
)

// Field aliases, in resolution order.
var (
	pathAliases      = []string{"path", "filePath"}
	statusAliases    = []string{"status"}
	originalAliases  = []string{"originalCode", "source", "srcCode", "original"}
	convertedAliases = []string{"kotlinCode", "target", "dstCode", "converted"}
	notesAliases     = []string{"notes", "comment", "message"}
)

// Shape identifies which payload layout the files were found in.
type Shape int

const (
	ShapeNone Shape = iota
	ShapeArray
	ShapeFiles
	ShapeDataFiles
	ShapeFilesMap
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapeFiles:
		return "files"
	case ShapeDataFiles:
		return "data.files"
	case ShapeFilesMap:
		return "files-map"
	default:
		return "none"
	}
}

// Draft is a file record before the orchestrator assigns its ID and run.
type Draft struct {
	Path           string
	Status         string
	OriginalCode   string
	ConvertedCode  string
	Notes          string
	SourceLanguage string
	TargetLanguage string
}

// Record turns the draft into a FileRecord owned by runID.
func (d Draft) Record(id, runID string) models.FileRecord {
	return models.FileRecord{
		ID:             id,
		RunID:          runID,
		Path:           d.Path,
		Status:         d.Status,
		OriginalCode:   d.OriginalCode,
		ConvertedCode:  d.ConvertedCode,
		Notes:          d.Notes,
		SourceLanguage: d.SourceLanguage,
		TargetLanguage: d.TargetLanguage,
	}
}

// Decode parses a response body. An empty body decodes as an empty object.
// Numbers are kept as json.Number so their text survives unchanged.
func Decode(body []byte) (any, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("normalize: decode body: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("normalize: decode body: trailing data after JSON value")
	}
	return v, nil
}

// Files extracts the file entries from payload and resolves each one.
func Files(payload any) ([]Draft, Shape) {
	entries, shape := entries(payload)
	drafts := make([]Draft, 0, len(entries))
	for i, e := range entries {
		drafts = append(drafts, resolve(i, e))
	}
	return drafts, shape
}

// entries locates the raw file list in payload.
func entries(payload any) ([]any, Shape) {
	if list, ok := payload.([]any); ok {
		return list, ShapeArray
	}
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, ShapeNone
	}
	if list, ok := obj["files"].([]any); ok {
		return list, ShapeFiles
	}
	if data, ok := obj["data"].(map[string]any); ok {
		if list, ok := data["files"].([]any); ok {
			return list, ShapeDataFiles
		}
	}
	if m, ok := obj["files"].(map[string]any); ok {
		return valuesInKeyOrder(m), ShapeFilesMap
	}
	return nil, ShapeNone
}

// valuesInKeyOrder returns m's values with numeric keys first in numeric
// order, then any other keys lexically.
func valuesInKeyOrder(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, errI := strconv.ParseFloat(strings.TrimSpace(keys[i]), 64)
		nj, errJ := strconv.ParseFloat(strings.TrimSpace(keys[j]), 64)
		switch {
		case errI == nil && errJ == nil:
			if ni != nj {
				return ni < nj
			}
			return keys[i] < keys[j]
		case errI == nil:
			return true
		case errJ == nil:
			return false
		default:
			return keys[i] < keys[j]
		}
	})
	values := make([]any, len(keys))
	for i, k := range keys {
		values[i] = m[k]
	}
	return values
}

// resolve maps one raw entry onto a Draft. Entries that are not objects
// resolve entirely to defaults.
func resolve(index int, entry any) Draft {
	obj, _ := entry.(map[string]any)

	path, ok := firstNonBlank(obj, pathAliases)
	if !ok {
		path = fmt.Sprintf("file_%d.txt", index)
	}
	status, ok := firstNonBlank(obj, statusAliases)
	if !ok {
		status = models.FileMigrated
	}
	original, ok := first(obj, originalAliases)
	if !ok {
		original = OriginalNotProvided
	}
	converted, ok := first(obj, convertedAliases)
	if !ok {
		converted = ConvertedNotProvided
	}
	notes, _ := first(obj, notesAliases)
	src, _ := first(obj, []string{"sourceLanguage"})
	dst, _ := first(obj, []string{"targetLanguage"})

	return Draft{
		Path:           path,
		Status:         status,
		OriginalCode:   original,
		ConvertedCode:  converted,
		Notes:          notes,
		SourceLanguage: src,
		TargetLanguage: dst,
	}
}

// first returns the value of the first alias present in obj. A JSON null
// counts as absent.
func first(obj map[string]any, aliases []string) (string, bool) {
	for _, k := range aliases {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		return text(v), true
	}
	return "", false
}

// firstNonBlank is first, but also skips values that are empty or only
// whitespace.
func firstNonBlank(obj map[string]any, aliases []string) (string, bool) {
	for _, k := range aliases {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		if s := text(v); strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// text renders a decoded JSON value as a string. Strings are returned as is;
// anything else becomes its compact JSON encoding.
func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}
