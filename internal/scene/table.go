package scene

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Scene table column names.
const (
	ColumnClipName   = "clip_name"
	ColumnClipPath   = "clip_path"
	ColumnWLED       = "wled_command"
	ColumnFogSteps   = "fog_steps"
	ColumnWaterSteps = "water_steps"
	ColumnWeight     = "probability_weight"
)

var requiredColumns = []string{ColumnClipName, ColumnClipPath, ColumnWeight}

// Table is the ordered, immutable set of scenes loaded at startup.
type Table struct {
	scenes []Descriptor
}

// NewTable builds a table from descriptors without touching the filesystem.
// It still rejects an empty set and invalid weights.
func NewTable(scenes []Descriptor) (*Table, error) {
	if len(scenes) == 0 {
		return nil, ErrEmptyTable
	}
	total := 0
	for _, d := range scenes {
		if d.Weight < 0 {
			return nil, fmt.Errorf("%w: scene %q has negative weight %d", ErrInvalidTable, d.ClipName, d.Weight)
		}
		total += d.Weight
	}
	if total == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, ErrNoSelectableScene)
	}
	return &Table{scenes: append([]Descriptor(nil), scenes...)}, nil
}

// Len returns the number of scenes.
func (t *Table) Len() int {
	return len(t.scenes)
}

// Scenes returns a copy of the scenes in table order.
func (t *Table) Scenes() []Descriptor {
	return append([]Descriptor(nil), t.scenes...)
}

// Lookup returns the first scene with the given clip name and its index in
// table order.
func (t *Table) Lookup(clipName string) (Descriptor, int, bool) {
	for i, d := range t.scenes {
		if d.ClipName == clipName {
			return d, i, true
		}
	}
	return Descriptor{}, -1, false
}

// LoadTable reads and validates the scene table at path.
//
// Every problem found is reported in one error wrapping ErrInvalidTable:
// missing columns, an empty table, clip paths that are not regular files,
// malformed timing specs, and invalid weights. Any error is fatal at startup.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening scene table: %w", err)
	}
	defer f.Close()

	scenes, err := ReadTable(f)
	if err != nil {
		return nil, fmt.Errorf("reading scene table %s: %w", path, err)
	}

	var problems []error
	for i, d := range scenes {
		if err := validateDescriptor(d); err != nil {
			problems = append(problems, fmt.Errorf("row %d (%s): %w", i+2, d.ClipName, err))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTable, errors.Join(problems...))
	}

	return NewTable(scenes)
}

// ReadTable parses scene rows from CSV. Columns are matched by header name
// so their order does not matter. It does not check clip paths.
func ReadTable(r io.Reader) ([]Descriptor, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyTable
	}
	if err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrInvalidTable, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrInvalidTable, col)
		}
	}

	field := func(record []string, col string) string {
		i, ok := index[col]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var scenes []Descriptor
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidTable, err)
		}

		weightRaw := field(record, ColumnWeight)
		weight, err := strconv.Atoi(weightRaw)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: weight %q is not an integer", ErrInvalidTable, line, weightRaw)
		}

		scenes = append(scenes, Descriptor{
			ClipName:        field(record, ColumnClipName),
			ClipPath:        field(record, ColumnClipPath),
			LightingCommand: field(record, ColumnWLED),
			FogSteps:        field(record, ColumnFogSteps),
			WaterSteps:      field(record, ColumnWaterSteps),
			Weight:          weight,
		})
	}

	if len(scenes) == 0 {
		return nil, ErrEmptyTable
	}
	return scenes, nil
}

func validateDescriptor(d Descriptor) error {
	var problems []error

	if d.ClipName == "" {
		problems = append(problems, errors.New("clip_name is empty"))
	}
	if d.Weight < 0 {
		problems = append(problems, fmt.Errorf("weight %d is negative", d.Weight))
	}

	path := ExpandHome(d.ClipPath)
	info, err := os.Stat(path)
	switch {
	case d.ClipPath == "":
		problems = append(problems, errors.New("clip_path is empty"))
	case err != nil:
		problems = append(problems, fmt.Errorf("clip_path: %w", err))
	case !info.Mode().IsRegular():
		problems = append(problems, fmt.Errorf("clip_path %s is not a regular file", path))
	}

	if _, err := ParseSteps(d.FogSteps); err != nil {
		problems = append(problems, fmt.Errorf("fog_steps: %w", err))
	}
	if _, err := ParseSteps(d.WaterSteps); err != nil {
		problems = append(problems, fmt.Errorf("water_steps: %w", err))
	}

	return errors.Join(problems...)
}

// ExpandHome replaces a leading "~" with the current user's home directory.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
