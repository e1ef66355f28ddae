// Package dataset loads the raw dose-response workbook and reshapes the
// replicate-wide sheet into long-form observations.
//
// The input sheet carries one row per experimental condition (dose, exposure
// time, treatment group) and N replicate columns sharing a common name prefix.
// Nothing here transforms values numerically; blank or unparsable replicate
// cells become NaN so downstream stages can apply their own missing-value
// policy.
package dataset

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SchemaError reports a required input column that is absent or unusable.
type SchemaError struct {
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: column %q: %s", e.Column, e.Reason)
}

// Columns names the required sheet columns and the replicate column prefix.
type Columns struct {
	Dose            string
	Time            string
	Group           string
	ReplicatePrefix string
}

// DefaultColumns matches the lab's export convention.
func DefaultColumns() Columns {
	return Columns{Dose: "Dose", Time: "Time", Group: "Group", ReplicatePrefix: "Rep"}
}

// WideRow is one experimental condition with its replicate values kept wide.
// Values is parallel to WideTable.ReplicateCols; NaN marks a missing cell.
type WideRow struct {
	Dose   float64
	Time   string
	Group  string
	Values []float64
}

// WideTable is the typed form of the input sheet.
type WideTable struct {
	ReplicateCols []string
	Rows          []WideRow
}

// Observation is one replicate measurement in long form. Value is NaN when
// the source cell was blank or failed to parse.
type Observation struct {
	Dose      float64
	Time      string
	Group     string
	Replicate string
	Value     float64
}

// Loader reads a workbook sheet into a WideTable.
type Loader struct {
	cols Columns
	log  *zap.Logger
}

// NewLoader builds a Loader. A nil logger is replaced with zap.NewNop().
func NewLoader(cols Columns, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{cols: cols, log: log}
}

// LoadWorkbook reads one sheet of an xlsx workbook. The first row is the
// header; dose/time/group columns are located by exact name, replicate
// columns by name prefix. Rows with no dose cell are rejected; blank
// replicate cells become NaN.
func (l *Loader) LoadWorkbook(path, sheet string) (*WideTable, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, &SchemaError{Column: l.cols.Dose, Reason: "sheet is empty"}
	}
	return l.parseRows(rows)
}

func (l *Loader) parseRows(rows [][]string) (*WideTable, error) {
	header := rows[0]
	doseIdx, timeIdx, groupIdx := -1, -1, -1
	var repIdx []int
	var repNames []string
	for i, name := range header {
		name = strings.TrimSpace(name)
		switch name {
		case l.cols.Dose:
			doseIdx = i
		case l.cols.Time:
			timeIdx = i
		case l.cols.Group:
			groupIdx = i
		default:
			if l.cols.ReplicatePrefix != "" && strings.HasPrefix(name, l.cols.ReplicatePrefix) {
				repIdx = append(repIdx, i)
				repNames = append(repNames, name)
			}
		}
	}
	if doseIdx < 0 {
		return nil, &SchemaError{Column: l.cols.Dose, Reason: "not present in header"}
	}
	if timeIdx < 0 {
		return nil, &SchemaError{Column: l.cols.Time, Reason: "not present in header"}
	}
	if groupIdx < 0 {
		return nil, &SchemaError{Column: l.cols.Group, Reason: "not present in header"}
	}
	if len(repIdx) == 0 {
		return nil, &SchemaError{Column: l.cols.ReplicatePrefix + "*", Reason: "no replicate columns match prefix"}
	}

	table := &WideTable{ReplicateCols: repNames}
	for rn, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		cell := cellAt(row, doseIdx)
		if cell == "" {
			return nil, &SchemaError{Column: l.cols.Dose, Reason: fmt.Sprintf("blank dose in data row %d", rn+2)}
		}
		dose, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return nil, &SchemaError{Column: l.cols.Dose, Reason: fmt.Sprintf("row %d: %q is not numeric", rn+2, cell)}
		}
		wr := WideRow{
			Dose:   dose,
			Time:   strings.TrimSpace(cellAt(row, timeIdx)),
			Group:  strings.TrimSpace(cellAt(row, groupIdx)),
			Values: make([]float64, len(repIdx)),
		}
		for k, ci := range repIdx {
			raw := strings.TrimSpace(cellAt(row, ci))
			if raw == "" {
				wr.Values[k] = math.NaN()
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				l.log.Debug("unparsable replicate cell treated as missing",
					zap.Int("row", rn+2), zap.String("column", repNames[k]), zap.String("cell", raw))
				v = math.NaN()
			}
			wr.Values[k] = v
		}
		table.Rows = append(table.Rows, wr)
	}
	return table, nil
}

// Reshape melts the wide table into one Observation per (condition,
// replicate) pair. Condition fields are copied unchanged and the replicate
// column name is preserved as the observation's Replicate identifier.
func Reshape(w *WideTable) ([]Observation, error) {
	if len(w.ReplicateCols) == 0 {
		return nil, &SchemaError{Column: "replicates", Reason: "wide table has no replicate columns"}
	}
	obs := make([]Observation, 0, len(w.Rows)*len(w.ReplicateCols))
	for _, row := range w.Rows {
		for k, name := range w.ReplicateCols {
			v := math.NaN()
			if k < len(row.Values) {
				v = row.Values[k]
			}
			obs = append(obs, Observation{
				Dose:      row.Dose,
				Time:      row.Time,
				Group:     row.Group,
				Replicate: name,
				Value:     v,
			})
		}
	}
	return obs, nil
}

func cellAt(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func isBlankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
