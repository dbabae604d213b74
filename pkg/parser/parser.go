// Package parser reads bamsync tabular input files.
//
// Input is UTF-8 CSV with an optional byte-order-mark, a header row whose
// first column must be row_id, and # comment lines carrying export
// metadata. Validation errors are collected per row rather than aborting,
// so a single run can report every problem in the file.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/netgrove/bamsync/internal/logger"
	"github.com/netgrove/bamsync/pkg/model"
)

// utf8BOM is the byte-order-mark some exporters prepend.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// schemaPragma marks the comment line carrying the file schema version.
const schemaPragma = "# bamsync-schema:"

// DefaultSchemaVersions is the closed set of schema versions this build
// understands.
var DefaultSchemaVersions = []string{"v1", "v2"}

// Options configures parsing behavior.
type Options struct {
	// Strict causes any validation error (including unknown object types)
	// to fail the parse. When false, invalid rows are dropped with a
	// warning and valid rows proceed.
	Strict bool

	// SchemaVersions overrides the supported schema version set.
	SchemaVersions []string
}

// Result is the outcome of parsing one input stream.
type Result struct {
	Rows     []*model.Row
	Errors   []model.ValidationError
	Warnings []string
}

// ErrStrictValidation is returned by Parse in strict mode when any row
// failed validation. The Result still carries the collected errors.
var ErrStrictValidation = errors.New("input failed strict validation")

// envelope columns handled outside the per-kind schemas.
var envelopeColumns = map[string]bool{
	"row_id":        true,
	"action":        true,
	"object_type":   true,
	"configuration": true,
	"view":          true,
}

// Parse reads the full stream and returns rows plus collected errors.
//
// The returned Result is valid even when err is non-nil, except for I/O and
// malformed-CSV errors which abort immediately.
func Parse(r io.Reader, opts Options) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	raw = bytes.TrimPrefix(raw, utf8BOM)

	result := &Result{}
	checkSchemaVersion(raw, opts, result)

	reader := csv.NewReader(bytes.NewReader(raw))
	reader.Comment = '#'
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.New("input is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if len(header) == 0 || header[0] != "row_id" {
		return nil, fmt.Errorf("first column must be row_id, got %q", header[0])
	}

	columnIndex := make(map[string]int, len(header))
	for i, name := range header {
		if name == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
		if _, dup := columnIndex[name]; dup {
			return nil, fmt.Errorf("duplicate header column %q", name)
		}
		columnIndex[name] = i
	}

	seen := make(map[string]int)
	line := 1

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record: %w", err)
		}
		line++

		row := recordToRow(header, record)

		if prev, dup := seen[row.RowID]; dup {
			result.Errors = append(result.Errors, model.ValidationError{
				RowID:   row.RowID,
				Field:   "row_id",
				Message: fmt.Sprintf("duplicate row_id (first seen at record %d)", prev),
			})
			continue
		}
		seen[row.RowID] = line

		if !model.KnownType(row.ObjectType) && !opts.Strict {
			warning := fmt.Sprintf("row %s: unknown object type %q, skipping", row.RowID, row.ObjectType)
			result.Warnings = append(result.Warnings, warning)
			logger.Warn("skipping row with unknown object type",
				"row_id", row.RowID, "object_type", string(row.ObjectType))
			continue
		}

		if errs := model.ValidateRow(row); len(errs) > 0 {
			result.Errors = append(result.Errors, errs...)
			continue
		}

		result.Rows = append(result.Rows, row)
	}

	if opts.Strict && len(result.Errors) > 0 {
		return result, ErrStrictValidation
	}

	for _, e := range result.Errors {
		result.Warnings = append(result.Warnings, e.Error())
	}

	return result, nil
}

// recordToRow splits a CSV record into the row envelope and field bag.
func recordToRow(header, record []string) *model.Row {
	row := &model.Row{Fields: make(map[string]string)}

	for i, name := range header {
		if i >= len(record) {
			break
		}
		value := strings.TrimSpace(record[i])
		switch name {
		case "row_id":
			row.RowID = value
		case "action":
			row.Action = model.Action(strings.ToLower(value))
		case "object_type":
			row.ObjectType = model.ObjectType(strings.ToLower(value))
		case "configuration":
			row.Configuration = value
		case "view":
			row.View = value
		default:
			if value != "" {
				row.Fields[name] = value
			}
		}
	}

	return row
}

// checkSchemaVersion scans comment lines for the schema pragma and records
// a single warning when the version is outside the supported set. Files
// without a pragma are accepted silently.
func checkSchemaVersion(raw []byte, opts Options, result *Result) {
	supported := opts.SchemaVersions
	if len(supported) == 0 {
		supported = DefaultSchemaVersions
	}

	for _, lineBytes := range bytes.Split(raw, []byte{'\n'}) {
		text := strings.TrimSpace(string(lineBytes))
		if !strings.HasPrefix(text, "#") {
			if text != "" {
				return // pragma must precede data
			}
			continue
		}
		if !strings.HasPrefix(text, schemaPragma) {
			continue
		}
		version := strings.TrimSpace(strings.TrimPrefix(text, schemaPragma))
		for _, v := range supported {
			if version == v {
				return
			}
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("unsupported schema version %q (supported: %s)", version, strings.Join(supported, ", ")))
		return
	}
}

// Header returns the canonical export header for an object type: the
// envelope columns followed by the schema's declared fields.
func Header(t model.ObjectType) []string {
	columns := []string{"row_id", "action", "object_type", "configuration", "view"}
	schema, ok := model.Schemas[t]
	if !ok {
		return columns
	}
	for _, f := range schema.Fields {
		columns = append(columns, f.Name)
	}
	return columns
}

// WriteRows writes rows as CSV using the canonical header of the first
// row's object type plus any extra field columns present. Used by export
// and by the rollback plan writer.
func WriteRows(w io.Writer, rows []*model.Row, comments []string) error {
	for _, c := range comments {
		if _, err := fmt.Fprintf(w, "# %s\n", strings.TrimPrefix(c, "# ")); err != nil {
			return fmt.Errorf("failed to write comment: %w", err)
		}
	}

	if len(rows) == 0 {
		return nil
	}

	columns := []string{"row_id", "action", "object_type", "configuration", "view"}
	seen := make(map[string]bool, len(columns))
	for _, c := range columns {
		seen[c] = true
	}
	for _, row := range rows {
		for _, name := range row.FieldNames() {
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for _, row := range rows {
		record := make([]string, len(columns))
		for i, name := range columns {
			switch name {
			case "row_id":
				record[i] = row.RowID
			case "action":
				record[i] = string(row.Action)
			case "object_type":
				record[i] = string(row.ObjectType)
			case "configuration":
				record[i] = row.Configuration
			case "view":
				record[i] = row.View
			default:
				record[i] = row.Fields[name]
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
