package prediction

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// ReactionsColumn is the column read from CSV files and session tables.
const ReactionsColumn = "reactions"

// TableStore resolves session tables by name.
type TableStore interface {
	Table(name string) (command.Table, bool)
}

// SourceReader turns an InputSource into the list of reaction strings.
type SourceReader struct {
	workspaceDir string
	tables       TableStore
}

// NewSourceReader resolves relative file paths against workspaceDir and
// table sources against tables, which may be nil.
func NewSourceReader(workspaceDir string, tables TableStore) *SourceReader {
	return &SourceReader{workspaceDir: workspaceDir, tables: tables}
}

// Read returns the trimmed, non-empty inputs of src. Lists read from files
// or tables are rejected when malformed entries are not a minority.
func (r *SourceReader) Read(src command.InputSource) ([]string, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	inputs, err := r.ReadColumn(src, ReactionsColumn)
	if err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, errors.New(errors.ErrCodeRXNInvalidInput, "no reactions provided")
	}
	if src.Kind != command.SourceString && src.Kind != command.SourceList {
		if err := CheckWellFormed(inputs); err != nil {
			return nil, err
		}
	}
	return inputs, nil
}

// ReadColumn returns the trimmed, non-empty values of src. CSV files and
// tables contribute the first column matching one of names.
func (r *SourceReader) ReadColumn(src command.InputSource, names ...string) ([]string, error) {
	var (
		values []string
		err    error
	)
	switch src.Kind {
	case command.SourceString:
		values = []string{src.Value}
	case command.SourceList:
		values = src.List
	case command.SourceCSV:
		values, err = r.readCSV(src.Value, names)
	case command.SourceTXT:
		values, err = r.readTXT(src.Value)
	case command.SourceTable:
		values, err = r.readTable(src.Value, names)
	default:
		err = errors.Newf(errors.ErrCodeRXNInputSourceFailed, "unsupported input source %q", src.Kind)
	}
	if err != nil {
		return nil, err
	}
	return compact(values), nil
}

// CheckWellFormed fails when invalid entries are at least as many as valid ones.
func CheckWellFormed(inputs []string) error {
	valid, invalid := reaction.CountWellFormed(inputs)
	if invalid >= valid {
		return errors.Newf(errors.ErrCodeRXNTooManyInvalid,
			"%d of %d entries are not reactions", invalid, valid+invalid)
	}
	return nil
}

func (r *SourceReader) open(name string) ([]byte, error) {
	path := filepath.Join(r.workspaceDir, filepath.Clean(name))
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Newf(errors.ErrCodeRXNInputSourceFailed, "file %s not found in workspace", name)
		}
		return nil, errors.Wrap(err, errors.ErrCodeRXNInputSourceFailed, "unable to read "+name)
	}
	return data, nil
}

func (r *SourceReader) readCSV(name string, columns []string) ([]string, error) {
	data, err := r.open(name)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRXNInputSourceFailed, "unable to read header of "+name)
	}
	tbl := command.Table{Columns: header}
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeRXNInputSourceFailed, "malformed CSV "+name)
		}
		tbl.Rows = append(tbl.Rows, rec)
	}
	col, ok := tbl.Column(columns...)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeRXNInputSourceFailed, "%s has no %s column", name, strings.Join(columns, "|"))
	}
	return col, nil
}

func (r *SourceReader) readTXT(name string) ([]string, error) {
	data, err := r.open(name)
	if err != nil {
		return nil, err
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRXNInputSourceFailed, "unable to read "+name)
	}
	return out, nil
}

func (r *SourceReader) readTable(name string, columns []string) ([]string, error) {
	if r.tables == nil {
		return nil, errors.Newf(errors.ErrCodeRXNInputSourceFailed, "no table named %s", name)
	}
	tbl, ok := r.tables.Table(name)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeRXNInputSourceFailed, "no table named %s", name)
	}
	col, ok := tbl.Column(columns...)
	if !ok {
		return nil, errors.Newf(errors.ErrCodeRXNInputSourceFailed, "table %s has no %s column", name, strings.Join(columns, "|"))
	}
	return col, nil
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
