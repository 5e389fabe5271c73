package command

import (
	"path/filepath"
	"strings"

	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// SourceKind tells where a list of inputs comes from.
type SourceKind string

const (
	SourceString SourceKind = "string"
	SourceList   SourceKind = "list"
	SourceCSV    SourceKind = "csv"
	SourceTXT    SourceKind = "txt"
	SourceTable  SourceKind = "table"
)

// InputSource is one of: a single string, an inline list, a workspace file
// or a table held in the session.
type InputSource struct {
	Kind  SourceKind `json:"kind"`
	Value string     `json:"value,omitempty"`
	List  []string   `json:"list,omitempty"`
}

// FromString, FromList and FromTable build the non-file sources.
func FromString(s string) InputSource { return InputSource{Kind: SourceString, Value: s} }
func FromList(l []string) InputSource { return InputSource{Kind: SourceList, List: l} }
func FromTable(name string) InputSource {
	return InputSource{Kind: SourceTable, Value: name}
}

// FromFile picks csv or txt by extension. Other extensions are rejected.
func FromFile(name string) (InputSource, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		return InputSource{Kind: SourceCSV, Value: name}, nil
	case ".txt":
		return InputSource{Kind: SourceTXT, Value: name}, nil
	}
	return InputSource{}, errors.Newf(errors.ErrCodeRXNInputSourceFailed, "unsupported file type %q, expected .csv or .txt", name)
}

// IsFile reports whether the inputs are read from the workspace.
func (s InputSource) IsFile() bool {
	return s.Kind == SourceCSV || s.Kind == SourceTXT
}

func (s InputSource) Validate() error {
	switch s.Kind {
	case SourceString:
		if strings.TrimSpace(s.Value) == "" {
			return errors.New(errors.ErrCodeRXNInvalidInput, "input must not be empty")
		}
	case SourceList:
		if len(s.List) == 0 {
			return errors.New(errors.ErrCodeRXNInvalidInput, "input list must not be empty")
		}
	case SourceCSV, SourceTXT:
		if s.Value == "" || filepath.IsAbs(s.Value) || strings.HasPrefix(filepath.Clean(s.Value), "..") {
			return errors.Newf(errors.ErrCodeRXNInputSourceFailed, "file %q must be relative to the workspace", s.Value)
		}
	case SourceTable:
		if s.Value == "" {
			return errors.New(errors.ErrCodeRXNInputSourceFailed, "table name is required")
		}
	default:
		return errors.Newf(errors.ErrCodeRXNInputSourceFailed, "unknown input source %q", s.Kind)
	}
	return nil
}

// Table is a named tabular value kept in the session, for example the
// result of an earlier command.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// ColumnIndex finds the first column whose name matches one of names,
// ignoring case and surrounding blanks.
func (t Table) ColumnIndex(names ...string) int {
	for i, c := range t.Columns {
		c = strings.TrimSpace(c)
		for _, n := range names {
			if strings.EqualFold(c, n) {
				return i
			}
		}
	}
	return -1
}

// Column returns the non-empty values of the first matching column.
func (t Table) Column(names ...string) ([]string, bool) {
	idx := t.ColumnIndex(names...)
	if idx < 0 {
		return nil, false
	}
	out := make([]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		if idx < len(r) {
			if v := strings.TrimSpace(r[idx]); v != "" {
				out = append(out, v)
			}
		}
	}
	return out, true
}
