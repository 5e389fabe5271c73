package reporting

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// Format is an output encoding.
type Format string

const (
	FormatText  Format = "text"
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat accepts text, table, json and yaml in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", errors.Newf(errors.ErrCodeValidation, "unknown output format %q", s)
}

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode json")
	}
	return nil
}

// WriteYAML writes v as a YAML document.
func WriteYAML(w io.Writer, v interface{}) error {
	// Round trip through JSON so that yaml keys follow the json tags.
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode yaml")
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode yaml")
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode yaml")
	}
	return enc.Close()
}

// WriteCSV writes the header followed by every row.
func WriteCSV(w io.Writer, tbl command.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(tbl.Columns); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to write csv")
	}
	for _, r := range tbl.Rows {
		if err := cw.Write(padRow(r, len(tbl.Columns))); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to write csv")
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveCSV writes tbl to name inside workspaceDir and returns the full path.
// A missing .csv extension is added.
func SaveCSV(workspaceDir, name string, tbl command.Table) (string, error) {
	clean := filepath.Clean(strings.TrimSpace(name))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", errors.Newf(errors.ErrCodeValidation, "save as: %q must stay inside the workspace", name)
	}
	if !strings.EqualFold(filepath.Ext(clean), ".csv") {
		clean += ".csv"
	}
	path := filepath.Join(workspaceDir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to create directory")
	}
	f, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to create "+clean)
	}
	if err := WriteCSV(f, tbl); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to close "+clean)
	}
	return path, nil
}
