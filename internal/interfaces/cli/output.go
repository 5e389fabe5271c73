package cli

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/turtacn/OpenAD-Plugins/internal/application/reporting"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
)

// Result is what a command prints. Text is the rich rendering, Table the
// tabular one and Data the value encoded for json and yaml.
type Result struct {
	Text  string
	Table *command.Table
	Data  interface{}
}

// PrintResult writes res in the selected output format.
func (c *CLIContext) PrintResult(cmd *cobra.Command, res Result) error {
	w := cmd.OutOrStdout()
	switch c.Format {
	case reporting.FormatJSON, reporting.FormatYAML:
		data := res.Data
		if data == nil && res.Table != nil {
			data = res.Table
		}
		if data == nil {
			data = map[string]string{"message": res.Text}
		}
		if c.Format == reporting.FormatJSON {
			return reporting.WriteJSON(w, data)
		}
		return reporting.WriteYAML(w, data)
	case reporting.FormatTable:
		if res.Table != nil {
			return reporting.RenderTable(w, *res.Table)
		}
	}
	if res.Text == "" && res.Table != nil {
		return reporting.RenderTable(w, *res.Table)
	}
	_, err := fmt.Fprintln(w, res.Text)
	return err
}

// SaveTable writes tbl as CSV into the workspace and, when an export archive
// is configured, uploads a copy. Upload failures are only logged.
func (c *CLIContext) SaveTable(cmd *cobra.Command, name string, tbl command.Table) error {
	if name == "" {
		return nil
	}
	path, err := reporting.SaveCSV(c.Config.Workspace.RootDir, name, tbl)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Saved to %s\n", path)

	archive := c.Infra.Archive()
	if archive == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := reporting.WriteCSV(&buf, tbl); err != nil {
		return err
	}
	key, err := archive.Upload(cmd.Context(), c.Config.Workspace.Name, filepath.Base(path), buf.Bytes())
	if err != nil {
		c.Logger.Warn("export upload failed", logging.String("file", path), logging.Err(err))
		return nil
	}
	c.Logger.Info("export uploaded", logging.String("key", key))
	return nil
}
