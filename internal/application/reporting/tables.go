package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/turtacn/OpenAD-Plugins/internal/application/prediction"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/command"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// ReactionsTable has one row per input, or one row per candidate for top-N
// batches. Invalid inputs have an empty prediction.
func ReactionsTable(res *reaction.BatchResult) command.Table {
	tbl := command.Table{Columns: []string{"input", "status", "prediction", "confidence"}}
	if res == nil {
		return tbl
	}
	topn := res.Params.IsTopN()
	if topn {
		tbl.Columns = []string{"input", "status", "rank", "prediction", "confidence"}
	}
	for _, r := range res.Records {
		status := string(r.Provenance)
		if r.Prediction == nil {
			row := []string{r.Input, status, "", ""}
			if topn {
				row = []string{r.Input, status, "", "", ""}
			}
			tbl.Rows = append(tbl.Rows, row)
			continue
		}
		if !topn {
			tbl.Rows = append(tbl.Rows, []string{r.Input, status, r.Prediction.Smiles(), confidenceCell(r.Prediction)})
			continue
		}
		for i, c := range r.Prediction.TopN() {
			tbl.Rows = append(tbl.Rows, []string{r.Input, status, strconv.Itoa(i + 1), c.Smiles(), confidenceCell(c)})
		}
	}
	return tbl
}

func confidenceCell(p reaction.Payload) string {
	c, ok := p.Confidence()
	if !ok {
		return ""
	}
	return strconv.FormatFloat(c, 'f', -1, 64)
}

// RetroTable is the flat route table: one row per leaf with
// "compound [step k]" / "confidence [step k]" columns.
func RetroTable(res *reaction.RetroResult) command.Table {
	if res == nil {
		return command.Table{}
	}
	tbl := command.Table{Columns: FlatColumnsWithPath(res.Rows)}
	rowPath := pathOfRows(res)
	for i, r := range res.Rows {
		cols := r.Columns()
		row := make([]string, len(tbl.Columns))
		row[0] = strconv.Itoa(rowPath[i])
		for j, name := range tbl.Columns[1:] {
			switch v := cols[name].(type) {
			case string:
				row[j+1] = v
			case float64:
				row[j+1] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		}
		tbl.Rows = append(tbl.Rows, row)
	}
	return tbl
}

// FlatColumnsWithPath prefixes reaction.FlatColumns with the path index.
func FlatColumnsWithPath(rows []reaction.FlatRow) []string {
	return append([]string{"path"}, reaction.FlatColumns(rows)...)
}

// pathOfRows maps every flat row back to the index of its tree. Rows follow
// Paths, which skip nil trees.
func pathOfRows(res *reaction.RetroResult) []int {
	out := make([]int, 0, len(res.Rows))
	for _, p := range res.Paths {
		if p.Index < 0 || p.Index >= len(res.Trees) {
			continue
		}
		for n := res.Trees[p.Index].LeafCount(); n > 0; n-- {
			out = append(out, p.Index)
		}
	}
	for len(out) < len(res.Rows) {
		out = append(out, -1)
	}
	return out
}

// RetroPathsTable has one row per route with its reactions.
func RetroPathsTable(res *reaction.RetroResult) command.Table {
	tbl := command.Table{Columns: []string{"path", "confidence", "reactions"}}
	if res == nil {
		return tbl
	}
	for _, p := range res.Paths {
		tbl.Rows = append(tbl.Rows, []string{
			strconv.Itoa(p.Index),
			strconv.FormatFloat(p.Confidence, 'f', -1, 64),
			strings.Join(p.Reactions, "\n"),
		})
	}
	return tbl
}

// ModelsTable has one row per model family with its comma-joined versions.
func ModelsTable(models []prediction.ModelVersions) command.Table {
	tbl := command.Table{Columns: []string{"Model", "Versions"}}
	for _, m := range models {
		tbl.Rows = append(tbl.Rows, []string{m.Model, strings.Join(m.Versions, ", ")})
	}
	return tbl
}

// RecipeTable has one numbered row per action.
func RecipeTable(r *prediction.Recipe) command.Table {
	tbl := command.Table{Columns: []string{"#", "Action"}}
	if r == nil {
		return tbl
	}
	for i, a := range r.Actions {
		tbl.Rows = append(tbl.Rows, []string{strconv.Itoa(i + 1), a})
	}
	return tbl
}

// RenderTable writes tbl as a text table.
func RenderTable(w io.Writer, tbl command.Table) error {
	table := tablewriter.NewWriter(w)
	table.Header(tbl.Columns)
	for _, row := range tbl.Rows {
		if err := table.Append(padRow(row, len(tbl.Columns))); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to render table")
		}
	}
	if err := table.Render(); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to render table")
	}
	_, err := fmt.Fprintf(w, "%d rows\n", len(tbl.Rows))
	return err
}

func padRow(row []string, n int) []string {
	if len(row) >= n {
		return row[:n]
	}
	out := make([]string, n)
	copy(out, row)
	return out
}
