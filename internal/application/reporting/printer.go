// Package reporting renders prediction and search results as terminal
// text, tables and exported files.
package reporting

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/turtacn/OpenAD-Plugins/internal/application/prediction"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
)

// Flag marks a reaction header.
type Flag string

const (
	FlagNone   Flag = ""
	FlagCached Flag = "cached"
	FlagFailed Flag = "failed"
)

const (
	meterWidth = 24
	ruleLine   = "————————————————————————————"
	arrowRule  = "   -------------------------"
)

// Printer builds the console representation of results. With color off
// the output is plain text.
type Printer struct {
	color bool
}

// NewPrinter returns a Printer. With color false no ANSI sequences are
// written.
func NewPrinter(colorEnabled bool) *Printer {
	return &Printer{color: colorEnabled}
}

func (p *Printer) paint(s string, attrs ...color.Attribute) string {
	if !p.color || len(attrs) == 0 {
		return s
	}
	c := color.New(attrs...)
	c.EnableColor()
	return c.Sprint(s)
}

func (p *Printer) soft(s string) string { return p.paint(s, color.Faint) }

// Header is "Reaction #i" or, for a single reaction, "Reaction Result".
func (p *Printer) Header(index int, flag Flag) string {
	title := "Reaction Result"
	if index > 0 {
		title = fmt.Sprintf("Reaction #%d", index)
	}
	head := p.paint(title, color.FgYellow)
	switch flag {
	case FlagCached:
		head += " " + p.paint(" CACHED ", color.ReverseVideo)
	case FlagFailed:
		head += " " + p.paint(" FAILED ", color.BgRed)
	}
	return head + "\n" + ruleLine
}

// Reaction lists the inputs as typed by the user followed by the product.
func (p *Printer) Reaction(fragments []string, product string) string {
	lines := make([]string, 0, len(fragments)+2)
	for _, f := range fragments {
		lines = append(lines, p.soft("+")+"  "+f)
	}
	lines = append(lines, p.soft(arrowRule), p.soft("=>")+" "+p.paint(product, color.FgGreen))
	return strings.Join(lines, "\n")
}

// InvalidReaction marks each fragment valid or not.
func (p *Printer) InvalidReaction(fragments, invalid []string) string {
	bad := make(map[string]bool, len(invalid))
	for _, f := range invalid {
		bad[f] = true
	}
	lines := make([]string, 0, len(fragments)+2)
	for _, f := range fragments {
		if bad[f] {
			lines = append(lines, p.soft("+")+"  "+p.paint("✖ "+f, color.FgRed))
		} else {
			lines = append(lines, p.soft("+")+"  "+p.paint("✔", color.FgGreen)+" "+f)
		}
	}
	lines = append(lines, p.soft(arrowRule), p.soft("=> Skipped due to invalid SMILES"))
	return strings.Join(lines, "\n")
}

// ConfidenceBand returns the color of a 0-1 confidence score.
func ConfidenceBand(conf float64) color.Attribute {
	pct := conf * 100
	switch {
	case pct > 90:
		return color.FgGreen
	case pct > 70:
		return color.FgYellow
	case pct > 50:
		return color.Reset
	}
	return color.FgRed
}

// Percent rounds conf to two decimals of a percent and drops trailing zeros.
func Percent(conf float64) string {
	return strconv.FormatFloat(math.Round(conf*10000)/100, 'f', -1, 64) + "%"
}

// Confidence renders a 24 segment meter and the score. A missing or zero
// score renders as "Confidence: n/a".
func (p *Printer) Confidence(conf float64, ok bool) string {
	if !ok || conf == 0 {
		return "   " + p.soft(strings.Repeat("━", meterWidth)) + "\n   " + p.soft("Confidence: n/a")
	}
	band := ConfidenceBand(conf)
	filled := int(math.Round(conf*100/4)) - 1
	if filled < 0 {
		filled = 0
	}
	if filled > meterWidth {
		filled = meterWidth
	}
	meter := p.paint(strings.Repeat("━", filled)+"╸", band) + p.soft(strings.Repeat("━", meterWidth-filled))
	return "   " + meter + "\n   " + p.paint(Percent(conf), band) + " " + p.soft("confidence")
}

// Record renders one reassembled record. total decides whether the header
// carries an index.
func (p *Printer) Record(rec reaction.Record, total int) string {
	index := 0
	if total > 1 {
		index = rec.Index + 1
	}

	switch rec.Provenance {
	case reaction.ProvenanceInvalid:
		return p.Header(index, FlagFailed) + "\n" + p.InvalidReaction(rec.Fragments(), rec.InvalidFragments)
	case reaction.ProvenanceCached:
		return p.Header(index, FlagCached) + "\n" + p.prediction(rec)
	}
	return p.Header(index, FlagNone) + "\n" + p.prediction(rec)
}

func (p *Printer) prediction(rec reaction.Record) string {
	if rec.Prediction == nil {
		return p.soft("=> No prediction returned")
	}
	if top := rec.Prediction.TopN(); len(top) > 0 {
		parts := make([]string, 0, len(top))
		for i, c := range top {
			conf, ok := c.Confidence()
			parts = append(parts, p.soft(fmt.Sprintf("Candidate #%d", i+1))+"\n"+
				p.Reaction(rec.Fragments(), c.Product())+"\n"+p.Confidence(conf, ok))
		}
		return strings.Join(parts, "\n\n")
	}
	conf, ok := rec.Prediction.Confidence()
	return p.Reaction(rec.Fragments(), rec.Prediction.Product()) + "\n" + p.Confidence(conf, ok)
}

// Batch renders every record in input order, blank-line separated.
func (p *Printer) Batch(res *reaction.BatchResult) string {
	if res == nil {
		return ""
	}
	parts := make([]string, 0, len(res.Records)+1)
	for _, r := range res.Records {
		parts = append(parts, p.Record(r, len(res.Records)))
	}
	if res.JobID != "" {
		parts = append(parts, p.paint("Task id:", color.FgYellow)+" "+p.soft(res.JobID))
	}
	return strings.Join(parts, "\n\n")
}

// Retro renders the routes of a retrosynthesis, one section per path.
func (p *Printer) Retro(res *reaction.RetroResult) string {
	if res == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(p.paint("Target Molecule:", color.FgGreen) + " " + res.Target)
	if res.FromCache {
		b.WriteString(" " + p.paint(" CACHED ", color.ReverseVideo))
	}
	b.WriteString("\n")
	for i, path := range res.Paths {
		b.WriteString("\n")
		b.WriteString(fmt.Sprintf("Showing path %s with confidence %s\n",
			p.paint(strconv.Itoa(path.Index), color.FgYellow),
			p.paint(strconv.FormatFloat(path.Confidence, 'f', -1, 64), color.FgYellow)))
		for _, r := range path.Reactions {
			b.WriteString(p.paint("Reaction: ", color.FgGreen) + r + "\n")
		}
		if i < len(res.Display) {
			b.WriteString(p.Tree(res.Display[i]))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// Tree draws a display tree with box characters.
func (p *Printer) Tree(root reaction.DisplayNode) string {
	type frame struct {
		node   reaction.DisplayNode
		prefix string
		last   bool
		root   bool
	}
	var b strings.Builder
	stack := []frame{{node: root, root: true}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		label := f.node.Value + " " + p.soft("("+Percent(f.node.Confidence)+")")
		childPrefix := f.prefix
		if f.root {
			b.WriteString(label + "\n")
		} else {
			branch := "├── "
			childPrefix += "│   "
			if f.last {
				branch = "└── "
				childPrefix = f.prefix + "    "
			}
			b.WriteString(f.prefix + branch + label + "\n")
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			stack = append(stack, frame{
				node:   f.node.Children[i],
				prefix: childPrefix,
				last:   i == len(f.node.Children)-1,
			})
		}
	}
	return b.String()
}

// Recipe numbers the actions from 1.
func (p *Printer) Recipe(r *prediction.Recipe) string {
	if r == nil {
		return ""
	}
	lines := make([]string, 0, len(r.Actions)+1)
	lines = append(lines, p.paint("Actions:", color.FgYellow))
	for i, a := range r.Actions {
		lines = append(lines, fmt.Sprintf("%s %s", p.soft(fmt.Sprintf("%d.", i+1)), a))
	}
	return strings.Join(lines, "\n")
}
