package reaction

import (
	"fmt"
	"strings"
)

// RetroNode is one compound of a retrosynthesis tree. Children are the full
// reactant set of the single step that produces the node; a node without
// children is a commercially available starting material.
type RetroNode struct {
	Smiles     string       `json:"smiles"`
	Confidence float64      `json:"confidence"`
	Children   []*RetroNode `json:"children,omitempty"`
}

// IsLeaf reports whether n has no non-nil children.
func (n *RetroNode) IsLeaf() bool {
	if n == nil {
		return true
	}
	for _, c := range n.Children {
		if c != nil {
			return false
		}
	}
	return true
}

// LeafCount returns the number of terminal compounds under n, which is the
// number of rows FlattenTree produces. Nil children are skipped.
func (n *RetroNode) LeafCount() int {
	if n == nil {
		return 0
	}
	count := 0
	stack := []*RetroNode{n}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur.IsLeaf() {
			count++
			continue
		}
		for _, c := range cur.Children {
			if c != nil {
				stack = append(stack, c)
			}
		}
	}
	return count
}

// DisplayNode mirrors the tree for nested rendering.
type DisplayNode struct {
	Value      string        `json:"value"`
	Confidence float64       `json:"confidence"`
	Children   []DisplayNode `json:"children,omitempty"`
}

// StepCell is one ancestor level of a flattened route. Step 0 is the target,
// negative steps are earlier precursors.
type StepCell struct {
	Step       int     `json:"step"`
	Compound   string  `json:"compound"`
	Confidence float64 `json:"confidence"`
}

// FlatRow is the route from the target to one leaf, target first.
type FlatRow struct {
	Cells []StepCell `json:"cells"`
}

// Columns renders the row as "compound [step k]" / "confidence [step k]" pairs.
func (r FlatRow) Columns() map[string]interface{} {
	out := make(map[string]interface{}, 2*len(r.Cells))
	for _, c := range r.Cells {
		out[CompoundColumn(c.Step)] = c.Compound
		out[ConfidenceColumn(c.Step)] = c.Confidence
	}
	return out
}

// CompoundColumn and ConfidenceColumn name the per-step columns of a
// flattened route.
func CompoundColumn(step int) string { return fmt.Sprintf("compound [step %d]", step) }
func ConfidenceColumn(step int) string { return fmt.Sprintf("confidence [step %d]", step) }

// FlatColumns lists the columns of a flat table covering rows, from step 0
// down to the deepest precursor.
func FlatColumns(rows []FlatRow) []string {
	depth := 0
	for _, r := range rows {
		if len(r.Cells) > depth {
			depth = len(r.Cells)
		}
	}
	cols := make([]string, 0, 2*depth)
	for k := 0; k < depth; k++ {
		cols = append(cols, CompoundColumn(-k), ConfidenceColumn(-k))
	}
	return cols
}

// FlattenTree builds the display tree and one flat row per leaf, in
// left-to-right leaf order. Each row owns its cells.
func FlattenTree(root *RetroNode) (DisplayNode, []FlatRow) {
	if root == nil {
		return DisplayNode{}, nil
	}

	type frame struct {
		node *RetroNode
		path []StepCell
	}

	var rows []FlatRow
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		path := make([]StepCell, len(f.path), len(f.path)+1)
		copy(path, f.path)
		path = append(path, StepCell{Step: -len(f.path), Compound: f.node.Smiles, Confidence: f.node.Confidence})

		if f.node.IsLeaf() {
			rows = append(rows, FlatRow{Cells: path})
			continue
		}
		for i := len(f.node.Children) - 1; i >= 0; i-- {
			if child := f.node.Children[i]; child != nil {
				stack = append(stack, frame{node: child, path: path})
			}
		}
	}
	return buildDisplay(root), rows
}

func buildDisplay(root *RetroNode) DisplayNode {
	type frame struct {
		src *RetroNode
		dst *DisplayNode
	}
	out := DisplayNode{}
	stack := []frame{{src: root, dst: &out}}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		f.dst.Value = f.src.Smiles
		f.dst.Confidence = f.src.Confidence
		if f.src.IsLeaf() {
			continue
		}
		kids := make([]*RetroNode, 0, len(f.src.Children))
		for _, c := range f.src.Children {
			if c != nil {
				kids = append(kids, c)
			}
		}
		f.dst.Children = make([]DisplayNode, len(kids))
		for i, c := range kids {
			stack = append(stack, frame{src: c, dst: &f.dst.Children[i]})
		}
	}
	return out
}

// CollectReactions lists every step of the tree in pre-order as
// "A + B --->> C".
func CollectReactions(root *RetroNode) []string {
	if root == nil {
		return nil
	}
	var out []string
	stack := []*RetroNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IsLeaf() {
			continue
		}
		inputs := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			if c != nil {
				inputs = append(inputs, c.Smiles)
			}
		}
		out = append(out, strings.Join(inputs, " + ")+" --->> "+n.Smiles)
		for i := len(n.Children) - 1; i >= 0; i-- {
			if n.Children[i] != nil {
				stack = append(stack, n.Children[i])
			}
		}
	}
	return out
}

// ReactionSmiles lists every step as "A.B>>C", aligned with CollectReactions.
func ReactionSmiles(root *RetroNode) []string {
	if root == nil {
		return nil
	}
	var out []string
	stack := []*RetroNode{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IsLeaf() {
			continue
		}
		inputs := make([]string, 0, len(n.Children))
		for _, c := range n.Children {
			if c != nil {
				inputs = append(inputs, c.Smiles)
			}
		}
		out = append(out, JoinFragments(inputs)+ReactionArrow+n.Smiles)
		for i := len(n.Children) - 1; i >= 0; i-- {
			if n.Children[i] != nil {
				stack = append(stack, n.Children[i])
			}
		}
	}
	return out
}

// RetroPath summarizes one route for output and analysis records.
type RetroPath struct {
	Index      int      `json:"index"`
	Confidence float64  `json:"confidence"`
	Reactions  []string `json:"reactions"`
}

// RetroResult is the outcome of a retrosynthesis prediction.
type RetroResult struct {
	Target       string        `json:"target"`
	PredictionID string        `json:"prediction_id,omitempty"`
	Params       RetroParams   `json:"params"`
	FromCache    bool          `json:"from_cache"`
	Trees        []*RetroNode  `json:"trees"`
	Paths        []RetroPath   `json:"paths"`
	Display      []DisplayNode `json:"display"`
	Rows         []FlatRow     `json:"rows"`
}

// Summarize derives paths, display trees and flat rows from Trees.
func (r *RetroResult) Summarize() {
	r.Paths = make([]RetroPath, 0, len(r.Trees))
	r.Display = make([]DisplayNode, 0, len(r.Trees))
	r.Rows = nil
	for i, t := range r.Trees {
		if t == nil {
			continue
		}
		r.Paths = append(r.Paths, RetroPath{Index: i, Confidence: t.Confidence, Reactions: CollectReactions(t)})
		display, rows := FlattenTree(t)
		r.Display = append(r.Display, display)
		r.Rows = append(r.Rows, rows...)
	}
}
