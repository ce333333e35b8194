// Package planner rewrites a parsed Find or Aggregate statement into a
// tree of plan nodes (spec.md §4.7). The rewrites performed are
// deliberately simple — filter push-down, limit push-down, and
// consecutive-filter merging — and cost estimates are a rough heuristic
// with no cardinality statistics or index selection.
package planner

import (
	"math"

	"github.com/cuemby/mikudb/pkg/query/ast"
)

// Node is implemented by every plan node.
type Node interface {
	planNode()
	// Cost returns the heuristic cost estimate for this node's subtree.
	Cost() float64
}

// Scan reads every document in Collection, optionally pre-filtered.
type Scan struct {
	Collection string
	Filter     ast.Expr
}

// IndexScan reads through the named index instead of the raw collection.
type IndexScan struct {
	Collection string
	Index      string
	Filter     ast.Expr
}

type Filter struct {
	Input Node
	Pred  ast.Expr
}

type Project struct {
	Input  Node
	Fields [][]string
}

type Sort struct {
	Input  Node
	Fields []ast.SortField
}

type Limit struct {
	Input Node
	N     int64
}

type Skip struct {
	Input Node
	N     int64
}

type HashAggregate struct {
	Input        Node
	GroupBy      [][]string
	Accumulators []ast.Accumulator
}

// NestedLoopJoin evaluates Cond (when set) row-against-row across Left and
// Right. LOOKUP stages instead set LocalField/ForeignField/As, matching
// spec.md §4.6's `LOOKUP ...` form: for each left row, every right row whose
// ForeignField equals the left row's LocalField is collected into an array
// under As.
type NestedLoopJoin struct {
	Left, Right  Node
	Cond         ast.Expr
	LocalField   []string
	ForeignField []string
	As           string
}

// Empty produces no documents; used when a statement cannot match
// anything (reserved for future constant-folding, unused today).
type Empty struct{}

// Unwind explodes Path (an array field) into one output document per
// element. Not one of the ten node kinds spec.md §4.7 names explicitly,
// but AGGREGATE's UNWIND stage has no other representation in the plan
// tree — added as a pragmatic extension, not a spec deviation.
type Unwind struct {
	Input Node
	Path  []string
}

func (Scan) planNode()           {}
func (IndexScan) planNode()      {}
func (Filter) planNode()         {}
func (Project) planNode()        {}
func (Sort) planNode()           {}
func (Limit) planNode()          {}
func (Skip) planNode()           {}
func (HashAggregate) planNode()  {}
func (NestedLoopJoin) planNode() {}
func (Empty) planNode()          {}
func (Unwind) planNode()         {}

const (
	baseScanCost      = 1000.0
	filteredScanCost  = 0.5
	indexScanCost     = 10.0
)

func (s Scan) Cost() float64 {
	if s.Filter != nil {
		return baseScanCost * filteredScanCost
	}
	return baseScanCost
}

func (s IndexScan) Cost() float64 { return indexScanCost }

func (f Filter) Cost() float64 { return f.Input.Cost() }

func (p Project) Cost() float64 { return p.Input.Cost() }

func (s Sort) Cost() float64 {
	n := s.Input.Cost()
	if n <= 1 {
		return n
	}
	return n * math.Log2(n)
}

func (l Limit) Cost() float64 {
	c := l.Input.Cost()
	if float64(l.N) < c {
		return float64(l.N)
	}
	return c
}

func (s Skip) Cost() float64 { return s.Input.Cost() }

func (h HashAggregate) Cost() float64 { return h.Input.Cost() }

func (j NestedLoopJoin) Cost() float64 { return j.Left.Cost() * j.Right.Cost() }

func (Empty) Cost() float64 { return 0 }

func (u Unwind) Cost() float64 { return u.Input.Cost() }
