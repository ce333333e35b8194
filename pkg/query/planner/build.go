package planner

import "github.com/cuemby/mikudb/pkg/query/ast"

// BuildFind turns a Find statement into an optimized plan tree.
func BuildFind(f ast.Find) Node {
	var n Node = Scan{Collection: f.Collection}
	if f.Where != nil {
		n = Filter{Input: n, Pred: f.Where}
	}
	if len(f.OrderBy) > 0 {
		n = Sort{Input: n, Fields: f.OrderBy}
	}
	if f.Skip != nil {
		n = Skip{Input: n, N: *f.Skip}
	}
	if f.Limit != nil {
		n = Limit{Input: n, N: *f.Limit}
	}
	if len(f.Select) > 0 {
		n = Project{Input: n, Fields: f.Select}
	}
	return Optimize(n)
}

// BuildAggregate turns an AGGREGATE pipeline into a plan tree, one node
// per stage in pipeline order.
func BuildAggregate(agg ast.Aggregate) Node {
	var n Node = Scan{Collection: agg.Collection}
	for _, stage := range agg.Stages {
		switch stage.Kind {
		case ast.StageMatch:
			n = Filter{Input: n, Pred: stage.Filter}
		case ast.StageGroup:
			n = HashAggregate{Input: n, GroupBy: stage.GroupBy, Accumulators: stage.Accumulators}
		case ast.StageSort:
			n = Sort{Input: n, Fields: stage.SortFields}
		case ast.StageLimit:
			n = Limit{Input: n, N: stage.N}
		case ast.StageSkip:
			n = Skip{Input: n, N: stage.N}
		case ast.StageProject:
			n = Project{Input: n, Fields: stage.ProjectFields}
		case ast.StageUnwind:
			n = Unwind{Input: n, Path: stage.UnwindPath}
		case ast.StageLookup:
			n = NestedLoopJoin{
				Left:         n,
				Right:        Scan{Collection: stage.LookupFrom},
				LocalField:   stage.LookupLocalField,
				ForeignField: stage.LookupForeignField,
				As:           stage.LookupAs,
			}
		}
	}
	return Optimize(n)
}

// Optimize applies the three rewrites named in spec.md §4.7: filter
// push-down into Scan, consecutive-filter merging, and limit push-down
// below non-reorderable passthroughs (Project), kept above Sort.
// Children are optimized first (post-order) so a rewrite at this level
// always sees an already-optimized subtree.
func Optimize(n Node) Node {
	switch v := n.(type) {
	case Filter:
		input := Optimize(v.Input)
		return optimizeFilter(Filter{Input: input, Pred: v.Pred})
	case Project:
		return Project{Input: Optimize(v.Input), Fields: v.Fields}
	case Sort:
		return Sort{Input: Optimize(v.Input), Fields: v.Fields}
	case Limit:
		input := Optimize(v.Input)
		return pushLimitDown(Limit{Input: input, N: v.N})
	case Skip:
		return Skip{Input: Optimize(v.Input), N: v.N}
	case HashAggregate:
		return HashAggregate{Input: Optimize(v.Input), GroupBy: v.GroupBy, Accumulators: v.Accumulators}
	case Unwind:
		return Unwind{Input: Optimize(v.Input), Path: v.Path}
	case NestedLoopJoin:
		return NestedLoopJoin{
			Left:         Optimize(v.Left),
			Right:        Optimize(v.Right),
			Cond:         v.Cond,
			LocalField:   v.LocalField,
			ForeignField: v.ForeignField,
			As:           v.As,
		}
	default:
		return n
	}
}

// optimizeFilter merges consecutive filters and folds a filter directly
// on top of a scan into Scan.Filter.
func optimizeFilter(f Filter) Node {
	if inner, ok := f.Input.(Filter); ok {
		merged := andExpr(inner.Pred, f.Pred)
		return optimizeFilter(Filter{Input: inner.Input, Pred: merged})
	}
	if scan, ok := f.Input.(Scan); ok {
		pred := f.Pred
		if scan.Filter != nil {
			pred = andExpr(scan.Filter, pred)
		}
		return Scan{Collection: scan.Collection, Filter: pred}
	}
	if scan, ok := f.Input.(IndexScan); ok {
		pred := f.Pred
		if scan.Filter != nil {
			pred = andExpr(scan.Filter, pred)
		}
		return IndexScan{Collection: scan.Collection, Index: scan.Index, Filter: pred}
	}
	return f
}

func andExpr(a, b ast.Expr) ast.Expr {
	return ast.BinaryExpr{Op: ast.OpAnd, Left: a, Right: b}
}

// pushLimitDown moves Limit below a Project input (a "non-reorderable
// passthrough" per spec.md §4.7), since Project only reshapes rows and
// never changes which ones survive. Limit is never pushed through Filter
// or Sort: Filter changes the surviving row count and Sort must see the
// entire input before a limit is meaningful.
func pushLimitDown(l Limit) Node {
	if proj, ok := l.Input.(Project); ok {
		return Project{Input: pushLimitDown(Limit{Input: proj.Input, N: l.N}), Fields: proj.Fields}
	}
	return l
}
