package exec

import (
	"sort"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/index"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/query/ast"
	"github.com/cuemby/mikudb/pkg/query/planner"
	"github.com/cuemby/mikudb/pkg/storage"
)

// Executor interprets a planner.Node tree against the storage and index
// engines.
type Executor struct {
	Store *storage.Engine
	Index *index.Engine
}

func New(store *storage.Engine, idx *index.Engine) *Executor {
	return &Executor{Store: store, Index: idx}
}

// Run executes n and returns the resulting document sequence.
func (ex *Executor) Run(n planner.Node) ([]*document.Document, error) {
	switch v := n.(type) {
	case planner.Scan:
		return ex.runScan(v.Collection, v.Filter)
	case planner.IndexScan:
		// The planner performs no index selection (spec.md §4.7), so this
		// node type is never produced by Build{Find,Aggregate}; execute it
		// like a full scan of the index's owning collection, filtered the
		// same way, rather than leaving it unimplemented.
		return ex.runScan(v.Collection, v.Filter)
	case planner.Filter:
		docs, err := ex.Run(v.Input)
		if err != nil {
			return nil, err
		}
		return filterDocs(docs, v.Pred)
	case planner.Project:
		docs, err := ex.Run(v.Input)
		if err != nil {
			return nil, err
		}
		return projectDocs(docs, v.Fields), nil
	case planner.Sort:
		docs, err := ex.Run(v.Input)
		if err != nil {
			return nil, err
		}
		sortDocs(docs, v.Fields)
		return docs, nil
	case planner.Skip:
		docs, err := ex.Run(v.Input)
		if err != nil {
			return nil, err
		}
		return skipDocs(docs, v.N), nil
	case planner.Limit:
		docs, err := ex.Run(v.Input)
		if err != nil {
			return nil, err
		}
		return limitDocs(docs, v.N), nil
	case planner.HashAggregate:
		docs, err := ex.Run(v.Input)
		if err != nil {
			return nil, err
		}
		return runGroup(docs, v.GroupBy, v.Accumulators)
	case planner.Unwind:
		docs, err := ex.Run(v.Input)
		if err != nil {
			return nil, err
		}
		return unwindDocs(docs, v.Path), nil
	case planner.NestedLoopJoin:
		return ex.runLookup(v)
	case planner.Empty:
		return nil, nil
	}
	return nil, mdberr.New(mdberr.KindExecution, "unsupported plan node %T", n)
}

func (ex *Executor) runScan(collection string, filter ast.Expr) ([]*document.Document, error) {
	col, err := ex.Store.Collection(collection)
	if err != nil {
		return nil, err
	}
	docs, err := col.FindAll()
	if err != nil {
		return nil, err
	}
	if filter == nil {
		return docs, nil
	}
	return filterDocs(docs, filter)
}

func filterDocs(docs []*document.Document, pred ast.Expr) ([]*document.Document, error) {
	out := docs[:0:0]
	for _, d := range docs {
		ok, err := EvalBool(pred, d)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, d)
		}
	}
	return out, nil
}

func projectDocs(docs []*document.Document, fields [][]string) []*document.Document {
	out := make([]*document.Document, len(docs))
	for i, d := range docs {
		proj := document.NewDocument()
		if id, ok := d.Get("_id"); ok {
			proj.Set("_id", id)
		}
		for _, path := range fields {
			if v, ok := d.GetPath(path); ok {
				proj.SetPath(path, v)
			}
		}
		out[i] = proj
	}
	return out
}

func sortDocs(docs []*document.Document, fields []ast.SortField) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, f := range fields {
			vi, _ := docs[i].GetPath(f.Path)
			vj, _ := docs[j].GetPath(f.Path)
			c := compareOrdered(vi, vj)
			if c == 0 {
				continue
			}
			if f.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func skipDocs(docs []*document.Document, n int64) []*document.Document {
	if n <= 0 {
		return docs
	}
	if n >= int64(len(docs)) {
		return nil
	}
	return docs[n:]
}

func limitDocs(docs []*document.Document, n int64) []*document.Document {
	if n < 0 {
		return docs
	}
	if n >= int64(len(docs)) {
		return docs
	}
	return docs[:n]
}

func unwindDocs(docs []*document.Document, path []string) []*document.Document {
	var out []*document.Document
	for _, d := range docs {
		v, ok := d.GetPath(path)
		if !ok {
			continue
		}
		arr, ok := v.AsArray()
		if !ok {
			continue
		}
		for _, el := range arr {
			clone := d.Clone()
			clone.SetPath(path, el)
			out = append(out, clone)
		}
	}
	return out
}

func (ex *Executor) runLookup(j planner.NestedLoopJoin) ([]*document.Document, error) {
	left, err := ex.Run(j.Left)
	if err != nil {
		return nil, err
	}
	right, err := ex.Run(j.Right)
	if err != nil {
		return nil, err
	}
	out := make([]*document.Document, len(left))
	for i, l := range left {
		clone := l.Clone()
		var matches []document.Value
		localVal, hasLocal := l.GetPath(j.LocalField)
		for _, r := range right {
			foreignVal, hasForeign := r.GetPath(j.ForeignField)
			if hasLocal && hasForeign && document.Equal(localVal, foreignVal) {
				matches = append(matches, document.DocumentValue(r))
			}
		}
		if j.As != "" {
			clone.Set(j.As, document.Array(matches))
		}
		out[i] = clone
	}
	return out, nil
}
