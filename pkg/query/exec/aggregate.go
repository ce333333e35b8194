package exec

import (
	"fmt"
	"strings"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/query/ast"
)

// valueString produces a stable textual key for a value, used both for
// GROUP's bucket key and ADD_TO_SET's dedup key (spec.md §4.8: "hashes
// documents by the concatenation of group_by field-value string
// representations" / "deduplicates by value string key").
func valueString(v document.Value) string {
	switch v.Kind {
	case document.KindNull:
		return "null"
	case document.KindBool:
		b, _ := v.AsBool()
		return fmt.Sprintf("b:%v", b)
	case document.KindString:
		s, _ := v.AsString()
		return "s:" + s
	case document.KindObjectID:
		id, _ := v.AsObjectID()
		return "o:" + id.String()
	default:
		if v.IsNumeric() {
			f, _ := v.AsFloat64()
			return fmt.Sprintf("n:%v", f)
		}
		return fmt.Sprintf("%v:%v", v.Kind, v.Raw)
	}
}

func groupKeyString(vals []document.Value) string {
	var sb strings.Builder
	for _, v := range vals {
		sb.WriteString(valueString(v))
		sb.WriteByte(0)
	}
	return sb.String()
}

type groupBucket struct {
	keyFields []document.Value
	docs      []*document.Document
}

// runGroup implements the GROUP stage: bucket by group_by field values,
// then run every accumulator over each bucket's documents.
func runGroup(docs []*document.Document, groupBy [][]string, accs []ast.Accumulator) ([]*document.Document, error) {
	order := make([]string, 0)
	buckets := make(map[string]*groupBucket)
	for _, d := range docs {
		keyVals := make([]document.Value, len(groupBy))
		for i, path := range groupBy {
			v, _ := d.GetPath(path)
			keyVals[i] = v
		}
		key := groupKeyString(keyVals)
		b, ok := buckets[key]
		if !ok {
			b = &groupBucket{keyFields: keyVals}
			buckets[key] = b
			order = append(order, key)
		}
		b.docs = append(b.docs, d)
	}

	out := make([]*document.Document, 0, len(order))
	for _, key := range order {
		b := buckets[key]
		res := document.NewDocument()
		for i, path := range groupBy {
			if err := res.SetPath(path, b.keyFields[i]); err != nil {
				return nil, err
			}
		}
		for _, acc := range accs {
			v, err := runAccumulator(acc, b.docs)
			if err != nil {
				return nil, err
			}
			res.Set(acc.Name, v)
		}
		out = append(out, res)
	}
	return out, nil
}

func runAccumulator(acc ast.Accumulator, docs []*document.Document) (document.Value, error) {
	switch strings.ToUpper(acc.Func) {
	case "COUNT":
		return document.I64(int64(len(docs))), nil
	case "SUM":
		var sum float64
		for _, d := range docs {
			if v, ok := d.GetPath(acc.Field); ok {
				f, _ := v.AsFloat64()
				sum += f
			}
		}
		return document.F64(sum), nil
	case "AVG":
		if len(docs) == 0 {
			return document.F64(0), nil
		}
		var sum float64
		var n int
		for _, d := range docs {
			if v, ok := d.GetPath(acc.Field); ok {
				f, _ := v.AsFloat64()
				sum += f
				n++
			}
		}
		if n == 0 {
			return document.F64(0), nil
		}
		return document.F64(sum / float64(n)), nil
	case "MIN":
		return minMax(docs, acc.Field, -1)
	case "MAX":
		return minMax(docs, acc.Field, 1)
	case "FIRST":
		for _, d := range docs {
			if v, ok := d.GetPath(acc.Field); ok {
				return v, nil
			}
		}
		return document.Null(), nil
	case "LAST":
		for i := len(docs) - 1; i >= 0; i-- {
			if v, ok := docs[i].GetPath(acc.Field); ok {
				return v, nil
			}
		}
		return document.Null(), nil
	case "PUSH":
		vals := make([]document.Value, 0, len(docs))
		for _, d := range docs {
			if v, ok := d.GetPath(acc.Field); ok {
				vals = append(vals, v)
			}
		}
		return document.Array(vals), nil
	case "ADD_TO_SET":
		seen := make(map[string]bool)
		var vals []document.Value
		for _, d := range docs {
			v, ok := d.GetPath(acc.Field)
			if !ok {
				continue
			}
			key := valueString(v)
			if seen[key] {
				continue
			}
			seen[key] = true
			vals = append(vals, v)
		}
		return document.Array(vals), nil
	}
	return document.Value{}, mdberr.New(mdberr.KindInvalidOperator, "unknown accumulator %q", acc.Func)
}

func minMax(docs []*document.Document, field []string, want int) (document.Value, error) {
	var best document.Value
	found := false
	for _, d := range docs {
		v, ok := d.GetPath(field)
		if !ok {
			continue
		}
		if !found {
			best = v
			found = true
			continue
		}
		c := compareOrdered(v, best)
		if (want < 0 && c < 0) || (want > 0 && c > 0) {
			best = v
		}
	}
	if !found {
		return document.Null(), nil
	}
	return best, nil
}
