package exec

import (
	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/mdberr"
	"github.com/cuemby/mikudb/pkg/query/ast"
)

// ApplyUpdate applies every op in ops to doc in order, mutating it in
// place (spec.md §4.8 update execution).
func ApplyUpdate(doc *document.Document, ops []ast.UpdateOp) error {
	for _, op := range ops {
		if err := applyOne(doc, op); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(doc *document.Document, op ast.UpdateOp) error {
	switch op.Kind {
	case ast.OpSet:
		v, err := Eval(op.Value, doc)
		if err != nil {
			return err
		}
		return doc.SetPath(op.Path, v)
	case ast.OpUnset:
		return unsetPath(doc, op.Path)
	case ast.OpInc:
		return applyInc(doc, op)
	case ast.OpPush:
		return applyPush(doc, op)
	case ast.OpPull:
		return applyPull(doc, op)
	case ast.OpRename:
		return applyRename(doc, op)
	}
	return mdberr.New(mdberr.KindExecution, "unsupported update operation")
}

func unsetPath(doc *document.Document, path []string) error {
	if len(path) == 0 {
		return mdberr.New(mdberr.KindInvalidFieldPath, "empty field path")
	}
	if len(path) == 1 {
		doc.Delete(path[0])
		return nil
	}
	parent, ok := doc.GetPath(path[:len(path)-1])
	if !ok {
		return nil
	}
	sub, ok := parent.AsDocument()
	if !ok {
		return mdberr.New(mdberr.KindTypeError, "field %q is not a document", path[len(path)-2])
	}
	sub.Delete(path[len(path)-1])
	return nil
}

func applyInc(doc *document.Document, op ast.UpdateOp) error {
	delta, err := Eval(op.Value, doc)
	if err != nil {
		return err
	}
	current, ok := doc.GetPath(op.Path)
	if !ok {
		return doc.SetPath(op.Path, delta)
	}
	sum, err := evalArith(ast.OpAdd, current, delta)
	if err != nil {
		return err
	}
	return doc.SetPath(op.Path, sum)
}

func applyPush(doc *document.Document, op ast.UpdateOp) error {
	v, err := Eval(op.Value, doc)
	if err != nil {
		return err
	}
	current, ok := doc.GetPath(op.Path)
	if !ok {
		return doc.SetPath(op.Path, document.Array([]document.Value{v}))
	}
	arr, ok := current.AsArray()
	if !ok {
		return mdberr.New(mdberr.KindTypeError, "PUSH target %v is not an array", op.Path)
	}
	return doc.SetPath(op.Path, document.Array(append(arr, v)))
}

func applyPull(doc *document.Document, op ast.UpdateOp) error {
	v, err := Eval(op.Value, doc)
	if err != nil {
		return err
	}
	current, ok := doc.GetPath(op.Path)
	if !ok {
		return nil
	}
	arr, ok := current.AsArray()
	if !ok {
		return mdberr.New(mdberr.KindTypeError, "PULL target %v is not an array", op.Path)
	}
	out := arr[:0:0]
	for _, el := range arr {
		if !document.Equal(el, v) {
			out = append(out, el)
		}
	}
	return doc.SetPath(op.Path, document.Array(out))
}

func applyRename(doc *document.Document, op ast.UpdateOp) error {
	v, ok := doc.GetPath(op.Path)
	if !ok {
		return nil
	}
	if err := unsetPath(doc, op.Path); err != nil {
		return err
	}
	return doc.SetPath(op.RenameTo, v)
}
