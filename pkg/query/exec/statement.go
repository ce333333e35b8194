package exec

import (
	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/query/ast"
	"github.com/cuemby/mikudb/pkg/query/planner"
)

// Find runs a Find statement end to end: plan, execute, project.
func (ex *Executor) Find(stmt ast.Find) (Response, error) {
	docs, err := ex.Run(planner.BuildFind(stmt))
	if err != nil {
		return Response{}, err
	}
	return DocumentsResponse(docs), nil
}

// Aggregate runs an AGGREGATE pipeline end to end.
func (ex *Executor) Aggregate(stmt ast.Aggregate) (Response, error) {
	docs, err := ex.Run(planner.BuildAggregate(stmt))
	if err != nil {
		return Response{}, err
	}
	return DocumentsResponse(docs), nil
}

// Insert inserts every literal document in stmt.Documents, maintaining
// every index defined on the collection.
func (ex *Executor) Insert(stmt ast.Insert) (Response, error) {
	col, err := ex.Store.Collection(stmt.Collection)
	if err != nil {
		return Response{}, err
	}
	defs := ex.Index.ForCollection(stmt.Collection)
	ids := make([]document.ObjectID, 0, len(stmt.Documents))
	for _, v := range stmt.Documents {
		doc, ok := v.AsDocument()
		if !ok {
			continue
		}
		id, err := col.Insert(doc)
		if err != nil {
			return Response{}, err
		}
		for _, def := range defs {
			if err := ex.Index.InsertDocument(def.Name, doc, id); err != nil {
				return Response{}, err
			}
		}
		ids = append(ids, id)
	}
	return InsertResponse(ids), nil
}

// Update applies stmt's operations to every document matching stmt.Where,
// re-indexing each modified document.
func (ex *Executor) Update(stmt ast.Update) (Response, error) {
	col, err := ex.Store.Collection(stmt.Collection)
	if err != nil {
		return Response{}, err
	}
	var candidates []*document.Document
	if stmt.Where != nil {
		candidates, err = ex.runScan(stmt.Collection, stmt.Where)
	} else {
		candidates, err = col.FindAll()
	}
	if err != nil {
		return Response{}, err
	}
	defs := ex.Index.ForCollection(stmt.Collection)
	matched := len(candidates)
	modified := 0
	for _, doc := range candidates {
		id, ok := doc.ID()
		if !ok {
			continue
		}
		before := doc.Clone()
		if err := ApplyUpdate(doc, stmt.Ops); err != nil {
			return Response{}, err
		}
		if err := col.Update(id, doc); err != nil {
			return Response{}, err
		}
		for _, def := range defs {
			if err := ex.Index.DeleteDocument(def.Name, before, id); err != nil {
				return Response{}, err
			}
			if err := ex.Index.InsertDocument(def.Name, doc, id); err != nil {
				return Response{}, err
			}
		}
		modified++
	}
	return UpdateResponse(matched, modified), nil
}

// Delete removes every document matching stmt.Where, dropping each one's
// index entries first.
func (ex *Executor) Delete(stmt ast.Delete) (Response, error) {
	col, err := ex.Store.Collection(stmt.Collection)
	if err != nil {
		return Response{}, err
	}
	var candidates []*document.Document
	if stmt.Where != nil {
		candidates, err = ex.runScan(stmt.Collection, stmt.Where)
	} else {
		candidates, err = col.FindAll()
	}
	if err != nil {
		return Response{}, err
	}
	defs := ex.Index.ForCollection(stmt.Collection)
	count := 0
	for _, doc := range candidates {
		id, ok := doc.ID()
		if !ok {
			continue
		}
		for _, def := range defs {
			if err := ex.Index.DeleteDocument(def.Name, doc, id); err != nil {
				return Response{}, err
			}
		}
		existed, err := col.Delete(id)
		if err != nil {
			return Response{}, err
		}
		if existed {
			count++
		}
	}
	return DeleteResponse(count), nil
}
