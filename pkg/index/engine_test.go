package index

import (
	"testing"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/storage"
)

func openTestEngine(t *testing.T) (*storage.Engine, *Engine) {
	t.Helper()
	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	idx, err := Open(store)
	if err != nil {
		t.Fatalf("index.Open() error = %v", err)
	}
	return store, idx
}

func TestCreateAndLoadIndex(t *testing.T) {
	store, idx := openTestEngine(t)
	def := &Definition{Name: "by_email", Collection: "users", Type: TypeHash, Fields: []FieldSpec{{Path: []string{"email"}}}, Unique: true}
	if err := idx.CreateIndex(def); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}

	reloaded, err := Open(store)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	got, ok := reloaded.Get("by_email")
	if !ok {
		t.Fatal("index not found after reload")
	}
	if got.Type != TypeHash || !got.Unique {
		t.Errorf("reloaded definition mismatch: %+v", got)
	}
}

func TestCreateIndexDuplicateNameFails(t *testing.T) {
	_, idx := openTestEngine(t)
	def := &Definition{Name: "dup", Collection: "users", Type: TypeOrdered, Fields: []FieldSpec{{Path: []string{"age"}}}}
	if err := idx.CreateIndex(def); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if err := idx.CreateIndex(def); err == nil {
		t.Error("expected error creating duplicate index name")
	}
}

func docWithEmail(email string) *document.Document {
	d := document.NewDocument()
	d.Set("email", document.String(email))
	return d
}

func TestUniqueHashIndexRejectsDuplicateKey(t *testing.T) {
	_, idx := openTestEngine(t)
	def := &Definition{Name: "by_email", Collection: "users", Type: TypeHash, Fields: []FieldSpec{{Path: []string{"email"}}}, Unique: true}
	if err := idx.CreateIndex(def); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	a, b := document.NewObjectID(), document.NewObjectID()
	if err := idx.InsertDocument("by_email", docWithEmail("a@example.com"), a); err != nil {
		t.Fatalf("first InsertDocument() error = %v", err)
	}
	if err := idx.InsertDocument("by_email", docWithEmail("a@example.com"), b); err == nil {
		t.Error("expected duplicate-key error for second insert with same email")
	}
}

func TestSparseIndexSkipsNullValues(t *testing.T) {
	_, idx := openTestEngine(t)
	def := &Definition{Name: "by_nickname", Collection: "users", Type: TypeOrdered, Fields: []FieldSpec{{Path: []string{"nickname"}}}, Sparse: true}
	if err := idx.CreateIndex(def); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	id := document.NewObjectID()
	empty := document.NewDocument()
	if err := idx.InsertDocument("by_nickname", empty, id); err != nil {
		t.Fatalf("InsertDocument() error = %v", err)
	}
	ids, err := idx.Lookup("by_nickname", []document.Value{document.Null()})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("sparse index should not have indexed a null value, found %d entries", len(ids))
	}
}

func TestLookupAndDelete(t *testing.T) {
	_, idx := openTestEngine(t)
	def := &Definition{Name: "by_email", Collection: "users", Type: TypeHash, Fields: []FieldSpec{{Path: []string{"email"}}}}
	if err := idx.CreateIndex(def); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	id := document.NewObjectID()
	doc := docWithEmail("x@example.com")
	if err := idx.InsertDocument("by_email", doc, id); err != nil {
		t.Fatalf("InsertDocument() error = %v", err)
	}
	ids, err := idx.Lookup("by_email", []document.Value{document.String("x@example.com")})
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if len(ids) != 1 || ids[0] != id {
		t.Fatalf("Lookup() = %v, want [%v]", ids, id)
	}
	if err := idx.DeleteDocument("by_email", doc, id); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	ids, err = idx.Lookup("by_email", []document.Value{document.String("x@example.com")})
	if err != nil {
		t.Fatalf("Lookup() after delete error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("expected no entries after delete, got %v", ids)
	}
}

func TestRangeQueryOrderedIndex(t *testing.T) {
	_, idx := openTestEngine(t)
	def := &Definition{Name: "by_age", Collection: "users", Type: TypeOrdered, Fields: []FieldSpec{{Path: []string{"age"}}}}
	if err := idx.CreateIndex(def); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	ages := []int32{10, 20, 30, 40}
	for _, age := range ages {
		d := document.NewDocument()
		d.Set("age", document.I32(age))
		if err := idx.InsertDocument("by_age", d, document.NewObjectID()); err != nil {
			t.Fatalf("InsertDocument() error = %v", err)
		}
	}
	ids, err := idx.RangeQuery("by_age",
		[]document.Value{document.I32(20)},
		[]document.Value{document.I32(30)},
		true)
	if err != nil {
		t.Fatalf("RangeQuery() error = %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("RangeQuery() inclusive [20,30] returned %d ids, want 2", len(ids))
	}
}

func TestRangeQueryForbiddenOnHashIndex(t *testing.T) {
	_, idx := openTestEngine(t)
	def := &Definition{Name: "by_email", Collection: "users", Type: TypeHash, Fields: []FieldSpec{{Path: []string{"email"}}}}
	if err := idx.CreateIndex(def); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if _, err := idx.RangeQuery("by_email", nil, nil, true); err == nil {
		t.Error("expected range_query to be rejected on a hash index")
	}
}

func TestDropIndexRemovesDefinitionAndPartition(t *testing.T) {
	_, idx := openTestEngine(t)
	def := &Definition{Name: "by_email", Collection: "users", Type: TypeHash, Fields: []FieldSpec{{Path: []string{"email"}}}}
	if err := idx.CreateIndex(def); err != nil {
		t.Fatalf("CreateIndex() error = %v", err)
	}
	if err := idx.DropIndex("by_email"); err != nil {
		t.Fatalf("DropIndex() error = %v", err)
	}
	if _, ok := idx.Get("by_email"); ok {
		t.Error("index definition still present after drop")
	}
}
