package storage

import (
	"testing"

	"github.com/cuemby/mikudb/pkg/document"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestCreateCollectionRejectsReservedNames(t *testing.T) {
	e := openTestEngine(t)

	tests := []struct {
		name    string
		wantErr bool
	}{
		{name: "users", wantErr: false},
		{name: "_metadata", wantErr: true},
		{name: "_custom", wantErr: true},
		{name: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.CreateCollection(tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("CreateCollection(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
		})
	}
}

func TestCreateCollectionDuplicateFails(t *testing.T) {
	e := openTestEngine(t)
	if err := e.CreateCollection("users"); err != nil {
		t.Fatalf("CreateCollection() error = %v", err)
	}
	err := e.CreateCollection("users")
	if err == nil {
		t.Fatal("CreateCollection() on existing collection returned nil error")
	}
}

func TestInsertGetDelete(t *testing.T) {
	e := openTestEngine(t)
	coll, err := e.Collection("users")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}

	doc := document.NewDocument()
	doc.Set("name", document.String("ada"))
	id, err := coll.Insert(doc)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	got, ok, err := coll.Get(id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	name, _ := got.Get("name")
	if s, _ := name.AsString(); s != "ada" {
		t.Errorf("Get() name = %q, want ada", s)
	}

	if coll.Count() != 1 {
		t.Errorf("Count() = %d, want 1", coll.Count())
	}

	deleted, err := coll.Delete(id)
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v, want true, nil", deleted, err)
	}
	if coll.Count() != 0 {
		t.Errorf("Count() after delete = %d, want 0", coll.Count())
	}
}

func TestInsertDuplicateIDFails(t *testing.T) {
	e := openTestEngine(t)
	coll, _ := e.Collection("users")

	id := document.NewObjectID()
	doc1 := document.NewDocument()
	doc1.Set("_id", document.ObjectIDValue(id))
	if _, err := coll.Insert(doc1); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	doc2 := document.NewDocument()
	doc2.Set("_id", document.ObjectIDValue(id))
	if _, err := coll.Insert(doc2); err == nil {
		t.Fatal("Insert() with duplicate _id returned nil error")
	}
}

func TestUpdateMissingDocumentFails(t *testing.T) {
	e := openTestEngine(t)
	coll, _ := e.Collection("users")

	id := document.NewObjectID()
	err := coll.Update(id, document.NewDocument())
	if err == nil {
		t.Fatal("Update() on missing document returned nil error")
	}
}

func TestInsertManyAtomic(t *testing.T) {
	e := openTestEngine(t)
	coll, _ := e.Collection("users")

	docs := []*document.Document{document.NewDocument(), document.NewDocument(), document.NewDocument()}
	ids, err := coll.InsertMany(docs)
	if err != nil {
		t.Fatalf("InsertMany() error = %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("InsertMany() returned %d ids, want 3", len(ids))
	}
	count, err := coll.CountScan()
	if err != nil {
		t.Fatalf("CountScan() error = %v", err)
	}
	if count != 3 {
		t.Errorf("CountScan() = %d, want 3", count)
	}
}

func TestClearRemovesAllDocuments(t *testing.T) {
	e := openTestEngine(t)
	coll, _ := e.Collection("users")
	for i := 0; i < 5; i++ {
		if _, err := coll.Insert(document.NewDocument()); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
	cleared, err := coll.Clear()
	if err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if cleared != 5 {
		t.Errorf("Clear() = %d, want 5", cleared)
	}
	if coll.Count() != 0 {
		t.Errorf("Count() after Clear() = %d, want 0", coll.Count())
	}
}

func TestDropCollectionThenReopenLosesCounter(t *testing.T) {
	e := openTestEngine(t)
	coll, _ := e.Collection("users")
	if _, err := coll.Insert(document.NewDocument()); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := e.DropCollection("users"); err != nil {
		t.Fatalf("DropCollection() error = %v", err)
	}
	if e.HasCollection("users") {
		t.Error("HasCollection() = true after drop, want false")
	}
}
