package exec

import (
	"testing"

	"github.com/cuemby/mikudb/pkg/document"
	"github.com/cuemby/mikudb/pkg/index"
	"github.com/cuemby/mikudb/pkg/query/ast"
	"github.com/cuemby/mikudb/pkg/query/planner"
	"github.com/cuemby/mikudb/pkg/storage"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	st, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if err := st.CreateCollection("people"); err != nil {
		t.Fatalf("CreateCollection() error = %v", err)
	}
	idx, err := index.Open(st)
	if err != nil {
		t.Fatalf("index.Open() error = %v", err)
	}
	return New(st, idx)
}

func seedPeople(t *testing.T, ex *Executor, people []map[string]document.Value) {
	t.Helper()
	col, err := ex.Store.Collection("people")
	if err != nil {
		t.Fatalf("Collection() error = %v", err)
	}
	for _, p := range people {
		d := document.NewDocument()
		for k, v := range p {
			d.Set(k, v)
		}
		if _, err := col.Insert(d); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}
}

func TestRunScanFilterSort(t *testing.T) {
	ex := newTestExecutor(t)
	seedPeople(t, ex, []map[string]document.Value{
		{"name": document.String("ada"), "age": document.I64(30)},
		{"name": document.String("bob"), "age": document.I64(25)},
		{"name": document.String("cleo"), "age": document.I64(40)},
	})

	find := ast.Find{
		Collection: "people",
		Where: ast.BinaryExpr{
			Op:    ast.OpGte,
			Left:  ast.FieldPath{Path: []string{"age"}},
			Right: ast.Literal{Value: document.I64(26)},
		},
		OrderBy: []ast.SortField{{Path: []string{"age"}}},
	}
	docs, err := ex.Run(planner.BuildFind(find))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
	first, _ := docs[0].GetPath([]string{"name"})
	s, _ := first.AsString()
	if s != "ada" {
		t.Errorf("first doc name = %q, want ada (sorted by age ascending)", s)
	}
}

func TestExecutorInsertFindUpdateDelete(t *testing.T) {
	ex := newTestExecutor(t)

	insertStmt := ast.Insert{Collection: "people", Documents: []document.Value{
		document.DocumentValue(docWith(map[string]document.Value{"name": document.String("ada")})),
	}}
	resp, err := ex.Insert(insertStmt)
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if resp.InsertCount != 1 {
		t.Fatalf("InsertCount = %d, want 1", resp.InsertCount)
	}

	updateStmt := ast.Update{
		Collection: "people",
		Ops:        []ast.UpdateOp{{Kind: ast.OpSet, Path: []string{"age"}, Value: ast.Literal{Value: document.I64(99)}}},
	}
	uresp, err := ex.Update(updateStmt)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if uresp.Matched != 1 || uresp.Modified != 1 {
		t.Fatalf("update resp = %+v", uresp)
	}

	findResp, err := ex.Find(ast.Find{Collection: "people"})
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if len(findResp.Documents) != 1 {
		t.Fatalf("found %d docs, want 1", len(findResp.Documents))
	}
	age, _ := findResp.Documents[0].GetPath([]string{"age"})
	i, _ := age.AsInt64()
	if i != 99 {
		t.Errorf("age after update = %v, want 99", i)
	}

	dresp, err := ex.Delete(ast.Delete{Collection: "people"})
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if dresp.DeleteCount != 1 {
		t.Errorf("DeleteCount = %d, want 1", dresp.DeleteCount)
	}
}

func TestUnwindExplodesArray(t *testing.T) {
	ex := newTestExecutor(t)
	seedPeople(t, ex, []map[string]document.Value{
		{"name": document.String("ada"), "tags": document.Array([]document.Value{document.String("x"), document.String("y")})},
	})
	docs, err := ex.Run(planner.Unwind{Input: planner.Scan{Collection: "people"}, Path: []string{"tags"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("docs = %d, want 2", len(docs))
	}
}

func TestGroupAggregation(t *testing.T) {
	ex := newTestExecutor(t)
	seedPeople(t, ex, []map[string]document.Value{
		{"dept": document.String("eng"), "salary": document.F64(100)},
		{"dept": document.String("eng"), "salary": document.F64(200)},
		{"dept": document.String("sales"), "salary": document.F64(50)},
	})
	agg := ast.Aggregate{
		Collection: "people",
		Stages: []ast.Stage{
			{Kind: ast.StageGroup, GroupBy: [][]string{{"dept"}}, Accumulators: []ast.Accumulator{
				{Name: "total", Func: "SUM", Field: []string{"salary"}},
				{Name: "n", Func: "COUNT"},
			}},
		},
	}
	resp, err := ex.Aggregate(agg)
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if len(resp.Documents) != 2 {
		t.Fatalf("groups = %d, want 2", len(resp.Documents))
	}
	var sawEng bool
	for _, d := range resp.Documents {
		dept, _ := d.GetPath([]string{"dept"})
		s, _ := dept.AsString()
		if s == "eng" {
			sawEng = true
			total, _ := d.GetPath([]string{"total"})
			f, _ := total.AsFloat64()
			if f != 300 {
				t.Errorf("eng total = %v, want 300", f)
			}
		}
	}
	if !sawEng {
		t.Errorf("expected an eng group in results")
	}
}
