package parser

import (
	"testing"

	"github.com/cuemby/mikudb/pkg/query/ast"
)

func TestParseUse(t *testing.T) {
	stmt, err := Parse("USE analytics")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	use, ok := stmt.(ast.Use)
	if !ok || use.Database != "analytics" {
		t.Errorf("stmt = %+v, want Use{analytics}", stmt)
	}
}

func TestParseShowVariants(t *testing.T) {
	cases := map[string]ast.ShowKind{
		"SHOW DATABASES":           ast.ShowDatabases,
		"SHOW COLLECTIONS":         ast.ShowCollections,
		"SHOW STATUS":              ast.ShowStatus,
		"SHOW USERS":               ast.ShowUsers,
		"SHOW INDEXES ON accounts": ast.ShowIndexesOn,
	}
	for src, want := range cases {
		stmt, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", src, err)
		}
		show, ok := stmt.(ast.Show)
		if !ok || show.Kind != want {
			t.Errorf("Parse(%q) = %+v, want Show kind %v", src, stmt, want)
		}
	}
}

func TestParseCreateUniqueIndex(t *testing.T) {
	stmt, err := Parse("CREATE UNIQUE INDEX by_email ON users(email)")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	idx, ok := stmt.(ast.CreateIndex)
	if !ok {
		t.Fatalf("stmt type = %T, want ast.CreateIndex", stmt)
	}
	if idx.Name != "by_email" || idx.Collection != "users" || !idx.Unique || idx.FullText {
		t.Errorf("idx = %+v", idx)
	}
	if len(idx.Fields) != 1 || len(idx.Fields[0]) != 1 || idx.Fields[0][0] != "email" {
		t.Errorf("idx.Fields = %+v", idx.Fields)
	}
}

func TestParseCreateTextIndexCompositeFields(t *testing.T) {
	stmt, err := Parse("CREATE TEXT INDEX by_body ON posts(title, body)")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	idx := stmt.(ast.CreateIndex)
	if !idx.FullText || idx.Unique {
		t.Errorf("idx = %+v", idx)
	}
	if len(idx.Fields) != 2 {
		t.Errorf("idx.Fields = %+v, want 2 fields", idx.Fields)
	}
}

func TestParseCreateUserWithRoles(t *testing.T) {
	stmt, err := Parse(`CREATE USER alice WITH PASSWORD "hunter2" ROLE admin, auditor`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	u := stmt.(ast.CreateUser)
	if u.Username != "alice" || u.Password != "hunter2" {
		t.Errorf("u = %+v", u)
	}
	if len(u.Roles) != 2 || u.Roles[0] != "admin" || u.Roles[1] != "auditor" {
		t.Errorf("u.Roles = %+v", u.Roles)
	}
}

func TestParseDropIndex(t *testing.T) {
	stmt, err := Parse("DROP INDEX by_email ON users")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	d := stmt.(ast.DropIndex)
	if d.Name != "by_email" || d.Collection != "users" {
		t.Errorf("d = %+v", d)
	}
}

func TestParseInsertSingleDocument(t *testing.T) {
	stmt, err := Parse(`INSERT INTO users {name: "ada", age: 30}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ins := stmt.(ast.Insert)
	if ins.Collection != "users" || len(ins.Documents) != 1 {
		t.Fatalf("ins = %+v", ins)
	}
	doc, ok := ins.Documents[0].AsDocument()
	if !ok {
		t.Fatalf("Documents[0] is not a document value")
	}
	name, _ := doc.Get("name")
	if s, _ := name.AsString(); s != "ada" {
		t.Errorf("name = %+v, want ada", name)
	}
}

func TestParseInsertArrayOfDocuments(t *testing.T) {
	stmt, err := Parse(`INSERT INTO users [{name: "a"}, {name: "b"}]`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ins := stmt.(ast.Insert)
	if len(ins.Documents) != 2 {
		t.Fatalf("ins.Documents = %+v, want 2 entries", ins.Documents)
	}
}

func TestParseFindFullClause(t *testing.T) {
	stmt, err := Parse("FIND users WHERE age >= 18 AND active = TRUE SELECT name, age ORDER BY age DESC LIMIT 10 SKIP 5")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	f := stmt.(ast.Find)
	if f.Collection != "users" {
		t.Errorf("f.Collection = %q", f.Collection)
	}
	if f.Where == nil {
		t.Fatalf("f.Where is nil")
	}
	if _, ok := f.Where.(ast.BinaryExpr); !ok {
		t.Errorf("f.Where type = %T, want BinaryExpr", f.Where)
	}
	if len(f.Select) != 2 {
		t.Errorf("f.Select = %+v", f.Select)
	}
	if len(f.OrderBy) != 1 || !f.OrderBy[0].Descending {
		t.Errorf("f.OrderBy = %+v", f.OrderBy)
	}
	if f.Limit == nil || *f.Limit != 10 {
		t.Errorf("f.Limit = %v", f.Limit)
	}
	if f.Skip == nil || *f.Skip != 5 {
		t.Errorf("f.Skip = %v", f.Skip)
	}
}

func TestParseFindWhereOperatorPrecedence(t *testing.T) {
	// AND binds tighter than OR: a OR b AND c parses as a OR (b AND c).
	stmt, err := Parse("FIND t WHERE a = 1 OR b = 2 AND c = 3")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	f := stmt.(ast.Find)
	top, ok := f.Where.(ast.BinaryExpr)
	if !ok || top.Op != ast.OpOr {
		t.Fatalf("top = %+v, want top-level OR", f.Where)
	}
	right, ok := top.Right.(ast.BinaryExpr)
	if !ok || right.Op != ast.OpAnd {
		t.Errorf("top.Right = %+v, want AND", top.Right)
	}
}

func TestParseUpdateMixedOps(t *testing.T) {
	stmt, err := Parse("UPDATE users SET name = \"ada\" INC login_count = 1 UNSET temp WHERE id = 1")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	u := stmt.(ast.Update)
	if len(u.Ops) != 3 {
		t.Fatalf("u.Ops = %+v, want 3 ops", u.Ops)
	}
	if u.Ops[0].Kind != ast.OpSet || u.Ops[1].Kind != ast.OpInc || u.Ops[2].Kind != ast.OpUnset {
		t.Errorf("op kinds = %v, %v, %v", u.Ops[0].Kind, u.Ops[1].Kind, u.Ops[2].Kind)
	}
	if u.Where == nil {
		t.Errorf("u.Where is nil")
	}
}

func TestParseUpdateRename(t *testing.T) {
	stmt, err := Parse("UPDATE users RENAME nick TO nickname")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	u := stmt.(ast.Update)
	if len(u.Ops) != 1 || u.Ops[0].Kind != ast.OpRename {
		t.Fatalf("u.Ops = %+v", u.Ops)
	}
	if len(u.Ops[0].RenameTo) != 1 || u.Ops[0].RenameTo[0] != "nickname" {
		t.Errorf("RenameTo = %+v", u.Ops[0].RenameTo)
	}
}

func TestParseDeleteWithWhere(t *testing.T) {
	stmt, err := Parse("DELETE FROM sessions WHERE expired = TRUE")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	d := stmt.(ast.Delete)
	if d.Collection != "sessions" || d.Where == nil {
		t.Errorf("d = %+v", d)
	}
}

func TestParseAggregatePipeline(t *testing.T) {
	stmt, err := Parse("AGGREGATE orders | MATCH status = \"paid\" | GROUP BY customer_id AS { total: SUM(amount), n: COUNT() } | SORT total DESC | LIMIT 5")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	agg := stmt.(ast.Aggregate)
	if agg.Collection != "orders" {
		t.Errorf("agg.Collection = %q", agg.Collection)
	}
	if len(agg.Stages) != 4 {
		t.Fatalf("agg.Stages = %+v, want 4 stages", agg.Stages)
	}
	if agg.Stages[0].Kind != ast.StageMatch {
		t.Errorf("stage0 kind = %v", agg.Stages[0].Kind)
	}
	group := agg.Stages[1]
	if group.Kind != ast.StageGroup || len(group.Accumulators) != 2 {
		t.Fatalf("group stage = %+v", group)
	}
	if group.Accumulators[0].Func != "SUM" || group.Accumulators[1].Func != "COUNT" {
		t.Errorf("accumulators = %+v", group.Accumulators)
	}
	if agg.Stages[2].Kind != ast.StageSort || !agg.Stages[2].SortFields[0].Descending {
		t.Errorf("sort stage = %+v", agg.Stages[2])
	}
	if agg.Stages[3].Kind != ast.StageLimit || agg.Stages[3].N != 5 {
		t.Errorf("limit stage = %+v", agg.Stages[3])
	}
}

func TestParseTransactionStatements(t *testing.T) {
	for src, want := range map[string]ast.Statement{
		"BEGIN TRANSACTION": ast.BeginTransaction{},
		"COMMIT":            ast.Commit{},
		"ROLLBACK":          ast.Rollback{},
	} {
		stmt, err := Parse(src)
		if err != nil {
			t.Fatalf("Parse(%q) error = %v", src, err)
		}
		if stmt != want {
			t.Errorf("Parse(%q) = %+v, want %+v", src, stmt, want)
		}
	}
}

func TestParseGrantRevoke(t *testing.T) {
	stmt, err := Parse("GRANT read ON users TO alice")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	g := stmt.(ast.Grant)
	if g.Privilege != "read" || g.Target != "users" || g.Username != "alice" {
		t.Errorf("g = %+v", g)
	}

	stmt, err = Parse("REVOKE read ON users FROM alice")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	r := stmt.(ast.Revoke)
	if r.Privilege != "read" || r.Target != "users" || r.Username != "alice" {
		t.Errorf("r = %+v", r)
	}
}

func TestParseRejectsTrailingGarbage(t *testing.T) {
	_, err := Parse("USE a b")
	if err == nil {
		t.Fatalf("Parse() expected error for trailing garbage")
	}
}

func TestParseInExprAndBetween(t *testing.T) {
	stmt, err := Parse("FIND users WHERE age BETWEEN 18 AND 65 AND country IN (\"US\", \"CA\")")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	f := stmt.(ast.Find)
	top, ok := f.Where.(ast.BinaryExpr)
	if !ok || top.Op != ast.OpAnd {
		t.Fatalf("top = %+v", f.Where)
	}
	if _, ok := top.Left.(ast.BetweenExpr); !ok {
		t.Errorf("top.Left = %T, want BetweenExpr", top.Left)
	}
	if _, ok := top.Right.(ast.InExpr); !ok {
		t.Errorf("top.Right = %T, want InExpr", top.Right)
	}
}
