// Package ast defines MikuDB Query Language's abstract syntax tree
// (spec.md §4.6): one Statement type per grammar production, and an
// Expr tree for the WHERE/SET-value expression grammar.
package ast

import "github.com/cuemby/mikudb/pkg/document"

// Statement is implemented by every top-level MQL statement.
type Statement interface {
	statementNode()
}

// SortField is one ORDER BY / SORT term.
type SortField struct {
	Path       []string
	Descending bool
}

// Use selects the active database (parsed, not enforced — single-database
// core per spec.md Non-goals).
type Use struct{ Database string }

// ShowKind selects what a SHOW statement lists.
type ShowKind int

const (
	ShowDatabases ShowKind = iota
	ShowCollections
	ShowIndexesOn
	ShowStatus
	ShowUsers
)

type Show struct {
	Kind       ShowKind
	Collection string // set when Kind == ShowIndexesOn
}

type CreateDatabase struct{ Name string }
type DropDatabase struct{ Name string }

type CreateCollection struct{ Name string }
type DropCollection struct{ Name string }

type CreateIndex struct {
	Name       string
	Collection string
	Fields     [][]string
	Unique     bool
	FullText   bool
}

type DropIndex struct {
	Name       string
	Collection string
}

type CreateUser struct {
	Username string
	Password string
	Roles    []string
}

type DropUser struct{ Username string }

type Grant struct {
	Privilege string
	Target    string
	Username  string
}

type Revoke struct {
	Privilege string
	Target    string
	Username  string
}

// Insert inserts one or more document literals into Collection.
type Insert struct {
	Collection string
	Documents  []document.Value // each KindDocument
}

// Find is a SELECT-equivalent query over one collection.
type Find struct {
	Collection string
	Where      Expr
	Select     [][]string
	OrderBy    []SortField
	Limit      *int64
	Skip       *int64
}

// UpdateOp is one SET/UNSET/INC/PUSH/PULL/RENAME clause.
type UpdateOpKind int

const (
	OpSet UpdateOpKind = iota
	OpUnset
	OpInc
	OpPush
	OpPull
	OpRename
)

type UpdateOp struct {
	Kind UpdateOpKind
	Path []string
	// Value holds the RHS expression for Set/Inc/Push/Pull; RenameTo holds
	// the destination path for Rename. Unset uses neither.
	Value    Expr
	RenameTo []string
}

type Update struct {
	Collection string
	Ops        []UpdateOp
	Where      Expr
}

type Delete struct {
	Collection string
	Where      Expr
}

// StageKind is one AGGREGATE pipeline stage keyword.
type StageKind int

const (
	StageMatch StageKind = iota
	StageGroup
	StageSort
	StageLimit
	StageSkip
	StageProject
	StageUnwind
	StageLookup
)

type Accumulator struct {
	Name  string // bound output field name
	Func  string // COUNT, SUM, AVG, MIN, MAX, FIRST, LAST, PUSH, ADD_TO_SET
	Field []string
}

type Stage struct {
	Kind StageKind

	// StageMatch
	Filter Expr

	// StageGroup
	GroupBy      [][]string
	Accumulators []Accumulator

	// StageSort
	SortFields []SortField

	// StageLimit / StageSkip
	N int64

	// StageProject
	ProjectFields [][]string

	// StageUnwind
	UnwindPath []string

	// StageLookup
	LookupFrom         string
	LookupLocalField   []string
	LookupForeignField []string
	LookupAs           string
}

type Aggregate struct {
	Collection string
	Stages     []Stage
}

type BeginTransaction struct{}
type Commit struct{}
type Rollback struct{}

func (Use) statementNode()              {}
func (Show) statementNode()             {}
func (CreateDatabase) statementNode()   {}
func (DropDatabase) statementNode()     {}
func (CreateCollection) statementNode() {}
func (DropCollection) statementNode()   {}
func (CreateIndex) statementNode()      {}
func (DropIndex) statementNode()        {}
func (CreateUser) statementNode()       {}
func (DropUser) statementNode()         {}
func (Grant) statementNode()            {}
func (Revoke) statementNode()           {}
func (Insert) statementNode()           {}
func (Find) statementNode()             {}
func (Update) statementNode()           {}
func (Delete) statementNode()           {}
func (Aggregate) statementNode()        {}
func (BeginTransaction) statementNode() {}
func (Commit) statementNode()           {}
func (Rollback) statementNode()         {}
