package exec

import "github.com/cuemby/mikudb/pkg/document"

// ResponseKind discriminates Response's variant, mirroring spec.md §4.8's
// QueryResponse enum.
type ResponseKind int

const (
	RespOk ResponseKind = iota
	RespDocuments
	RespInsert
	RespUpdate
	RespDelete
	RespDatabases
	RespCollections
	RespIndexes
	RespStatus
)

// Response is the result shape every statement execution produces
// (spec.md §4.8/§6.3), carrying only the fields relevant to its Kind.
type Response struct {
	Kind ResponseKind

	Message string // RespOk

	Documents []*document.Document // RespDocuments

	InsertCount int                 // RespInsert
	InsertIDs   []document.ObjectID // RespInsert

	Matched  int // RespUpdate
	Modified int // RespUpdate

	DeleteCount int // RespDelete

	Names []string // RespDatabases / RespCollections / RespIndexes

	StatusSize  uint64            // RespStatus
	StatusStats map[string]uint64 // RespStatus
}

func OkResponse(message string) Response { return Response{Kind: RespOk, Message: message} }

func DocumentsResponse(docs []*document.Document) Response {
	return Response{Kind: RespDocuments, Documents: docs}
}

func InsertResponse(ids []document.ObjectID) Response {
	return Response{Kind: RespInsert, InsertCount: len(ids), InsertIDs: ids}
}

func UpdateResponse(matched, modified int) Response {
	return Response{Kind: RespUpdate, Matched: matched, Modified: modified}
}

func DeleteResponse(count int) Response {
	return Response{Kind: RespDelete, DeleteCount: count}
}

func NamesResponse(kind ResponseKind, names []string) Response {
	return Response{Kind: kind, Names: names}
}

func StatusResponse(size uint64, stats map[string]uint64) Response {
	return Response{Kind: RespStatus, StatusSize: size, StatusStats: stats}
}
