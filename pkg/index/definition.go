package index

import (
	"encoding/json"

	"github.com/cuemby/mikudb/pkg/mdberr"
)

// Type is the index's storage shape (§4.5).
type Type int

const (
	TypeHash Type = iota
	TypeOrdered
	TypeFullText
)

func (t Type) String() string {
	switch t {
	case TypeHash:
		return "hash"
	case TypeOrdered:
		return "ordered"
	case TypeFullText:
		return "fulltext"
	default:
		return "unknown"
	}
}

// Tokenizer selects a full-text index's token-splitting strategy (§4.5).
type Tokenizer int

const (
	TokenizerSimple Tokenizer = iota
	TokenizerChineseNGram
	TokenizerMixed
)

// FieldSpec names one field path participating in an index. Path supports
// dotted nested lookup (§4.5 "dotted paths for nested lookup").
type FieldSpec struct {
	Path []string `json:"path"`
}

// Definition is an index's full configuration, persisted as
// name -> JSON(definition) under the "_index_meta" partition.
type Definition struct {
	Name       string      `json:"name"`
	Collection string      `json:"collection"`
	Type       Type        `json:"type"`
	Fields     []FieldSpec `json:"fields"`
	Unique     bool        `json:"unique"`
	Sparse     bool        `json:"sparse"`
	TTLSeconds int64       `json:"ttl_seconds,omitempty"`
	Tokenizer  Tokenizer   `json:"tokenizer,omitempty"` // full-text only
}

// partitionName returns the bbolt bucket the index's own entries live in.
func (d *Definition) partitionName() string {
	return "idx_" + d.Name
}

const metaPartitionName = "_index_meta"

func marshalDefinition(d *Definition) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, mdberr.Wrap(mdberr.KindInvalidDocument, err, "marshaling index definition %q", d.Name)
	}
	return b, nil
}

func unmarshalDefinition(b []byte) (*Definition, error) {
	var d Definition
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, mdberr.Wrap(mdberr.KindInvalidDocument, err, "unmarshaling index definition")
	}
	return &d, nil
}
