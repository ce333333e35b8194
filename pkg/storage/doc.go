/*
Package storage provides the engine's persistent key-value layer: an
embedded bbolt B+tree wrapped so that each collection maps to one bucket
("partition" in the spec's vocabulary), with two reserved partitions —
_metadata (collection definitions) and _system (engine-internal state) —
always present alongside the user-created ones.

Document keys inside a partition are a single discriminator byte 'd'
followed by the document's 12-byte ObjectId, so a prefix cursor over 'd'
enumerates every document in the collection in ObjectId order.

The storage engine does not itself write to the write-ahead log; durable
commit ordering is the transaction layer's job (pkg/txn). This package's
own writes rely solely on bbolt's own fsync-on-commit guarantee.
*/
package storage
