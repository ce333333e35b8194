// Package index implements MikuDB's secondary index engine (§4.5): hash,
// ordered (BTree-shaped) and full-text indexes layered on top of the
// storage engine's raw, namespaced partitions. Indexes never hold their own
// file handle; every index partition ("idx_<name>") and the shared
// "_index_meta" definition table are borrowed from the same bbolt-backed
// store documents live in, so an index and its owning collection always
// crash-recover together.
package index
