// Package archive defines the core types and contracts shared by the
// collection and ingestion pipeline: URL records, parsed and archived
// articles, the source adapter capability set, the upstream search function,
// and the two storage shapes (ordered log and keyed store).
package archive
