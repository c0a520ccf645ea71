package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of prometheus metrics
	NamespacePrefix = "spfs"
)

var (
	// StorageNamespace is the prometheus namespace of object/payload/tag
	// storage operations.
	StorageNamespace = metrics.NewNamespace(NamespacePrefix, "storage", nil)

	// SyncNamespace is the prometheus namespace of ref/object sync
	// (push/pull) operations.
	SyncNamespace = metrics.NewNamespace(NamespacePrefix, "sync", nil)

	// CleanNamespace is the prometheus namespace of garbage collection and
	// tag pruning operations.
	CleanNamespace = metrics.NewNamespace(NamespacePrefix, "clean", nil)
)
