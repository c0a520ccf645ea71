package fs

import (
	"github.com/docker/go-metrics"

	libmetrics "github.com/spfs-io/spfs/metrics"
)

var (
	// payloadBytes counts bytes moved through PayloadStorage, labeled by
	// direction ("read" or "write").
	payloadBytes = libmetrics.StorageNamespace.NewLabeledCounter("payload_bytes", "The number of payload bytes read or written", "direction")

	// objectOps counts object-database operations, labeled by op
	// ("read", "write", "remove").
	objectOps = libmetrics.StorageNamespace.NewLabeledCounter("object_operations_total", "The number of object database operations performed", "op")
)

func init() {
	metrics.Register(libmetrics.StorageNamespace)
}
