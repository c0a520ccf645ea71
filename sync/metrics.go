package sync

import (
	"github.com/docker/go-metrics"

	libmetrics "github.com/spfs-io/spfs/metrics"
)

var (
	// objectsSyncedCounter counts blobs passed directly to Object and each
	// layer and platform written to a destination repository. Blobs and
	// manifests copied as part of a layer are not counted separately.
	objectsSyncedCounter = libmetrics.SyncNamespace.NewCounter("objects_synced_total", "The number of objects written to a destination repository during sync")

	// bytesSyncedCounter adds up the recorded sizes of the blob entries of
	// each layer synced, including payloads the destination already had.
	bytesSyncedCounter = libmetrics.SyncNamespace.NewCounter("bytes_synced_total", "The number of payload bytes transferred during sync")
)

func init() {
	metrics.Register(libmetrics.SyncNamespace)
}
