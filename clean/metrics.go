package clean

import (
	"github.com/docker/go-metrics"

	libmetrics "github.com/spfs-io/spfs/metrics"
)

// cleanedCounter counts objects removed by CleanUntaggedObjects.
var cleanedCounter = libmetrics.CleanNamespace.NewCounter("objects_removed_total", "The number of unattached objects removed during clean")

func init() {
	metrics.Register(libmetrics.CleanNamespace)
}
