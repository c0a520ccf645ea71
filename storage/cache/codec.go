package cache

import (
	"bytes"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
)

// encodeObject serializes obj to the same on-disk form a graph.Database
// writes, so cached bytes decode with graph.DecodeObject unchanged.
func encodeObject(obj graph.Object) ([]byte, error) {
	var buf bytes.Buffer
	if err := graph.EncodeObject(encoding.NewWriter(&buf), obj); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(raw []byte) (graph.Object, error) {
	return graph.DecodeObject(encoding.NewReader(bytes.NewReader(raw)))
}
