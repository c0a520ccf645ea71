package tracking

// LayerManifests merges a bottom-to-top sequence of layer manifests into
// one, per spec.md §4.9: later manifests' entries override earlier ones at
// the same path, and Mask entries recursively remove the subtree they
// shadow from the running result.
func LayerManifests(manifests ...*Manifest) (*Manifest, error) {
	result := NewManifestBuilder("/")
	for _, m := range manifests {
		for _, we := range m.Walk() {
			if we.Entry.Kind == EntryKindMask {
				result.RemoveEntry(we.Path)
				continue
			}
			if err := result.AddEntry(we.Path, we.Entry); err != nil {
				if err := result.UpdateEntry(we.Path, we.Entry); err != nil {
					return nil, err
				}
			}
		}
	}
	return result.Finalize()
}
