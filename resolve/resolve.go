// Package resolve turns a runtime's digest stack into the set of
// filesystem layers (and, transitively, rendered directories) that make up
// its mounted view.
package resolve

import (
	"context"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/runtime"
	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/storage"
	"github.com/spfs-io/spfs/tracking"
)

// ResolveStackToLayers expands a sequence of digests (which may each be
// either a Layer or a Platform) into the flat, ordered sequence of Layers
// they resolve to, recursively expanding any nested Platform.
func ResolveStackToLayers(repo *storage.Repository, stack []encoding.Digest) ([]storage.Layer, error) {
	var layers []storage.Layer
	for _, digest := range stack {
		obj, err := repo.Objects.ReadObject(digest)
		if err != nil {
			return nil, err
		}
		switch entry := obj.(type) {
		case storage.Layer:
			layers = append(layers, entry)
		case storage.Platform:
			expanded, err := ResolveStackToLayers(repo, entry.Stack)
			if err != nil {
				return nil, err
			}
			layers = append(layers, expanded...)
		default:
			return nil, spfserrors.CorruptObjectError{Reason: "cannot resolve object into a mountable layer"}
		}
	}
	return layers, nil
}

// ComputeObjectManifest resolves obj (a Layer or Platform) to the single
// merged Manifest it represents, applying layers bottom to top so later
// (higher) entries win.
func ComputeObjectManifest(repo *storage.Repository, obj graph.Object) (*tracking.Manifest, error) {
	switch entry := obj.(type) {
	case storage.Layer:
		return repo.ReadManifest(entry.Manifest)
	case storage.Platform:
		layers, err := ResolveStackToLayers(repo, entry.Stack)
		if err != nil {
			return nil, err
		}
		return mergeLayers(repo, layers)
	default:
		return nil, spfserrors.CorruptObjectError{Reason: "cannot compute a manifest for this object kind"}
	}
}

// ResolveRuntimeManifest computes the single merged Manifest for a
// runtime's current stack, bottom layer first.
func ResolveRuntimeManifest(repo *storage.Repository, rt *runtime.Runtime) (*tracking.Manifest, error) {
	stack, err := rt.GetStack()
	if err != nil {
		return nil, err
	}
	layers, err := ResolveStackToLayers(repo, stack)
	if err != nil {
		return nil, err
	}
	return mergeLayers(repo, layers)
}

func mergeLayers(repo *storage.Repository, layers []storage.Layer) (*tracking.Manifest, error) {
	manifests := make([]*tracking.Manifest, len(layers))
	for i, layer := range layers {
		m, err := repo.ReadManifest(layer.Manifest)
		if err != nil {
			return nil, err
		}
		manifests[i] = m
	}
	return tracking.LayerManifests(manifests...)
}

// ResolveOverlayDirs compiles the list of rendered directories for a
// runtime's stack, bottom to top, rendering each layer's manifest on
// demand via the repository's renderer. Overlayfs's own lowerdir= syntax
// wants highest-priority first, so a caller building an actual mount
// command needs to reverse this list; that external mount step is out of
// this package's scope.
func ResolveOverlayDirs(ctx context.Context, repo *storage.Repository, rt *runtime.Runtime) ([]string, error) {
	stack, err := rt.GetStack()
	if err != nil {
		return nil, err
	}
	layers, err := ResolveStackToLayers(repo, stack)
	if err != nil {
		return nil, err
	}

	dirs := make([]string, 0, len(layers))
	for _, layer := range layers {
		manifest, err := repo.ReadManifest(layer.Manifest)
		if err != nil {
			return nil, err
		}
		dir, err := repo.Renderer.RenderManifest(ctx, manifest)
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}
