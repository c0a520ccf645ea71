// Package sync copies references, objects, and their payloads between two
// repositories, in either direction, writing children before the parents
// that reference them so a reader never observes a half-synced object.
package sync

import (
	"context"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/graph"
	"github.com/spfs-io/spfs/logging"
	"github.com/spfs-io/spfs/progress"
	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/storage"
	"github.com/spfs-io/spfs/tracking"
)

// workerCount is the size of the parallel blob-transfer pool: one less
// than the number of available CPUs, floored at 1.
func workerCount() int {
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}

// Options controls an individual sync operation. The zero value is usable:
// no progress reporting, one worker per (CPUs - 1).
type Options struct {
	// Reporter receives progress events during layer blob transfer. Nil
	// disables reporting.
	Reporter *progress.Reporter
	// Workers overrides the blob-transfer worker count; <= 0 uses
	// workerCount().
	Workers int
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return workerCount()
}

// Ref resolves ref in src and copies everything it depends on into dest,
// also pushing the resolved tag record onto dest when ref names a tag
// rather than a bare digest. It returns the object ref resolved to.
func Ref(ctx context.Context, ref string, src, dest *storage.Repository, opts Options) (graph.Object, error) {
	var tag *tracking.Tag
	if spec, err := tracking.ParseTagSpec(ref); err == nil {
		if t, terr := src.Tags.ResolveTag(ctx, spec); terr == nil {
			tag = &t
		}
	}

	obj, err := src.ReadRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := Object(ctx, obj, src, dest, opts); err != nil {
		return nil, err
	}
	if tag != nil {
		if err := dest.Tags.PushRawTag(ctx, *tag); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// Object copies a single graph object (and everything it references) from
// src to dest, dispatching on its concrete kind.
func Object(ctx context.Context, obj graph.Object, src, dest *storage.Repository, opts Options) error {
	switch entry := obj.(type) {
	case storage.Layer:
		return Layer(ctx, entry, src, dest, opts)
	case storage.Platform:
		return Platform(ctx, entry, src, dest, opts)
	case storage.Blob:
		objectsSyncedCounter.Inc(1)
		return syncBlobPayload(ctx, entry.Payload, src, dest)
	default:
		return spfserrors.CorruptObjectError{Reason: "sync: unhandled object kind"}
	}
}

// Platform copies a Platform and, recursively, every object on its stack,
// unless dest already has it.
func Platform(ctx context.Context, platform storage.Platform, src, dest *storage.Repository, _ Options) error {
	digest, err := graph.DigestOfObject(platform)
	if err != nil {
		return err
	}
	if dest.HasPlatform(digest) {
		logging.GetLoggerWithField(ctx, "digest", digest).Debug("platform already synced")
		return nil
	}
	logging.GetLoggerWithField(ctx, "digest", digest).Info("syncing platform")

	for _, d := range platform.Stack {
		obj, err := src.Objects.ReadObject(d)
		if err != nil {
			return err
		}
		if err := Object(ctx, obj, src, dest, Options{}); err != nil {
			return err
		}
	}
	objectsSyncedCounter.Inc(1)
	return dest.Objects.WriteObject(platform)
}

// Layer copies a Layer's manifest and every blob it references, unless
// dest already has it. Blob transfer runs with up to opts.workers()
// concurrent transfers, matching the teacher's errgroup.SetLimit idiom for
// bounded parallel work.
func Layer(ctx context.Context, layer storage.Layer, src, dest *storage.Repository, opts Options) error {
	digest, err := graph.DigestOfObject(layer)
	if err != nil {
		return err
	}
	if dest.HasLayer(digest) {
		logging.GetLoggerWithField(ctx, "digest", digest).Debug("layer already synced")
		return nil
	}
	logging.GetLoggerWithField(ctx, "digest", digest).Info("syncing layer")

	manifest, err := src.ReadManifest(layer.Manifest)
	if err != nil {
		return err
	}

	var entries []tracking.WalkEntry
	for _, we := range manifest.Walk() {
		if we.Entry.Kind == tracking.EntryKindBlob {
			entries = append(entries, we)
		}
	}
	total := int64(len(entries))

	var done int64
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for _, we := range entries {
		we := we
		g.Go(func() error {
			if err := syncBlobPayload(groupCtx, we.Entry.Object, src, dest); err != nil {
				return err
			}
			n := atomic.AddInt64(&done, 1)
			opts.Reporter.Report(progress.Event{Phase: "sync-layer", Ref: digest.String(), Current: n, Total: total})
			bytesSyncedCounter.Inc(float64(we.Entry.Size))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := dest.Objects.WriteObject(manifest); err != nil {
		return err
	}
	objectsSyncedCounter.Inc(1)
	return dest.Objects.WriteObject(layer)
}

// syncBlobPayload copies a Blob object record (if dest doesn't have it)
// and its raw payload (if dest doesn't have that either) from src to dest.
// A Blob's Digest() equals its Payload digest, so both checks key off the
// same value.
func syncBlobPayload(ctx context.Context, digest encoding.Digest, src, dest *storage.Repository) error {
	if !dest.HasBlob(digest) {
		obj, err := src.Objects.ReadObject(digest)
		if err != nil {
			return err
		}
		if err := dest.Objects.WriteObject(obj); err != nil {
			return err
		}
	}

	if _, err := dest.Payloads.ResolveFullDigest(ctx, digest.String()); err == nil {
		logging.GetLoggerWithField(ctx, "digest", digest).Debug("payload already synced")
		return nil
	}

	payload, err := src.Payloads.OpenPayload(ctx, digest)
	if err != nil {
		return err
	}
	defer payload.Close()

	logging.GetLoggerWithField(ctx, "digest", digest).Debug("syncing payload")
	_, err = dest.Payloads.WritePayload(ctx, payload)
	return err
}
