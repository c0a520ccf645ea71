// Package clean identifies and removes objects, payloads, and renders that
// are no longer reachable from any tag, and prunes old tag history.
package clean

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/spfs-io/spfs/encoding"
	"github.com/spfs-io/spfs/logging"
	"github.com/spfs-io/spfs/progress"
	"github.com/spfs-io/spfs/spfserrors"
	"github.com/spfs-io/spfs/storage"
	"github.com/spfs-io/spfs/tracking"
)

// workerCount is one less than the number of available CPUs, floored at 1.
func workerCount() int {
	if n := runtime.NumCPU() - 1; n > 0 {
		return n
	}
	return 1
}

// Options controls a clean operation. The zero value is usable: a full
// mark-and-sweep pass with no checkpoint and no progress reporting.
type Options struct {
	// Reporter receives progress events as unattached objects are
	// removed. Nil disables reporting.
	Reporter *progress.Reporter
	// Workers overrides the removal worker count; <= 0 uses workerCount().
	Workers int

	// CheckpointDir, when set, persists the mark phase's deletion
	// candidates to disk and guards the run with a lock file, so a
	// MarkOnly pass and a later SweepOnly pass can be separate
	// invocations (e.g. across a maintenance window).
	CheckpointDir string
	// MarkOnly computes and saves deletion candidates to CheckpointDir
	// without removing anything. Requires CheckpointDir.
	MarkOnly bool
	// SweepOnly removes exactly the candidates saved by a prior MarkOnly
	// pass, without recomputing reachability. Requires CheckpointDir.
	SweepOnly bool
	// LockTimeout bounds how long a CheckpointDir lock is honored before
	// a new run may break it; <= 0 defaults to 24h.
	LockTimeout time.Duration
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return workerCount()
}

func (o Options) lockTimeout() time.Duration {
	if o.LockTimeout > 0 {
		return o.LockTimeout
	}
	return 24 * time.Hour
}

// GetAllAttachedObjects returns every digest reachable from some tag: the
// tag targets themselves, the layers/platforms they transitively reference,
// and — since a Manifest's blob entries live in the object database as
// their own Blob records rather than as graph children of the Manifest —
// every blob digest named by a reachable layer's manifest.
func GetAllAttachedObjects(ctx context.Context, repo *storage.Repository) (map[encoding.Digest]bool, error) {
	attached := map[encoding.Digest]bool{}

	names, err := repo.Tags.IterStreamNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		tags, err := repo.Tags.ReadTagStream(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, tag := range tags {
			if err := walkAttached(repo, tag.Target, attached); err != nil {
				return nil, err
			}
		}
	}
	return attached, nil
}

func walkAttached(repo *storage.Repository, digest encoding.Digest, attached map[encoding.Digest]bool) error {
	if attached[digest] {
		return nil
	}
	attached[digest] = true

	obj, err := repo.Objects.ReadObject(digest)
	if err != nil {
		return err
	}
	switch entry := obj.(type) {
	case storage.Layer:
		attached[entry.Manifest] = true
		manifest, err := repo.ReadManifest(entry.Manifest)
		if err != nil {
			return err
		}
		for _, we := range manifest.Walk() {
			if we.Entry.Kind == tracking.EntryKindBlob {
				attached[we.Entry.Object] = true
			}
		}
	case storage.Platform:
		for _, d := range entry.Stack {
			if err := walkAttached(repo, d, attached); err != nil {
				return err
			}
		}
	case storage.Blob:
		// no children: its payload lives in the payload store.
	}
	return nil
}

// GetAllUnattachedObjects returns every object-database digest not
// reachable from any tag.
func GetAllUnattachedObjects(ctx context.Context, repo *storage.Repository) (map[encoding.Digest]bool, error) {
	attached, err := GetAllAttachedObjects(ctx, repo)
	if err != nil {
		return nil, err
	}
	all, err := repo.Objects.IterDigests()
	if err != nil {
		return nil, err
	}
	unattached := map[encoding.Digest]bool{}
	for _, d := range all {
		if !attached[d] {
			unattached[d] = true
		}
	}
	return unattached, nil
}

// GetAllUnattachedPayloads returns every payload-store digest that is not
// backed by a Blob object in the object database.
func GetAllUnattachedPayloads(ctx context.Context, repo *storage.Repository) (map[encoding.Digest]bool, error) {
	digests, err := repo.Payloads.IterDigests(ctx)
	if err != nil {
		return nil, err
	}
	orphaned := map[encoding.Digest]bool{}
	for _, d := range digests {
		if _, err := repo.ReadBlob(d); err != nil {
			orphaned[d] = true
		}
	}
	return orphaned, nil
}

// CleanUntaggedObjects removes every unattached object, its payload (if
// any), and its render (if any) from repo, with up to opts.workers()
// removals running concurrently. With opts.CheckpointDir set, the mark
// phase (reachability computation) and the sweep phase (removal) can run
// as separate invocations via opts.MarkOnly/opts.SweepOnly.
func CleanUntaggedObjects(ctx context.Context, repo *storage.Repository, opts Options) error {
	if opts.MarkOnly && opts.SweepOnly {
		return spfserrors.Io("clean", errBadCheckpointOpts("cannot specify both MarkOnly and SweepOnly"))
	}
	if (opts.MarkOnly || opts.SweepOnly) && opts.CheckpointDir == "" {
		return spfserrors.Io("clean", errBadCheckpointOpts("MarkOnly/SweepOnly require CheckpointDir"))
	}

	if opts.CheckpointDir != "" {
		if err := acquireLock(opts.CheckpointDir, opts.lockTimeout()); err != nil {
			return err
		}
		defer releaseLock(opts.CheckpointDir)
	}

	var digests []encoding.Digest
	if opts.SweepOnly {
		state, err := loadCheckpoint(opts.CheckpointDir)
		if err != nil {
			return err
		}
		if state == nil || !state.MarkPhaseComplete {
			return spfserrors.Io("clean", errBadCheckpointOpts("no completed mark-phase checkpoint found"))
		}
		for _, s := range state.DeletionCandidates {
			d, err := encoding.ParseDigest(s)
			if err != nil {
				continue
			}
			digests = append(digests, d)
		}
	} else {
		logging.GetLogger(ctx).Info("evaluating repository digraph...")
		unattached, err := GetAllUnattachedObjects(ctx, repo)
		if err != nil {
			return err
		}
		for d := range unattached {
			digests = append(digests, d)
		}

		if opts.MarkOnly {
			candidates := make([]string, len(digests))
			for i, d := range digests {
				candidates[i] = d.String()
			}
			return saveCheckpoint(opts.CheckpointDir, CheckpointState{
				Version:            checkpointVersion,
				Timestamp:          time.Now(),
				MarkPhaseComplete:  true,
				DeletionCandidates: candidates,
			})
		}
	}

	if len(digests) == 0 {
		logging.GetLogger(ctx).Info("nothing to clean")
		return nil
	}
	total := int64(len(digests))

	logging.GetLogger(ctx).Info("removing orphaned data...")
	var done int64
	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for _, d := range digests {
		d := d
		g.Go(func() error {
			if err := cleanOne(groupCtx, repo, d); err != nil {
				return err
			}
			n := atomic.AddInt64(&done, 1)
			opts.Reporter.Report(progress.Event{Phase: "clean-untagged", Current: n, Total: total})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	cleanedCounter.Inc(float64(len(digests)))
	logging.GetLoggerWithField(ctx, "count", len(digests)).Info("cleaned objects")
	return nil
}

func cleanOne(ctx context.Context, repo *storage.Repository, digest encoding.Digest) error {
	if err := repo.Objects.RemoveObject(digest); err != nil && !spfserrors.IsUnknownObject(err) {
		return err
	}
	if err := repo.Payloads.RemovePayload(ctx, digest); err != nil && !spfserrors.IsUnknownObject(err) {
		return err
	}
	if repo.Renderer == nil {
		return nil
	}
	return repo.Renderer.RemoveRenderedManifest(ctx, digest)
}

// errBadCheckpointOpts reports an invalid combination of checkpoint-related
// Options.
type errBadCheckpointOpts string

func (e errBadCheckpointOpts) Error() string { return string(e) }
