package clean

import (
	"context"
	"time"

	"github.com/spfs-io/spfs/storage"
	"github.com/spfs-io/spfs/tracking"
)

// PruneParameters specifies a range of conditions for pruning tags out of
// a repository. Keep conditions are evaluated before prune conditions, so
// a tag that satisfies both is kept — matching the source's
// keep-before-prune evaluation order.
type PruneParameters struct {
	// PruneIfOlderThan prunes a tag whose time is before this instant.
	PruneIfOlderThan time.Time
	// KeepIfNewerThan keeps a tag whose time is after this instant, even
	// if it would otherwise be pruned.
	KeepIfNewerThan time.Time
	// PruneIfVersionMoreThan prunes a tag whose version number (0 =
	// newest) exceeds this value. <= 0 disables this condition.
	PruneIfVersionMoreThan int
	// KeepIfVersionLessThan keeps a tag whose version number is below
	// this value, even if it would otherwise be pruned. <= 0 disables
	// this condition.
	KeepIfVersionLessThan int
}

// ShouldPrune reports whether tag, at the given version within its
// stream, should be pruned under params. Keep conditions are checked
// first and always win; among the prune conditions, version takes
// priority over age, mirroring the source's should_prune.
func (p PruneParameters) ShouldPrune(spec tracking.TagSpec, tag tracking.Tag) bool {
	if p.KeepIfVersionLessThan > 0 && spec.Version < p.KeepIfVersionLessThan {
		return false
	}
	if !p.KeepIfNewerThan.IsZero() && tag.Time.After(p.KeepIfNewerThan) {
		return false
	}

	if p.PruneIfVersionMoreThan > 0 && spec.Version > p.PruneIfVersionMoreThan {
		return true
	}
	if !p.PruneIfOlderThan.IsZero() && tag.Time.Before(p.PruneIfOlderThan) {
		return true
	}
	return false
}

// GetPrunableTags returns every tag across every stream in tags that
// ShouldPrune selects under params.
func GetPrunableTags(ctx context.Context, tags storage.TagStorage, params PruneParameters) ([]tracking.Tag, error) {
	var toPrune []tracking.Tag

	names, err := tags.IterStreamNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		stream, err := tags.ReadTagStream(ctx, name)
		if err != nil {
			return nil, err
		}
		for i, tag := range stream {
			spec, err := tracking.BuildTagSpec(tag.Org, tag.Name, i)
			if err != nil {
				return nil, err
			}
			if params.ShouldPrune(spec, tag) {
				toPrune = append(toPrune, tag)
			}
		}
	}
	return toPrune, nil
}

// PruneTags removes every tag GetPrunableTags selects under params, and
// returns the tags that were removed.
func PruneTags(ctx context.Context, tags storage.TagStorage, params PruneParameters) ([]tracking.Tag, error) {
	toPrune, err := GetPrunableTags(ctx, tags, params)
	if err != nil {
		return nil, err
	}
	for _, tag := range toPrune {
		if err := tags.RemoveTag(ctx, tag); err != nil {
			return nil, err
		}
	}
	return toPrune, nil
}
