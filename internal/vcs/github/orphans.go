package github

import (
	"context"
	"fmt"
	"sort"
	"strings"

	domainErrors "github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
)

// OrphanedTags returns the tags no release refers to, in the order they
// appear in tags.
func OrphanedTags(tags []string, releaseTags []string) []string {
	referenced := make(map[string]struct{}, len(releaseTags))
	for _, t := range releaseTags {
		referenced[t] = struct{}{}
	}

	seen := make(map[string]struct{}, len(tags))
	orphans := make([]string, 0)
	for _, t := range tags {
		if _, ok := referenced[t]; ok {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		orphans = append(orphans, t)
	}
	return orphans
}

// PartialCleanupError is returned when at least one orphaned tag could not
// be deleted. Result still lists the tags that were.
type PartialCleanupError struct {
	Result models.OrphanCleanupResult
}

func (e *PartialCleanupError) Error() string {
	failed := make([]string, 0, len(e.Result.Failed))
	for tag, reason := range e.Result.Failed {
		failed = append(failed, fmt.Sprintf("%s (%s)", tag, reason))
	}
	sort.Strings(failed)
	return fmt.Sprintf("%s: deleted %d, failed: %s",
		domainErrors.ErrPartialCleanup.Error(), len(e.Result.Deleted), strings.Join(failed, ", "))
}

func (e *PartialCleanupError) Unwrap() error {
	return domainErrors.ErrPartialCleanup
}

// DeleteOrphanedTags deletes every tag of owner/repo that no release refers
// to, one request per tag. Nothing is deleted when there are no orphans.
func (ghc *GitHubClient) DeleteOrphanedTags(ctx context.Context, owner, repo string) (models.OrphanCleanupResult, error) {
	result := models.OrphanCleanupResult{Deleted: []string{}, Failed: map[string]string{}}

	tags, err := ghc.ListTags(ctx, owner, repo)
	if err != nil {
		return result, err
	}
	releases, err := ghc.ListReleases(ctx, owner, repo)
	if err != nil {
		return result, err
	}

	tagNames := make([]string, 0, len(tags))
	for _, t := range tags {
		tagNames = append(tagNames, t.Name)
	}
	releaseTags := make([]string, 0, len(releases))
	for _, r := range releases {
		releaseTags = append(releaseTags, r.TagName)
	}

	orphans := OrphanedTags(tagNames, releaseTags)
	if len(orphans) == 0 {
		logger.Info(ctx, "no orphaned tags", "repo", owner+"/"+repo)
		return result, nil
	}

	for _, tag := range orphans {
		if err := ghc.DeleteTag(ctx, owner, repo, tag); err != nil {
			logger.Warn(ctx, "could not delete orphaned tag", "tag", tag, "error", err)
			result.Failed[tag] = err.Error()
			continue
		}
		result.Deleted = append(result.Deleted, tag)
	}

	logger.Info(ctx, "orphaned tag cleanup finished",
		"count", len(result.Deleted),
		"failed", len(result.Failed))

	if len(result.Failed) > 0 {
		return result, &PartialCleanupError{Result: result}
	}
	return result, nil
}
