package github

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-github/v80/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	domainErrors "github.com/thomas-vilte/materelease/internal/errors"
)

func TestOrphanedTags(t *testing.T) {
	tests := []struct {
		name     string
		tags     []string
		releases []string
		want     []string
	}{
		{"no tags", nil, []string{"v1"}, []string{}},
		{"all released", []string{"v1", "v2"}, []string{"v2", "v1"}, []string{}},
		{"keeps tag order", []string{"v3", "v1", "v2"}, []string{"v1"}, []string{"v3", "v2"}},
		{"release without tag is ignored", []string{"v1"}, []string{"v0"}, []string{"v1"}},
		{"duplicates collapse", []string{"v1", "v1"}, nil, []string{"v1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OrphanedTags(tt.tags, tt.releases))
		})
	}
}

func expectListing(m *mocks, tags []string, releaseTags []string) {
	repoTags := make([]*github.RepositoryTag, 0, len(tags))
	for _, t := range tags {
		repoTags = append(repoTags, &github.RepositoryTag{Name: github.Ptr(t)})
	}
	releases := make([]*github.RepositoryRelease, 0, len(releaseTags))
	for _, t := range releaseTags {
		releases = append(releases, &github.RepositoryRelease{TagName: github.Ptr(t)})
	}
	first := mock.MatchedBy(func(o *github.ListOptions) bool { return o.Page == 1 })
	rest := mock.MatchedBy(func(o *github.ListOptions) bool { return o.Page > 1 })

	m.repos.On("ListTags", mock.Anything, "octo", "app", first).Return(repoTags, statusResponse(200), nil)
	m.repos.On("ListTags", mock.Anything, "octo", "app", rest).Return([]*github.RepositoryTag{}, statusResponse(200), nil)
	m.releases.On("ListReleases", mock.Anything, "octo", "app", first).Return(releases, statusResponse(200), nil)
	m.releases.On("ListReleases", mock.Anything, "octo", "app", rest).Return([]*github.RepositoryRelease{}, statusResponse(200), nil)
}

func TestDeleteOrphanedTags(t *testing.T) {
	ctx := context.Background()

	t.Run("nothing orphaned issues no deletes", func(t *testing.T) {
		client, m := newMockClient()
		expectListing(m, []string{"v1", "v2"}, []string{"v1", "v2"})

		res, err := client.DeleteOrphanedTags(ctx, "octo", "app")

		require.NoError(t, err)
		assert.Empty(t, res.Deleted)
		assert.Empty(t, res.Failed)
		m.git.AssertNotCalled(t, "DeleteRef", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("deletes each orphan", func(t *testing.T) {
		client, m := newMockClient()
		expectListing(m, []string{"v1", "v1.1-rc", "v2", "nightly"}, []string{"v1", "v2"})
		m.git.On("DeleteRef", ctx, "octo", "app", "tags/v1.1-rc").Return(statusResponse(204), nil).Once()
		m.git.On("DeleteRef", ctx, "octo", "app", "tags/nightly").Return(statusResponse(204), nil).Once()

		res, err := client.DeleteOrphanedTags(ctx, "octo", "app")

		require.NoError(t, err)
		assert.Equal(t, []string{"v1.1-rc", "nightly"}, res.Deleted)
		m.git.AssertExpectations(t)
	})

	t.Run("partial failure keeps going", func(t *testing.T) {
		client, m := newMockClient()
		expectListing(m, []string{"a", "b", "c"}, nil)
		m.git.On("DeleteRef", ctx, "octo", "app", "tags/a").Return(statusResponse(204), nil)
		resp, ghErr := errorResponse(403)
		m.git.On("DeleteRef", ctx, "octo", "app", "tags/b").Return(resp, ghErr)
		m.git.On("DeleteRef", ctx, "octo", "app", "tags/c").Return(statusResponse(204), nil)

		res, err := client.DeleteOrphanedTags(ctx, "octo", "app")

		require.Error(t, err)
		assert.ErrorIs(t, err, domainErrors.ErrPartialCleanup)
		var partial *PartialCleanupError
		require.True(t, errors.As(err, &partial))
		assert.Equal(t, []string{"a", "c"}, partial.Result.Deleted)
		assert.Contains(t, partial.Result.Failed, "b")
		assert.Equal(t, res, partial.Result)
		assert.Contains(t, err.Error(), "b (")
	})

	t.Run("listing failure mutates nothing", func(t *testing.T) {
		client, m := newMockClient()
		resp, ghErr := errorResponse(401)
		m.repos.On("ListTags", ctx, "octo", "app", mock.Anything).Return(nil, resp, ghErr)

		_, err := client.DeleteOrphanedTags(ctx, "octo", "app")

		assert.ErrorIs(t, err, domainErrors.ErrTokenInvalid)
		m.git.AssertNotCalled(t, "DeleteRef", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}
