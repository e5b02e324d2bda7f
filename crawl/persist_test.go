package crawl

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/pevans/newscrawl/article"
	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingInsertRepo rejects every insert with a storage error
type failingInsertRepo struct {
	article.Repository
}

func (r failingInsertRepo) Insert(ctx context.Context, a *article.Article) error {
	return errors.New("disk full")
}

// TestPersist_Saved verifies the blob is written and the row references it
func TestPersist_Saved(t *testing.T) {
	repo, store := createTestStores(t)
	ctx := context.Background()
	crawledAt := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

	p := NewPersister(repo, store, logger.NewNop())
	p.now = func() time.Time { return crawledAt }

	body := strings.Repeat("x", 250)
	c := candidate("BBC", "https://bbc.test/a", body)
	outcome, err := p.Persist(ctx, c, article.NewGeopoliticalTags([]string{"China"}))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)

	rows, err := repo.List(ctx, article.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	saved := rows[0]

	require.NotNil(t, saved.ContentKey)
	assert.True(t, strings.HasPrefix(*saved.ContentKey, content.KeyPrefix(c.URL)))
	stored, err := store.Get(ctx, *saved.ContentKey)
	require.NoError(t, err)
	assert.Equal(t, body, stored)

	assert.Equal(t, strings.Repeat("x", 200)+"...", saved.Excerpt)
	assert.Empty(t, saved.Content)
	assert.True(t, crawledAt.Equal(saved.PublishedAt), "missing date defaults to crawl time")
	assert.Equal(t, []string{"China"}, saved.Tags.Countries)
}

// TestPersist_BlobFailure verifies no row is written when the body write
// fails
func TestPersist_BlobFailure(t *testing.T) {
	repo, store := createTestStores(t)
	ctx := context.Background()
	flaky := &flakyStore{Store: store, failFor: map[string]bool{"https://bbc.test/a": true}}

	p := NewPersister(repo, flaky, logger.NewNop())
	outcome, err := p.Persist(ctx, candidate("BBC", "https://bbc.test/a", "body"), article.NewGeopoliticalTags(nil))
	require.Error(t, err)
	assert.Equal(t, OutcomeFailed, outcome)

	existing, err := repo.FindExistingURLs(ctx, []string{"https://bbc.test/a"})
	require.NoError(t, err)
	assert.Empty(t, existing)
}

// TestPersist_Duplicate verifies a concurrent duplicate is reported without
// error and the first row and its body are kept
func TestPersist_Duplicate(t *testing.T) {
	repo, store := createTestStores(t)
	ctx := context.Background()
	p := NewPersister(repo, store, logger.NewNop())

	first := candidate("BBC", "https://bbc.test/a", "first body")
	_, err := p.Persist(ctx, first, article.NewGeopoliticalTags(nil))
	require.NoError(t, err)

	second := candidate("BBC", "https://bbc.test/a", "second body")
	second.Title = "Changed"
	outcome, err := p.Persist(ctx, second, article.NewGeopoliticalTags(nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)

	rows, err := repo.List(ctx, article.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, first.Title, rows[0].Title)

	require.NotNil(t, rows[0].ContentKey)
	body, err := store.Get(ctx, *rows[0].ContentKey)
	require.NoError(t, err)
	assert.Equal(t, "first body", body)

	objects, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1, "the rejected body is removed")
	assert.Equal(t, *rows[0].ContentKey, objects[0].Key)
}

// TestPersist_InsertFailure verifies a metadata failure is reported and the
// written blob is left for the orphan sweep
func TestPersist_InsertFailure(t *testing.T) {
	repo, store := createTestStores(t)
	ctx := context.Background()

	p := NewPersister(failingInsertRepo{Repository: repo}, store, logger.NewNop())
	outcome, err := p.Persist(ctx, candidate("BBC", "https://bbc.test/a", "body"), article.NewGeopoliticalTags(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, OutcomeFailed, outcome)

	objects, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.True(t, strings.HasPrefix(objects[0].Key, content.KeyPrefix("https://bbc.test/a")))
}

// TestPersist_EmptyBody verifies an article without body gets no content key
func TestPersist_EmptyBody(t *testing.T) {
	repo, store := createTestStores(t)
	ctx := context.Background()
	p := NewPersister(repo, store, logger.NewNop())

	outcome, err := p.Persist(ctx, candidate("BBC", "https://bbc.test/a", ""), article.NewGeopoliticalTags(nil))
	require.NoError(t, err)
	assert.Equal(t, OutcomeSaved, outcome)

	rows, err := repo.List(ctx, article.Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].ContentKey)
	assert.Empty(t, rows[0].Excerpt)

	objects, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, objects)
}
