package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"murmur/internal/database"
	"murmur/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	// A second pooled connection would see an empty in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))
	return db
}

func seedComment(t *testing.T, db *gorm.DB, c *models.Comment) *models.Comment {
	t.Helper()
	if c.Status == "" {
		c.Status = models.StatusApproved
	}
	if c.Body == "" {
		c.Body = fmt.Sprintf("comment by %d", c.AuthorID)
	}
	require.NoError(t, db.Create(c).Error)
	return c
}

func TestCommentRepository_CreateRoot(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db, 6)
	ctx := context.Background()

	comment := &models.Comment{
		ContentItemID: 1,
		AuthorID:      10,
		Body:          "first!",
		Status:        models.StatusApproved,
	}
	require.NoError(t, repo.Create(ctx, comment))
	require.NotZero(t, comment.ID)

	got, err := repo.GetByID(ctx, comment.ID)
	require.NoError(t, err)
	assert.Equal(t, "first!", got.Body)
	assert.Nil(t, got.ParentID)
	assert.Equal(t, 0, got.ReplyCount)
}

func TestCommentRepository_CreateReply_RecountsParent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db, 6)
	ctx := context.Background()

	parent := seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 10})

	for i := 0; i < 2; i++ {
		reply := &models.Comment{
			ContentItemID: 1,
			AuthorID:      uint(20 + i),
			ParentID:      &parent.ID,
			Body:          "a reply",
			Status:        models.StatusApproved,
		}
		require.NoError(t, repo.Create(ctx, reply))
	}

	got, err := repo.GetByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.ReplyCount)
}

func TestCommentRepository_Create_ParentValidation(t *testing.T) {
	db := setupTestDB(t)
	const maxDepth = 3
	repo := NewCommentRepository(db, maxDepth)
	ctx := context.Background()

	t.Run("missing parent", func(t *testing.T) {
		missing := uint(9999)
		err := repo.Create(ctx, &models.Comment{
			ContentItemID: 1, AuthorID: 1, ParentID: &missing, Body: "x", Status: models.StatusApproved,
		})
		require.Error(t, err)
		assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
	})

	t.Run("parent on another item", func(t *testing.T) {
		parent := seedComment(t, db, &models.Comment{ContentItemID: 2, AuthorID: 1})
		err := repo.Create(ctx, &models.Comment{
			ContentItemID: 1, AuthorID: 1, ParentID: &parent.ID, Body: "x", Status: models.StatusApproved,
		})
		require.Error(t, err)
		assert.Equal(t, models.CodeInvalidArgument, models.CodeOf(err))
	})

	t.Run("deleted parent", func(t *testing.T) {
		parent := seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 1, Status: models.StatusDeleted, Body: "gone"})
		err := repo.Create(ctx, &models.Comment{
			ContentItemID: 1, AuthorID: 1, ParentID: &parent.ID, Body: "x", Status: models.StatusApproved,
		})
		require.Error(t, err)
		assert.Equal(t, models.CodeInvalidArgument, models.CodeOf(err))
	})

	t.Run("depth limit", func(t *testing.T) {
		// Build a chain down to maxDepth; root sits at depth 0.
		cur := seedComment(t, db, &models.Comment{ContentItemID: 3, AuthorID: 1})
		for d := 1; d <= maxDepth; d++ {
			reply := &models.Comment{
				ContentItemID: 3, AuthorID: 1, ParentID: &cur.ID, Body: "x", Status: models.StatusApproved,
			}
			require.NoError(t, repo.Create(ctx, reply))
			cur = reply
		}

		err := repo.Create(ctx, &models.Comment{
			ContentItemID: 3, AuthorID: 1, ParentID: &cur.ID, Body: "too deep", Status: models.StatusApproved,
		})
		require.Error(t, err)
		assert.Equal(t, models.CodeInvalidArgument, models.CodeOf(err))
	})
}

func TestCommentRepository_ListByItem(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db, 6)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 1, Body: "old", CreatedAt: base})
	popular := seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 2, Body: "popular", LikeCount: 50, CreatedAt: base.Add(time.Hour)})
	fresh := seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 3, Body: "fresh", CreatedAt: base.Add(2 * time.Hour)})
	seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 4, Body: "pending", Status: models.StatusPending, CreatedAt: base.Add(3 * time.Hour)})
	seedComment(t, db, &models.Comment{ContentItemID: 2, AuthorID: 5, Body: "other item", CreatedAt: base})

	t.Run("newest excludes non-approved and other items", func(t *testing.T) {
		page, err := repo.ListByItem(ctx, 1, models.CommentQuery{Page: 1, PageSize: 10, Sort: models.SortNewest})
		require.NoError(t, err)
		require.Equal(t, int64(3), page.Total)
		require.Len(t, page.Comments, 3)
		assert.Equal(t, fresh.ID, page.Comments[0].ID)
		assert.Equal(t, popular.ID, page.Comments[1].ID)
		assert.Equal(t, old.ID, page.Comments[2].ID)
	})

	t.Run("most liked first", func(t *testing.T) {
		page, err := repo.ListByItem(ctx, 1, models.CommentQuery{Page: 1, PageSize: 10, Sort: models.SortMostLiked})
		require.NoError(t, err)
		assert.Equal(t, popular.ID, page.Comments[0].ID)
	})

	t.Run("hot favors engagement", func(t *testing.T) {
		page, err := repo.ListByItem(ctx, 1, models.CommentQuery{Page: 1, PageSize: 10, Sort: models.SortHot})
		require.NoError(t, err)
		require.Len(t, page.Comments, 3)
		assert.Equal(t, popular.ID, page.Comments[0].ID)
	})

	t.Run("moderation view keeps pending", func(t *testing.T) {
		page, err := repo.ListByItem(ctx, 1, models.CommentQuery{Page: 1, PageSize: 10, Sort: models.SortNewest, Moderation: true})
		require.NoError(t, err)
		assert.Equal(t, int64(4), page.Total)
	})

	t.Run("pagination", func(t *testing.T) {
		page, err := repo.ListByItem(ctx, 1, models.CommentQuery{Page: 2, PageSize: 2, Sort: models.SortNewest})
		require.NoError(t, err)
		assert.Equal(t, int64(3), page.Total)
		require.Len(t, page.Comments, 1)
		assert.Equal(t, old.ID, page.Comments[0].ID)
	})
}

func TestCommentRepository_FetchThread(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db, 6)
	ctx := context.Background()

	seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 1, Body: "approved"})
	seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 2, Body: "hidden", Status: models.StatusHidden})
	seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 3, Body: "stub", Status: models.StatusDeleted})
	seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 4, Body: "pending", Status: models.StatusPending})
	seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 5, Body: "rejected", Status: models.StatusRejected})

	public, err := repo.FetchThread(ctx, 1, false)
	require.NoError(t, err)
	assert.Len(t, public, 3)
	for _, c := range public {
		assert.NotEqual(t, models.StatusPending, c.Status)
		assert.NotEqual(t, models.StatusRejected, c.Status)
	}

	mod, err := repo.FetchThread(ctx, 1, true)
	require.NoError(t, err)
	assert.Len(t, mod, 5)
}

func TestCommentRepository_SoftDelete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db, 6)
	ctx := context.Background()

	parent := seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 1})
	reply := &models.Comment{ContentItemID: 1, AuthorID: 2, ParentID: &parent.ID, Body: "bye", Status: models.StatusApproved}
	require.NoError(t, repo.Create(ctx, reply))

	require.NoError(t, repo.SoftDelete(ctx, reply.ID))

	got, err := repo.GetByID(ctx, reply.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDeleted, got.Status)
	assert.Empty(t, got.Body)

	gotParent, err := repo.GetByID(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, gotParent.ReplyCount)

	err = repo.SoftDelete(ctx, reply.ID)
	require.Error(t, err)
	assert.Equal(t, models.CodeConflict, models.CodeOf(err))

	err = repo.SoftDelete(ctx, 9999)
	require.Error(t, err)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
}

func TestCommentRepository_SetStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db, 6)
	ctx := context.Background()

	c := seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 1, Status: models.StatusPending, Body: "waiting"})

	require.NoError(t, repo.SetStatus(ctx, c.ID, models.StatusApproved))
	got, err := repo.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)

	err = repo.SetStatus(ctx, 9999, models.StatusApproved)
	require.Error(t, err)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
}

func TestCommentRepository_ListPending(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db, 6)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	first := seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 1, Status: models.StatusPending, Body: "a", CreatedAt: base})
	second := seedComment(t, db, &models.Comment{ContentItemID: 2, AuthorID: 2, Status: models.StatusPending, Body: "b", CreatedAt: base.Add(time.Minute)})
	seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 3, Body: "approved"})

	page, err := repo.ListPending(ctx, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Comments, 2)
	// Oldest first so the queue drains in arrival order.
	assert.Equal(t, first.ID, page.Comments[0].ID)
	assert.Equal(t, second.ID, page.Comments[1].ID)
}

func TestCommentRepository_Stats(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCommentRepository(db, 6)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	root := seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 1, LikeCount: 3, CreatedAt: base})
	seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 2, ParentID: &root.ID, LikeCount: 2, Body: "r", CreatedAt: base.Add(time.Hour)})
	seedComment(t, db, &models.Comment{ContentItemID: 1, AuthorID: 3, Status: models.StatusHidden, LikeCount: 100, Body: "h", CreatedAt: base.Add(2 * time.Hour)})

	stats, err := repo.Stats(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Total)
	assert.Equal(t, int64(1), stats.Roots)
	assert.Equal(t, int64(5), stats.Likes)
	require.NotNil(t, stats.LastActivity)
	assert.True(t, stats.LastActivity.Equal(base.Add(time.Hour)))
}
