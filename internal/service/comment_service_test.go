package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"murmur/internal/config"
	"murmur/internal/models"
	"murmur/internal/moderation"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commentRepoStub is a stub for repository.CommentRepository.
type commentRepoStub struct {
	createFn      func(context.Context, *models.Comment) error
	getByIDFn     func(context.Context, uint) (*models.Comment, error)
	listByItemFn  func(context.Context, uint, models.CommentQuery) (*models.CommentPage, error)
	fetchThreadFn func(context.Context, uint, bool) ([]*models.Comment, error)
	updateFn      func(context.Context, *models.Comment) error
	softDeleteFn  func(context.Context, uint) error
	setStatusFn   func(context.Context, uint, models.CommentStatus) error
	listPendingFn func(context.Context, int, int) (*models.CommentPage, error)
	statsFn       func(context.Context, uint) (*models.CommentStats, error)
}

func (s *commentRepoStub) Create(ctx context.Context, c *models.Comment) error {
	return s.createFn(ctx, c)
}
func (s *commentRepoStub) GetByID(ctx context.Context, id uint) (*models.Comment, error) {
	return s.getByIDFn(ctx, id)
}
func (s *commentRepoStub) ListByItem(ctx context.Context, itemID uint, q models.CommentQuery) (*models.CommentPage, error) {
	return s.listByItemFn(ctx, itemID, q)
}
func (s *commentRepoStub) FetchThread(ctx context.Context, itemID uint, moderation bool) ([]*models.Comment, error) {
	return s.fetchThreadFn(ctx, itemID, moderation)
}
func (s *commentRepoStub) Update(ctx context.Context, c *models.Comment) error {
	return s.updateFn(ctx, c)
}
func (s *commentRepoStub) SoftDelete(ctx context.Context, id uint) error {
	return s.softDeleteFn(ctx, id)
}
func (s *commentRepoStub) SetStatus(ctx context.Context, id uint, status models.CommentStatus) error {
	return s.setStatusFn(ctx, id, status)
}
func (s *commentRepoStub) ListPending(ctx context.Context, page, size int) (*models.CommentPage, error) {
	return s.listPendingFn(ctx, page, size)
}
func (s *commentRepoStub) Stats(ctx context.Context, itemID uint) (*models.CommentStats, error) {
	return s.statsFn(ctx, itemID)
}

func noopCommentRepo() *commentRepoStub {
	return &commentRepoStub{
		createFn: func(_ context.Context, c *models.Comment) error {
			c.ID = 1
			return nil
		},
		getByIDFn: func(_ context.Context, id uint) (*models.Comment, error) {
			return &models.Comment{ID: id, ContentItemID: 1, AuthorID: 1, Body: "hi", Status: models.StatusApproved, CreatedAt: time.Now()}, nil
		},
		listByItemFn: func(_ context.Context, _ uint, q models.CommentQuery) (*models.CommentPage, error) {
			return &models.CommentPage{Page: q.Page, PageSize: q.PageSize}, nil
		},
		fetchThreadFn: func(_ context.Context, _ uint, _ bool) ([]*models.Comment, error) {
			return nil, nil
		},
		updateFn:     func(_ context.Context, _ *models.Comment) error { return nil },
		softDeleteFn: func(_ context.Context, _ uint) error { return nil },
		setStatusFn:  func(_ context.Context, _ uint, _ models.CommentStatus) error { return nil },
		listPendingFn: func(_ context.Context, page, size int) (*models.CommentPage, error) {
			return &models.CommentPage{Page: page, PageSize: size}, nil
		},
		statsFn: func(_ context.Context, itemID uint) (*models.CommentStats, error) {
			return &models.CommentStats{ContentItemID: itemID}, nil
		},
	}
}

// interactionRepoStub is a stub for repository.InteractionRepository.
type interactionRepoStub struct {
	likeFn   func(context.Context, uint, uint) (bool, error)
	unlikeFn func(context.Context, uint, uint) (bool, error)
	reportFn func(context.Context, uint, uint, models.ReportReason) (*models.ReportOutcome, error)
}

func (s *interactionRepoStub) Like(ctx context.Context, commentID, userID uint) (bool, error) {
	return s.likeFn(ctx, commentID, userID)
}
func (s *interactionRepoStub) Unlike(ctx context.Context, commentID, userID uint) (bool, error) {
	return s.unlikeFn(ctx, commentID, userID)
}
func (s *interactionRepoStub) Report(ctx context.Context, commentID, reporterID uint, reason models.ReportReason) (*models.ReportOutcome, error) {
	return s.reportFn(ctx, commentID, reporterID, reason)
}

func noopInteractionRepo() *interactionRepoStub {
	return &interactionRepoStub{
		likeFn:   func(_ context.Context, _, _ uint) (bool, error) { return true, nil },
		unlikeFn: func(_ context.Context, _, _ uint) (bool, error) { return true, nil },
		reportFn: func(_ context.Context, _, _ uint, _ models.ReportReason) (*models.ReportOutcome, error) {
			return &models.ReportOutcome{Created: true, Count: 1}, nil
		},
	}
}

// sinkStub collects emitted events.
type sinkStub struct {
	mu     sync.Mutex
	events []models.CommentEvent
}

func (s *sinkStub) Emit(event models.CommentEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *sinkStub) all() []models.CommentEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CommentEvent(nil), s.events...)
}

// scoreStub is a fixed-score classifier.
type scoreStub struct {
	score float64
	err   error
}

func (c *scoreStub) Score(_ context.Context, _ string) (float64, error) {
	return c.score, c.err
}

func testConfig() *config.Config {
	return &config.Config{
		MaxTreeDepth:         6,
		ReportHideThreshold:  5,
		EditWindowMinutes:    15,
		MaxBodyLength:        10000,
		ModerationReject:     0.9,
		ModerationFlag:       0.6,
		ClassifierTimeoutMS:  800,
		CacheTTLSeconds:      60,
		CreateLimitPerMinute: 10,
		LikeLimitPerMinute:   60,
		ReportLimitPerMinute: 10,
	}
}

func newTestService(comments *commentRepoStub, interactions *interactionRepoStub, score float64, sink EventSink) *CommentService {
	cfg := testConfig()
	pipeline := moderation.NewPipeline(
		moderation.NewLexicon([]string{"free crypto giveaway"}, []string{"promo code"}),
		&scoreStub{score: score},
		moderation.PipelineConfig{
			RejectScore:       cfg.ModerationReject,
			FlagScore:         cfg.ModerationFlag,
			ClassifierTimeout: cfg.ClassifierTimeout(),
		},
	)
	return NewCommentService(comments, interactions, pipeline, NewRenderer(), sink, nil, cfg)
}

func TestCommentService_CreateComment_Validation(t *testing.T) {
	t.Parallel()

	svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0, nil)
	ctx := context.Background()
	actor := Actor{UserID: 1, Role: models.RoleUser, Trust: models.TrustRegular}

	t.Run("empty body", func(t *testing.T) {
		t.Parallel()
		_, err := svc.CreateComment(ctx, CreateCommentInput{Actor: actor, ContentItemID: 1})
		require.Error(t, err)
		assert.Equal(t, models.CodeInvalidArgument, models.CodeOf(err))
	})

	t.Run("body too long", func(t *testing.T) {
		t.Parallel()
		_, err := svc.CreateComment(ctx, CreateCommentInput{
			Actor: actor, ContentItemID: 1, Body: strings.Repeat("x", 10001),
		})
		require.Error(t, err)
		assert.Equal(t, models.CodeInvalidArgument, models.CodeOf(err))
	})

	t.Run("missing content item", func(t *testing.T) {
		t.Parallel()
		_, err := svc.CreateComment(ctx, CreateCommentInput{Actor: actor, Body: "hello"})
		require.Error(t, err)
		assert.Equal(t, models.CodeInvalidArgument, models.CodeOf(err))
	})
}

func TestCommentService_CreateComment_Moderation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	actor := Actor{UserID: 1, Role: models.RoleUser, Trust: models.TrustRegular}

	t.Run("clean body approved and event emitted", func(t *testing.T) {
		t.Parallel()
		sink := &sinkStub{}
		svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0, sink)

		comment, err := svc.CreateComment(ctx, CreateCommentInput{Actor: actor, ContentItemID: 1, Body: "nice article"})
		require.NoError(t, err)
		assert.Equal(t, models.StatusApproved, comment.Status)
		assert.NotEmpty(t, comment.BodyHTML)

		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventCommentCreated, events[0].Type)
		assert.NotEmpty(t, events[0].ID)
	})

	t.Run("hard lexicon term stored rejected, no event", func(t *testing.T) {
		t.Parallel()
		sink := &sinkStub{}
		svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0, sink)

		comment, err := svc.CreateComment(ctx, CreateCommentInput{Actor: actor, ContentItemID: 1, Body: "FREE CRYPTO GIVEAWAY now"})
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, comment.Status)
		assert.Empty(t, sink.all())
	})

	t.Run("flagged score pends, no event", func(t *testing.T) {
		t.Parallel()
		sink := &sinkStub{}
		svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0.7, sink)

		comment, err := svc.CreateComment(ctx, CreateCommentInput{Actor: actor, ContentItemID: 1, Body: "questionable"})
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, comment.Status)
		assert.Empty(t, sink.all())
	})

	t.Run("reply event carries parent author", func(t *testing.T) {
		t.Parallel()
		sink := &sinkStub{}
		comments := noopCommentRepo()
		comments.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
			return &models.Comment{ID: id, ContentItemID: 1, AuthorID: 7, Status: models.StatusApproved}, nil
		}
		svc := newTestService(comments, noopInteractionRepo(), 0, sink)

		parentID := uint(5)
		_, err := svc.CreateComment(ctx, CreateCommentInput{Actor: actor, ContentItemID: 1, ParentID: &parentID, Body: "replying"})
		require.NoError(t, err)

		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, uint(7), events[0].ParentAuthorID)
	})
}

func TestCommentService_UpdateComment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("non-author denied", func(t *testing.T) {
		t.Parallel()
		comments := noopCommentRepo()
		comments.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
			return &models.Comment{ID: id, AuthorID: 2, Status: models.StatusApproved, CreatedAt: time.Now()}, nil
		}
		svc := newTestService(comments, noopInteractionRepo(), 0, nil)

		_, err := svc.UpdateComment(ctx, UpdateCommentInput{Actor: Actor{UserID: 1, Role: models.RoleUser}, CommentID: 1, Body: "edit"})
		require.Error(t, err)
		assert.Equal(t, models.CodePermissionDenied, models.CodeOf(err))
	})

	t.Run("edit window closed", func(t *testing.T) {
		t.Parallel()
		comments := noopCommentRepo()
		comments.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
			return &models.Comment{ID: id, AuthorID: 1, Status: models.StatusApproved, CreatedAt: time.Now().Add(-time.Hour)}, nil
		}
		svc := newTestService(comments, noopInteractionRepo(), 0, nil)

		_, err := svc.UpdateComment(ctx, UpdateCommentInput{Actor: Actor{UserID: 1, Role: models.RoleUser}, CommentID: 1, Body: "late edit"})
		require.Error(t, err)
		assert.Equal(t, models.CodeConflict, models.CodeOf(err))
	})

	t.Run("moderator edits outside window", func(t *testing.T) {
		t.Parallel()
		comments := noopCommentRepo()
		comments.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
			return &models.Comment{ID: id, AuthorID: 2, ContentItemID: 1, Status: models.StatusApproved, CreatedAt: time.Now().Add(-time.Hour)}, nil
		}
		svc := newTestService(comments, noopInteractionRepo(), 0, nil)

		updated, err := svc.UpdateComment(ctx, UpdateCommentInput{Actor: Actor{UserID: 9, Role: models.RoleModerator}, CommentID: 1, Body: "mod edit"})
		require.NoError(t, err)
		assert.Equal(t, "mod edit", updated.Body)
		assert.NotNil(t, updated.EditedAt)
	})

	t.Run("edit re-moderates body", func(t *testing.T) {
		t.Parallel()
		comments := noopCommentRepo()
		comments.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
			return &models.Comment{ID: id, AuthorID: 1, ContentItemID: 1, Status: models.StatusApproved, CreatedAt: time.Now()}, nil
		}
		svc := newTestService(comments, noopInteractionRepo(), 0, nil)

		updated, err := svc.UpdateComment(ctx, UpdateCommentInput{Actor: Actor{UserID: 1, Role: models.RoleUser}, CommentID: 1, Body: "now a free crypto giveaway"})
		require.NoError(t, err)
		assert.Equal(t, models.StatusRejected, updated.Status)
	})

	t.Run("deleted comment conflicts", func(t *testing.T) {
		t.Parallel()
		comments := noopCommentRepo()
		comments.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
			return &models.Comment{ID: id, AuthorID: 1, Status: models.StatusDeleted}, nil
		}
		svc := newTestService(comments, noopInteractionRepo(), 0, nil)

		_, err := svc.UpdateComment(ctx, UpdateCommentInput{Actor: Actor{UserID: 1, Role: models.RoleUser}, CommentID: 1, Body: "edit"})
		require.Error(t, err)
		assert.Equal(t, models.CodeConflict, models.CodeOf(err))
	})
}

func TestCommentService_DeleteComment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("author deletes and event emitted", func(t *testing.T) {
		t.Parallel()
		sink := &sinkStub{}
		svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0, sink)

		require.NoError(t, svc.DeleteComment(ctx, Actor{UserID: 1, Role: models.RoleUser}, 1))
		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventCommentDeleted, events[0].Type)
	})

	t.Run("stranger denied", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0, nil)

		err := svc.DeleteComment(ctx, Actor{UserID: 99, Role: models.RoleUser}, 1)
		require.Error(t, err)
		assert.Equal(t, models.CodePermissionDenied, models.CodeOf(err))
	})
}

func TestCommentService_GetComment_Visibility(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	withStatus := func(status models.CommentStatus) *commentRepoStub {
		comments := noopCommentRepo()
		comments.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
			return &models.Comment{ID: id, ContentItemID: 1, AuthorID: 5, Body: "secret", Status: status}, nil
		}
		return comments
	}

	t.Run("hidden masked for regular viewer", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(withStatus(models.StatusHidden), noopInteractionRepo(), 0, nil)

		got, err := svc.GetComment(ctx, Actor{UserID: 1, Role: models.RoleUser}, 1)
		require.NoError(t, err)
		assert.Equal(t, "[hidden]", got.Body)
	})

	t.Run("deleted masked for regular viewer", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(withStatus(models.StatusDeleted), noopInteractionRepo(), 0, nil)

		got, err := svc.GetComment(ctx, Actor{UserID: 1, Role: models.RoleUser}, 1)
		require.NoError(t, err)
		assert.Equal(t, "[deleted]", got.Body)
	})

	t.Run("pending invisible to strangers", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(withStatus(models.StatusPending), noopInteractionRepo(), 0, nil)

		_, err := svc.GetComment(ctx, Actor{UserID: 1, Role: models.RoleUser}, 1)
		require.Error(t, err)
		assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
	})

	t.Run("author sees own pending", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(withStatus(models.StatusPending), noopInteractionRepo(), 0, nil)

		got, err := svc.GetComment(ctx, Actor{UserID: 5, Role: models.RoleUser}, 1)
		require.NoError(t, err)
		assert.Equal(t, "secret", got.Body)
	})

	t.Run("moderator sees everything unmasked", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(withStatus(models.StatusHidden), noopInteractionRepo(), 0, nil)

		got, err := svc.GetComment(ctx, Actor{UserID: 1, Role: models.RoleModerator}, 1)
		require.NoError(t, err)
		assert.Equal(t, "secret", got.Body)
	})
}

func TestCommentService_GetTree_MasksStubs(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := uint(1)
	comments := noopCommentRepo()
	comments.fetchThreadFn = func(_ context.Context, _ uint, moderation bool) ([]*models.Comment, error) {
		assert.False(t, moderation)
		return []*models.Comment{
			{ID: 1, ContentItemID: 1, AuthorID: 1, Body: "nasty", Status: models.StatusHidden, CreatedAt: time.Now().Add(-time.Hour)},
			{ID: 2, ContentItemID: 1, AuthorID: 2, ParentID: &root, Body: "reply", Status: models.StatusApproved, CreatedAt: time.Now()},
		}, nil
	}
	svc := newTestService(comments, noopInteractionRepo(), 0, nil)

	tree, err := svc.GetTree(ctx, Actor{UserID: 3, Role: models.RoleUser}, 1, 6, models.SortNewest)
	require.NoError(t, err)
	require.Len(t, tree.Roots, 1)
	assert.Equal(t, "[hidden]", tree.Roots[0].Body)
	require.Len(t, tree.Roots[0].Children, 1)
	assert.Equal(t, "reply", tree.Roots[0].Children[0].Body)
}

func TestCommentService_Like(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	actor := Actor{UserID: 1, Role: models.RoleUser}

	t.Run("first like emits event", func(t *testing.T) {
		t.Parallel()
		sink := &sinkStub{}
		svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0, sink)

		require.NoError(t, svc.LikeComment(ctx, actor, 1))
		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventCommentLiked, events[0].Type)
	})

	t.Run("duplicate like is silent", func(t *testing.T) {
		t.Parallel()
		sink := &sinkStub{}
		interactions := noopInteractionRepo()
		interactions.likeFn = func(_ context.Context, _, _ uint) (bool, error) { return false, nil }
		svc := newTestService(noopCommentRepo(), interactions, 0, sink)

		require.NoError(t, svc.LikeComment(ctx, actor, 1))
		assert.Empty(t, sink.all())
	})
}

func TestCommentService_Report(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	actor := Actor{UserID: 1, Role: models.RoleUser}

	t.Run("invalid reason", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0, nil)

		_, err := svc.ReportComment(ctx, ReportCommentInput{Actor: actor, CommentID: 1, Reason: "bogus"})
		require.Error(t, err)
		assert.Equal(t, models.CodeInvalidArgument, models.CodeOf(err))
	})

	t.Run("threshold transition emits update", func(t *testing.T) {
		t.Parallel()
		sink := &sinkStub{}
		interactions := noopInteractionRepo()
		interactions.reportFn = func(_ context.Context, _, _ uint, _ models.ReportReason) (*models.ReportOutcome, error) {
			return &models.ReportOutcome{Created: true, Count: 5, Hidden: true}, nil
		}
		svc := newTestService(noopCommentRepo(), interactions, 0, sink)

		outcome, err := svc.ReportComment(ctx, ReportCommentInput{Actor: actor, CommentID: 1, Reason: models.ReasonSpam})
		require.NoError(t, err)
		assert.True(t, outcome.Hidden)

		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventCommentUpdated, events[0].Type)
	})

	t.Run("duplicate report emits nothing", func(t *testing.T) {
		t.Parallel()
		sink := &sinkStub{}
		interactions := noopInteractionRepo()
		interactions.reportFn = func(_ context.Context, _, _ uint, _ models.ReportReason) (*models.ReportOutcome, error) {
			return &models.ReportOutcome{Created: false, Count: 3}, nil
		}
		svc := newTestService(noopCommentRepo(), interactions, 0, sink)

		outcome, err := svc.ReportComment(ctx, ReportCommentInput{Actor: actor, CommentID: 1, Reason: models.ReasonSpam})
		require.NoError(t, err)
		assert.False(t, outcome.Created)
		assert.Empty(t, sink.all())
	})
}

func TestCommentService_ModeratorGates(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	user := Actor{UserID: 1, Role: models.RoleUser}
	mod := Actor{UserID: 2, Role: models.RoleModerator}

	t.Run("list pending requires moderator", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0, nil)

		_, err := svc.ListPending(ctx, user, 1, 20)
		require.Error(t, err)
		assert.Equal(t, models.CodePermissionDenied, models.CodeOf(err))

		_, err = svc.ListPending(ctx, mod, 1, 20)
		require.NoError(t, err)
	})

	t.Run("set status requires moderator", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0, nil)

		err := svc.SetStatus(ctx, user, 1, models.StatusApproved)
		require.Error(t, err)
		assert.Equal(t, models.CodePermissionDenied, models.CodeOf(err))
	})

	t.Run("set status validates target status", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(noopCommentRepo(), noopInteractionRepo(), 0, nil)

		err := svc.SetStatus(ctx, mod, 1, models.StatusDeleted)
		require.Error(t, err)
		assert.Equal(t, models.CodeInvalidArgument, models.CodeOf(err))
	})

	t.Run("approving pending emits created event", func(t *testing.T) {
		t.Parallel()
		sink := &sinkStub{}
		comments := noopCommentRepo()
		comments.getByIDFn = func(_ context.Context, id uint) (*models.Comment, error) {
			return &models.Comment{ID: id, ContentItemID: 1, AuthorID: 5, Status: models.StatusPending}, nil
		}
		svc := newTestService(comments, noopInteractionRepo(), 0, sink)

		require.NoError(t, svc.SetStatus(ctx, mod, 1, models.StatusApproved))
		events := sink.all()
		require.Len(t, events, 1)
		assert.Equal(t, models.EventCommentCreated, events[0].Type)
	})
}
