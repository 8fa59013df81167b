// Package service contains the engine orchestrating moderation, storage,
// counters, caching and event fan-out for threaded comments.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"murmur/internal/cache"
	"murmur/internal/config"
	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/moderation"
	"murmur/internal/observability"
	"murmur/internal/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

// Actor identifies the caller of an engine operation. The request layer fills
// it from the verified token; the engine never re-checks credentials.
type Actor struct {
	UserID uint
	Role   models.Role
	Trust  models.TrustLevel
}

// EventSink receives engine events after the owning transaction commits.
// Implementations must not block.
type EventSink interface {
	Emit(event models.CommentEvent)
}

// CommentService is the comment engine. All mutations run in a fixed order:
// rate limit, validation, moderation, persist, then the post-commit side
// effects (cache invalidation and event emission). Side effects after commit
// are best effort and never fail the operation.
type CommentService struct {
	comments     repository.CommentRepository
	interactions repository.InteractionRepository
	pipeline     *moderation.Pipeline
	renderer     *Renderer
	sink         EventSink
	rdb          *redis.Client
	cfg          *config.Config
}

func NewCommentService(
	comments repository.CommentRepository,
	interactions repository.InteractionRepository,
	pipeline *moderation.Pipeline,
	renderer *Renderer,
	sink EventSink,
	rdb *redis.Client,
	cfg *config.Config,
) *CommentService {
	return &CommentService{
		comments:     comments,
		interactions: interactions,
		pipeline:     pipeline,
		renderer:     renderer,
		sink:         sink,
		rdb:          rdb,
		cfg:          cfg,
	}
}

type CreateCommentInput struct {
	Actor         Actor
	ContentItemID uint
	ParentID      *uint
	Body          string
}

type UpdateCommentInput struct {
	Actor     Actor
	CommentID uint
	Body      string
}

type ReportCommentInput struct {
	Actor     Actor
	CommentID uint
	Reason    models.ReportReason
}

// CreateComment moderates and stores a new comment. The returned comment
// carries the status the moderation pipeline assigned; a Pending result is
// not an error.
func (s *CommentService) CreateComment(ctx context.Context, in CreateCommentInput) (*models.Comment, error) {
	span, ctx := observability.NewSpan(ctx, "engine.CreateComment")
	defer span.End()
	defer trackOperation("create")()

	if err := s.checkRateLimit(ctx, "comment_create", in.Actor.UserID, s.cfg.CreateLimitPerMinute); err != nil {
		return nil, err
	}

	body := s.renderer.SanitizeInput(in.Body)
	if body == "" {
		return nil, models.NewInvalidArgumentError("body is required")
	}
	if len(body) > s.cfg.MaxBodyLength {
		return nil, models.NewInvalidArgumentError(fmt.Sprintf("body exceeds %d characters", s.cfg.MaxBodyLength))
	}
	if in.ContentItemID == 0 {
		return nil, models.NewInvalidArgumentError("content item is required")
	}

	decision := s.pipeline.Evaluate(ctx, body, in.Actor.Trust)
	span.AddAttributes(attribute.String("moderation.status", string(decision.Status)))

	var parentAuthor uint
	if in.ParentID != nil {
		parent, err := s.comments.GetByID(ctx, *in.ParentID)
		if err != nil {
			return nil, err
		}
		// A pending parent is invisible to everyone but its author and
		// moderators, so a reply from anyone else reads as not-found.
		if parent.Status == models.StatusPending &&
			parent.AuthorID != in.Actor.UserID && !in.Actor.Role.Moderates() {
			return nil, models.NewNotFoundError("comment", *in.ParentID)
		}
		parentAuthor = parent.AuthorID
	}

	comment := &models.Comment{
		ContentItemID: in.ContentItemID,
		AuthorID:      in.Actor.UserID,
		ParentID:      in.ParentID,
		Body:          body,
		Status:        decision.Status,
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		span.SetError(err)
		return nil, err
	}

	post := context.WithoutCancel(ctx)
	cache.InvalidateContentItem(post, comment.ContentItemID)
	if comment.ParentID != nil {
		cache.InvalidateComment(post, *comment.ParentID)
	}
	if comment.Status == models.StatusApproved {
		s.emit(models.CommentEvent{
			Type:           models.EventCommentCreated,
			ContentItemID:  comment.ContentItemID,
			CommentID:      comment.ID,
			ActorID:        in.Actor.UserID,
			ParentAuthorID: parentAuthor,
			CommentAuthor:  comment.AuthorID,
			Comment:        comment,
		})
	}

	comment.BodyHTML = s.renderer.RenderHTML(comment.Body)
	return comment, nil
}

// UpdateComment edits a comment body. Authors may edit their own comments
// inside the edit window; moderators may edit any time. The new body passes
// through moderation again.
func (s *CommentService) UpdateComment(ctx context.Context, in UpdateCommentInput) (*models.Comment, error) {
	span, ctx := observability.NewSpan(ctx, "engine.UpdateComment")
	defer span.End()
	defer trackOperation("update")()

	comment, err := s.comments.GetByID(ctx, in.CommentID)
	if err != nil {
		return nil, err
	}

	moderates := in.Actor.Role.Moderates()
	if comment.AuthorID != in.Actor.UserID && !moderates {
		return nil, models.NewPermissionDeniedError("you can only edit your own comments")
	}
	switch comment.Status {
	case models.StatusDeleted:
		return nil, models.NewConflictError("comment is deleted")
	case models.StatusRejected:
		if !moderates {
			return nil, models.NewConflictError("comment was rejected")
		}
	}
	if !moderates && time.Since(comment.CreatedAt) > s.cfg.EditWindow() {
		return nil, models.NewConflictError("edit window has closed")
	}

	body := s.renderer.SanitizeInput(in.Body)
	if body == "" {
		return nil, models.NewInvalidArgumentError("body is required")
	}
	if len(body) > s.cfg.MaxBodyLength {
		return nil, models.NewInvalidArgumentError(fmt.Sprintf("body exceeds %d characters", s.cfg.MaxBodyLength))
	}

	decision := s.pipeline.Evaluate(ctx, body, in.Actor.Trust)

	now := time.Now()
	comment.Body = body
	comment.Status = decision.Status
	comment.EditedAt = &now
	if err := s.comments.Update(ctx, comment); err != nil {
		span.SetError(err)
		return nil, err
	}

	post := context.WithoutCancel(ctx)
	cache.InvalidateComment(post, comment.ID)
	cache.InvalidateContentItem(post, comment.ContentItemID)
	if comment.Status == models.StatusApproved {
		s.emit(models.CommentEvent{
			Type:          models.EventCommentUpdated,
			ContentItemID: comment.ContentItemID,
			CommentID:     comment.ID,
			ActorID:       in.Actor.UserID,
			CommentAuthor: comment.AuthorID,
			Comment:       comment,
		})
	}

	comment.BodyHTML = s.renderer.RenderHTML(comment.Body)
	return comment, nil
}

// DeleteComment soft-deletes a comment, leaving a stub so replies stay
// attached. Authors delete their own; moderators delete anything.
func (s *CommentService) DeleteComment(ctx context.Context, actor Actor, commentID uint) error {
	span, ctx := observability.NewSpan(ctx, "engine.DeleteComment")
	defer span.End()
	defer trackOperation("delete")()

	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.AuthorID != actor.UserID && !actor.Role.Moderates() {
		return models.NewPermissionDeniedError("you can only delete your own comments")
	}

	if err := s.comments.SoftDelete(ctx, commentID); err != nil {
		span.SetError(err)
		return err
	}

	post := context.WithoutCancel(ctx)
	cache.InvalidateComment(post, commentID)
	cache.InvalidateContentItem(post, comment.ContentItemID)
	s.emit(models.CommentEvent{
		Type:          models.EventCommentDeleted,
		ContentItemID: comment.ContentItemID,
		CommentID:     commentID,
		ActorID:       actor.UserID,
		CommentAuthor: comment.AuthorID,
	})
	return nil
}

// GetComment returns one comment with visibility applied: non-moderators get
// stubs for hidden and deleted comments, authors see their own pending or
// rejected comments, everyone else gets not-found for those.
func (s *CommentService) GetComment(ctx context.Context, actor Actor, commentID uint) (*models.Comment, error) {
	span, ctx := observability.NewSpan(ctx, "engine.GetComment")
	defer span.End()
	defer trackOperation("get")()

	comment, err := cache.GetOrLoad(ctx, cache.CommentKey(commentID), cache.CommentTTL,
		func(ctx context.Context) (*models.Comment, error) {
			return s.comments.GetByID(ctx, commentID)
		})
	if err != nil {
		return nil, err
	}

	if !actor.Role.Moderates() {
		switch comment.Status {
		case models.StatusPending, models.StatusRejected:
			if comment.AuthorID != actor.UserID {
				return nil, models.NewNotFoundError("comment", commentID)
			}
		case models.StatusHidden, models.StatusDeleted:
			return comment.Stub(), nil
		}
	}

	c := *comment
	c.BodyHTML = s.renderer.RenderHTML(c.Body)
	return &c, nil
}

// GetPage returns a flat page of comments for a content item. The public view
// contains approved comments only; moderators can request the full set.
func (s *CommentService) GetPage(ctx context.Context, actor Actor, itemID uint, q models.CommentQuery) (*models.CommentPage, error) {
	span, ctx := observability.NewSpan(ctx, "engine.GetPage")
	defer span.End()
	defer trackOperation("get_page")()

	q = normalizeQuery(q)
	if !models.ValidSortMode(q.Sort) {
		return nil, models.NewInvalidArgumentError("unknown sort mode")
	}
	q.Moderation = q.Moderation && actor.Role.Moderates()

	aud := cache.AudiencePublic
	if q.Moderation {
		aud = cache.AudienceModerator
	}

	return cache.GetOrLoad(ctx, cache.ItemPageKey(itemID, q.Sort, aud, q.Page, q.PageSize), s.cfg.CacheTTL(),
		func(ctx context.Context) (*models.CommentPage, error) {
			p, err := s.comments.ListByItem(ctx, itemID, q)
			if err != nil {
				return nil, err
			}
			for i := range p.Comments {
				p.Comments[i].BodyHTML = s.renderer.RenderHTML(p.Comments[i].Body)
			}
			return p, nil
		})
}

// GetTree returns the nested comment tree for a content item, bounded at
// depth levels below the roots. Hidden and deleted comments appear as stubs
// so reply structure is preserved.
func (s *CommentService) GetTree(ctx context.Context, actor Actor, itemID uint, depth int, sortMode models.SortMode) (*models.CommentTree, error) {
	span, ctx := observability.NewSpan(ctx, "engine.GetTree")
	defer span.End()
	defer trackOperation("get_tree")()

	if sortMode == "" {
		sortMode = models.SortNewest
	}
	if !models.ValidSortMode(sortMode) {
		return nil, models.NewInvalidArgumentError("unknown sort mode")
	}
	if depth < 1 || depth > s.cfg.MaxTreeDepth {
		depth = s.cfg.MaxTreeDepth
	}

	moderates := actor.Role.Moderates()
	aud := cache.AudiencePublic
	if moderates {
		aud = cache.AudienceModerator
	}

	return cache.GetOrLoad(ctx, cache.ItemTreeKey(itemID, depth, sortMode, aud), s.cfg.CacheTTL(),
		func(ctx context.Context) (*models.CommentTree, error) {
			comments, err := s.comments.FetchThread(ctx, itemID, moderates)
			if err != nil {
				return nil, err
			}
			for i, c := range comments {
				if moderates {
					comments[i].BodyHTML = s.renderer.RenderHTML(c.Body)
					continue
				}
				comments[i] = c.Stub()
				// Stub placeholders carry no HTML projection.
				switch c.Status {
				case models.StatusHidden, models.StatusDeleted:
				default:
					comments[i].BodyHTML = s.renderer.RenderHTML(comments[i].Body)
				}
			}
			return buildTree(comments, itemID, depth, sortMode, time.Now()), nil
		})
}

// LikeComment records a like. Repeat likes by the same user are absorbed
// without error and without a second event.
func (s *CommentService) LikeComment(ctx context.Context, actor Actor, commentID uint) error {
	span, ctx := observability.NewSpan(ctx, "engine.LikeComment")
	defer span.End()
	defer trackOperation("like")()

	if err := s.checkRateLimit(ctx, "comment_like", actor.UserID, s.cfg.LikeLimitPerMinute); err != nil {
		return err
	}

	created, err := s.interactions.Like(ctx, commentID, actor.UserID)
	if err != nil {
		span.SetError(err)
		return err
	}
	if !created {
		return nil
	}

	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}

	post := context.WithoutCancel(ctx)
	cache.InvalidateComment(post, commentID)
	cache.InvalidateContentItem(post, comment.ContentItemID)
	s.emit(models.CommentEvent{
		Type:          models.EventCommentLiked,
		ContentItemID: comment.ContentItemID,
		CommentID:     commentID,
		ActorID:       actor.UserID,
		CommentAuthor: comment.AuthorID,
	})
	return nil
}

// UnlikeComment removes a like. Removing an absent like is a no-op.
func (s *CommentService) UnlikeComment(ctx context.Context, actor Actor, commentID uint) error {
	span, ctx := observability.NewSpan(ctx, "engine.UnlikeComment")
	defer span.End()
	defer trackOperation("unlike")()

	removed, err := s.interactions.Unlike(ctx, commentID, actor.UserID)
	if err != nil {
		span.SetError(err)
		return err
	}
	if !removed {
		return nil
	}

	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}

	post := context.WithoutCancel(ctx)
	cache.InvalidateComment(post, commentID)
	cache.InvalidateContentItem(post, comment.ContentItemID)
	s.emit(models.CommentEvent{
		Type:          models.EventCommentUnliked,
		ContentItemID: comment.ContentItemID,
		CommentID:     commentID,
		ActorID:       actor.UserID,
		CommentAuthor: comment.AuthorID,
	})
	return nil
}

// ReportComment records a report. Distinct reporters accumulate; reaching the
// configured threshold hides the comment exactly once.
func (s *CommentService) ReportComment(ctx context.Context, in ReportCommentInput) (*models.ReportOutcome, error) {
	span, ctx := observability.NewSpan(ctx, "engine.ReportComment")
	defer span.End()
	defer trackOperation("report")()

	if !models.ValidReportReason(in.Reason) {
		return nil, models.NewInvalidArgumentError("unknown report reason")
	}
	if err := s.checkRateLimit(ctx, "comment_report", in.Actor.UserID, s.cfg.ReportLimitPerMinute); err != nil {
		return nil, err
	}

	outcome, err := s.interactions.Report(ctx, in.CommentID, in.Actor.UserID, in.Reason)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	if !outcome.Created {
		return outcome, nil
	}

	// Report counts feed cached page and tree projections, so every created
	// report sweeps the item keys, not just the one that crosses the threshold.
	post := context.WithoutCancel(ctx)
	cache.InvalidateComment(post, in.CommentID)
	if comment, gerr := s.comments.GetByID(ctx, in.CommentID); gerr == nil {
		cache.InvalidateContentItem(post, comment.ContentItemID)
		if outcome.Hidden {
			s.emit(models.CommentEvent{
				Type:          models.EventCommentUpdated,
				ContentItemID: comment.ContentItemID,
				CommentID:     in.CommentID,
				ActorID:       in.Actor.UserID,
				CommentAuthor: comment.AuthorID,
			})
		}
	}
	return outcome, nil
}

// Stats returns aggregate counters for a content item, combining stored
// counts with the live view counter.
func (s *CommentService) Stats(ctx context.Context, itemID uint) (*models.CommentStats, error) {
	span, ctx := observability.NewSpan(ctx, "engine.Stats")
	defer span.End()
	defer trackOperation("stats")()

	stats, err := cache.GetOrLoad(ctx, cache.ItemStatsKey(itemID), s.cfg.CacheTTL(),
		func(ctx context.Context) (*models.CommentStats, error) {
			return s.comments.Stats(ctx, itemID)
		})
	if err != nil {
		return nil, err
	}

	// View counts live outside the projection cache and are read fresh.
	out := *stats
	out.Views = cache.Views(ctx, itemID)
	return &out, nil
}

// RecordView bumps the view counter for a content item. Best effort.
func (s *CommentService) RecordView(ctx context.Context, itemID uint) {
	cache.IncrViews(ctx, itemID)
}

// ListPending returns the moderation queue, oldest first.
func (s *CommentService) ListPending(ctx context.Context, actor Actor, page, size int) (*models.CommentPage, error) {
	span, ctx := observability.NewSpan(ctx, "engine.ListPending")
	defer span.End()
	defer trackOperation("list_pending")()

	if !actor.Role.Moderates() {
		return nil, models.NewPermissionDeniedError("moderator role required")
	}
	return s.comments.ListPending(ctx, clampPage(page), clampSize(size))
}

// SetStatus applies a moderator verdict to a comment. Approving a pending
// comment emits a created event so subscribers first learn about the comment
// when it becomes visible.
func (s *CommentService) SetStatus(ctx context.Context, actor Actor, commentID uint, status models.CommentStatus) error {
	span, ctx := observability.NewSpan(ctx, "engine.SetStatus")
	defer span.End()
	defer trackOperation("set_status")()

	if !actor.Role.Moderates() {
		return models.NewPermissionDeniedError("moderator role required")
	}
	switch status {
	case models.StatusApproved, models.StatusRejected, models.StatusHidden:
	default:
		return models.NewInvalidArgumentError("status must be approved, rejected or hidden")
	}

	comment, err := s.comments.GetByID(ctx, commentID)
	if err != nil {
		return err
	}
	if comment.Status == models.StatusDeleted {
		return models.NewConflictError("comment is deleted")
	}

	if err := s.comments.SetStatus(ctx, commentID, status); err != nil {
		span.SetError(err)
		return err
	}

	post := context.WithoutCancel(ctx)
	cache.InvalidateComment(post, commentID)
	cache.InvalidateContentItem(post, comment.ContentItemID)
	if status == models.StatusApproved && comment.Status != models.StatusApproved {
		comment.Status = status
		s.emit(models.CommentEvent{
			Type:          models.EventCommentCreated,
			ContentItemID: comment.ContentItemID,
			CommentID:     commentID,
			ActorID:       actor.UserID,
			CommentAuthor: comment.AuthorID,
			Comment:       comment,
		})
	}
	return nil
}

func (s *CommentService) checkRateLimit(ctx context.Context, resource string, userID uint, limit int) error {
	allowed, err := middleware.CheckRateLimit(ctx, s.rdb, resource, fmt.Sprintf("%d", userID), limit, time.Minute)
	if err != nil {
		// Limiter backend trouble must not take writes down with it.
		slog.WarnContext(ctx, "rate limiter unavailable, allowing request",
			slog.String("resource", resource), slog.Any("error", err))
		return nil
	}
	if !allowed {
		return models.NewRateLimitedError(fmt.Sprintf("too many %s requests", resource))
	}
	return nil
}

func (s *CommentService) emit(event models.CommentEvent) {
	if s.sink == nil {
		return
	}
	event.ID = uuid.NewString()
	event.OccurredAt = time.Now()
	s.sink.Emit(event)
}

func trackOperation(operation string) func() {
	start := time.Now()
	return func() {
		observability.EngineOperationLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func normalizeQuery(q models.CommentQuery) models.CommentQuery {
	q.Page = clampPage(q.Page)
	q.PageSize = clampSize(q.PageSize)
	if q.Sort == "" {
		q.Sort = models.SortNewest
	}
	return q
}

func clampPage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func clampSize(size int) int {
	if size < 1 {
		return 20
	}
	if size > 100 {
		return 100
	}
	return size
}
