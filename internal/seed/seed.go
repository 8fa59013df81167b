// Package seed provides helpers to create demo comment threads for the
// application database. These helpers are intended for development and
// testing only.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"time"

	"murmur/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"gorm.io/gorm"
)

// Options controls the shape of the generated dataset.
type Options struct {
	Items        int // distinct content items to comment on
	RootsPerItem int // root comments per item
	MaxReplies   int // max replies under any comment
	MaxDepth     int // deepest reply level to generate
	Users        int // size of the synthetic author pool
	MaxDays      int // spread of created_at timestamps into the past
}

// DefaultOptions returns a dataset shape that exercises every read path:
// multi-level threads, collapsed branches, pending and hidden rows.
func DefaultOptions() Options {
	return Options{
		Items:        5,
		RootsPerItem: 8,
		MaxReplies:   4,
		MaxDepth:     4,
		Users:        25,
		MaxDays:      30,
	}
}

// Seeder populates the database with threaded comment data.
type Seeder struct {
	db   *gorm.DB
	opts Options
	rng  *rand.Rand
}

func NewSeeder(db *gorm.DB, opts Options) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:   db,
		opts: opts,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClearAll removes all comment engine data. Order matters for foreign keys.
func (s *Seeder) ClearAll() error {
	for _, model := range []any{
		&models.Notification{},
		&models.CommentReport{},
		&models.CommentLike{},
		&models.Comment{},
	} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("clear %T: %w", model, err)
		}
	}
	return nil
}

// Run generates threads for every item and backfills likes and reports so the
// stored counters match the interaction rows.
func (s *Seeder) Run() error {
	total := 0
	for item := 1; item <= s.opts.Items; item++ {
		n, err := s.seedItem(uint(item))
		if err != nil {
			return err
		}
		total += n
		log.Printf("seeded item %d with %d comments", item, n)
	}
	log.Printf("seeded %d comments across %d items", total, s.opts.Items)
	return nil
}

func (s *Seeder) seedItem(itemID uint) (int, error) {
	count := 0
	for i := 0; i < s.opts.RootsPerItem; i++ {
		root, err := s.createComment(itemID, nil)
		if err != nil {
			return count, err
		}
		count++

		n, err := s.seedReplies(root, 1)
		if err != nil {
			return count, err
		}
		count += n
	}
	return count, nil
}

func (s *Seeder) seedReplies(parent *models.Comment, depth int) (int, error) {
	if depth > s.opts.MaxDepth {
		return 0, nil
	}
	count := 0
	for i := 0; i < s.rng.Intn(s.opts.MaxReplies+1); i++ {
		reply, err := s.createComment(parent.ContentItemID, &parent.ID)
		if err != nil {
			return count, err
		}
		count++

		n, err := s.seedReplies(reply, depth+1)
		if err != nil {
			return count, err
		}
		count += n
	}
	if count > 0 {
		err := s.db.Model(&models.Comment{}).Where("id = ?", parent.ID).
			Update("reply_count", gorm.Expr("reply_count + ?", count)).Error
		if err != nil {
			return count, err
		}
	}
	return count, nil
}

func (s *Seeder) createComment(itemID uint, parentID *uint) (*models.Comment, error) {
	comment := &models.Comment{
		ContentItemID: itemID,
		AuthorID:      uint(s.rng.Intn(s.opts.Users) + 1),
		ParentID:      parentID,
		Body:          gofakeit.Paragraph(1, s.rng.Intn(3)+1, s.rng.Intn(12)+3, " "),
		Status:        s.pickStatus(),
		CreatedAt:     s.pastTimestamp(),
	}
	if err := s.db.Create(comment).Error; err != nil {
		return nil, fmt.Errorf("create comment: %w", err)
	}

	if comment.Status == models.StatusApproved {
		if err := s.addLikes(comment); err != nil {
			return nil, err
		}
	}
	return comment, nil
}

// pickStatus weights statuses so most content is public but every status
// appears in listings.
func (s *Seeder) pickStatus() models.CommentStatus {
	switch n := s.rng.Intn(100); {
	case n < 80:
		return models.StatusApproved
	case n < 88:
		return models.StatusPending
	case n < 93:
		return models.StatusRejected
	case n < 97:
		return models.StatusHidden
	default:
		return models.StatusDeleted
	}
}

func (s *Seeder) addLikes(comment *models.Comment) error {
	likes := s.rng.Intn(6)
	for i := 0; i < likes; i++ {
		// Distinct likers; collisions with the author are fine.
		like := &models.CommentLike{
			CommentID: comment.ID,
			UserID:    uint(s.opts.Users + i + 1),
		}
		if err := s.db.Create(like).Error; err != nil {
			return fmt.Errorf("create like: %w", err)
		}
	}
	if likes > 0 {
		err := s.db.Model(&models.Comment{}).Where("id = ?", comment.ID).
			Update("like_count", likes).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Seeder) pastTimestamp() time.Time {
	maxDays := s.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	back := time.Duration(s.rng.Intn(maxDays*24*60)) * time.Minute
	return time.Now().Add(-back)
}
