package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/utils"
)

const (
	DefaultPageLimit = 10
	MaxPageLimit     = 100
	maxPostTitle     = 255
	maxPostContent   = 20000
)

// Page selects one page of a feed. Pages are 1-based. Snapshot pins the feed to posts
// created at or before it; the zero value means now.
type Page struct {
	Page     int
	Limit    int
	Snapshot time.Time
}

// Normalize applies the defaults and bounds. now is used when no snapshot is set.
func (p Page) Normalize(now time.Time) Page {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	if p.Snapshot.IsZero() {
		p.Snapshot = now
	}
	p.Snapshot = p.Snapshot.UTC().Truncate(time.Millisecond)
	return p
}

// PostInput is a root post or reply submission. Username is the display name, defaulting
// to the account username.
type PostInput struct {
	BoardID  string
	Username string
	Title    string
	Content  string
	Image    *string
}

// VoteResult is the caller's vote state after a vote operation and the post's tallies.
type VoteResult struct {
	Direction     string
	UpvoteCount   int64
	DownvoteCount int64
}

type PostService struct {
	db     *gorm.DB
	clean  *utils.Sanitizer
	policy Policy
	log    *zap.Logger
	now    func() time.Time
}

func NewPostService(db *gorm.DB, clean *utils.Sanitizer, policy Policy, log *zap.Logger) *PostService {
	return &PostService{db: db, clean: clean, policy: policy, log: log, now: time.Now}
}

func (s *PostService) WithClock(now func() time.Time) *PostService {
	s.now = now
	return s
}

// Create adds a root post to a board.
func (s *PostService) Create(ctx context.Context, authorID string, in PostInput) (*models.Post, error) {
	post, err := s.prepare(ctx, authorID, in, true)
	if err != nil {
		return nil, err
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Board{}).Where("id = ?", in.BoardID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("check board: %w", err)
	}
	if n == 0 {
		return nil, ErrBoardNotFound
	}
	post.BoardID = in.BoardID
	post.Path = models.RootPath
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(post).Error; err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.log.Info("post created", zap.String("post_id", post.ID), zap.String("board_id", post.BoardID))
	return s.load(ctx, s.db, post.ID)
}

// Reply answers parentID. The reply inherits the parent's board, its path extends the
// parent's, and the parent's comment count moves in the same transaction.
func (s *PostService) Reply(ctx context.Context, authorID, parentID string, in PostInput) (*models.Post, error) {
	post, err := s.prepare(ctx, authorID, in, false)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var parent models.Post
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&parent, "id = ?", parentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrParentNotFound
			}
			return err
		}
		post.BoardID = parent.BoardID
		post.ParentPostID = &parent.ID
		post.Path = parent.ChildPath()
		if err := tx.Omit(clause.Associations).Create(post).Error; err != nil {
			return err
		}
		return tx.Model(&models.Post{}).Where("id = ?", parent.ID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + ?", 1)).Error
	})
	if err != nil {
		var de *Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, fmt.Errorf("create reply: %w", err)
	}
	return s.load(ctx, s.db, post.ID)
}

// GetByID returns a post and counts the view.
func (s *PostService) GetByID(ctx context.Context, postID string) (*models.Post, error) {
	res := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn("view_count", gorm.Expr("view_count + ?", 1))
	if res.Error != nil {
		return nil, fmt.Errorf("count view: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrPostNotFound
	}
	return s.load(ctx, s.db, postID)
}

// GetReplies returns the direct replies in thread order.
func (s *PostService) GetReplies(ctx context.Context, postID string) ([]models.Post, error) {
	if err := s.exists(ctx, postID); err != nil {
		return nil, err
	}
	posts := []models.Post{}
	err := s.withAssociations(s.db.WithContext(ctx)).Where("parent_post = ?", postID).
		Order("created_at ASC, id ASC").Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list replies: %w", err)
	}
	return posts, nil
}

// Descendants returns every post below postID in the thread, in creation order.
func (s *PostService) Descendants(ctx context.Context, postID string) ([]models.Post, error) {
	if err := s.exists(ctx, postID); err != nil {
		return nil, err
	}
	posts := []models.Post{}
	err := s.withAssociations(s.db.WithContext(ctx)).Where("path LIKE ?", "%,"+postID+",%").
		Order("created_at ASC, id ASC").Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list descendants: %w", err)
	}
	return posts, nil
}

// Vote sets the caller's vote on a post. Repeating the current direction changes
// nothing; switching moves one count from the old tally to the new one.
func (s *PostService) Vote(ctx context.Context, userID, postID, direction string) (*VoteResult, error) {
	if direction != models.VoteUp && direction != models.VoteDown {
		return nil, Invalid("direction must be up or down")
	}
	return s.voteTx(ctx, postID, func(tx *gorm.DB, post *models.Post) (string, error) {
		var v models.Vote
		err := tx.Where("user_id = ? AND post_id = ?", userID, postID).Take(&v).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&models.Vote{UserID: userID, PostID: postID, Direction: direction}).Error; err != nil {
				return "", err
			}
			return direction, bumpVotes(tx, postID, direction, 1)
		case err != nil:
			return "", err
		case v.Direction == direction:
			return direction, nil
		}
		if err := tx.Model(&models.Vote{}).Where("user_id = ? AND post_id = ?", userID, postID).
			Update("direction", direction).Error; err != nil {
			return "", err
		}
		if err := bumpVotes(tx, postID, v.Direction, -1); err != nil {
			return "", err
		}
		return direction, bumpVotes(tx, postID, direction, 1)
	})
}

// Unvote removes the caller's vote, if any.
func (s *PostService) Unvote(ctx context.Context, userID, postID string) (*VoteResult, error) {
	return s.voteTx(ctx, postID, func(tx *gorm.DB, post *models.Post) (string, error) {
		var v models.Vote
		err := tx.Where("user_id = ? AND post_id = ?", userID, postID).Take(&v).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		if err != nil {
			return "", err
		}
		if err := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&models.Vote{}).Error; err != nil {
			return "", err
		}
		return "", bumpVotes(tx, postID, v.Direction, -1)
	})
}

// voteTx runs fn with the post row locked and reports the tallies afterwards.
func (s *PostService) voteTx(ctx context.Context, postID string, fn func(tx *gorm.DB, post *models.Post) (string, error)) (*VoteResult, error) {
	var result VoteResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var post models.Post
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id").First(&post, "id = ?", postID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPostNotFound
			}
			return err
		}
		dir, err := fn(tx, &post)
		if err != nil {
			return err
		}
		var counts models.Post
		if err := tx.Select("upvote_count", "downvote_count").First(&counts, "id = ?", postID).Error; err != nil {
			return err
		}
		result = VoteResult{Direction: dir, UpvoteCount: counts.UpvoteCount, DownvoteCount: counts.DownvoteCount}
		return nil
	})
	if err != nil {
		var de *Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, fmt.Errorf("vote: %w", err)
	}
	return &result, nil
}

func bumpVotes(tx *gorm.DB, postID, direction string, delta int) error {
	col := "upvote_count"
	if direction == models.VoteDown {
		col = "downvote_count"
	}
	return tx.Model(&models.Post{}).Where("id = ?", postID).
		UpdateColumn(col, gorm.Expr(col+" + ?", delta)).Error
}

// ToggleBookmark flips the bookmark state and returns the new one.
func (s *PostService) ToggleBookmark(ctx context.Context, userID, postID string) (bool, error) {
	if err := s.exists(ctx, postID); err != nil {
		return false, err
	}
	mark := models.Bookmark{UserID: userID, PostID: postID}
	on, err := toggle(ctx, s.db, &mark, "user_id = ? AND post_id = ?", userID, postID)
	if err != nil {
		return false, fmt.Errorf("toggle bookmark: %w", err)
	}
	return on, nil
}

func (s *PostService) IsBookmarked(ctx context.Context, userID, postID string) (bool, error) {
	if err := s.exists(ctx, postID); err != nil {
		return false, err
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Bookmark{}).
		Where("user_id = ? AND post_id = ?", userID, postID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check bookmark: %w", err)
	}
	return n > 0, nil
}

// Bookmarks returns the caller's bookmarked posts, most recently bookmarked first.
func (s *PostService) Bookmarks(ctx context.Context, userID string) ([]models.Post, error) {
	posts := []models.Post{}
	err := s.withAssociations(s.db.WithContext(ctx)).
		Joins("JOIN bookmarks ON bookmarks.post_id = posts.id AND bookmarks.user_id = ?", userID).
		Order("bookmarks.created_at DESC, posts.id DESC").Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	return posts, nil
}

// FeedForYou pages through every root post.
func (s *PostService) FeedForYou(ctx context.Context, p Page) ([]models.Post, Page, error) {
	return s.feed(ctx, p, func(q *gorm.DB) *gorm.DB { return q })
}

// FeedFollowing pages through root posts of the boards the user follows.
func (s *PostService) FeedFollowing(ctx context.Context, userID string, p Page) ([]models.Post, Page, error) {
	return s.feed(ctx, p, func(q *gorm.DB) *gorm.DB {
		return q.Where("posts.board_id IN (?)",
			s.db.Model(&models.BoardFollow{}).Select("board_id").Where("user_id = ?", userID))
	})
}

// PostsByBoard pages through root posts of one board.
func (s *PostService) PostsByBoard(ctx context.Context, boardID string, p Page) ([]models.Post, Page, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Board{}).Where("id = ?", boardID).Count(&n).Error; err != nil {
		return nil, p, fmt.Errorf("check board: %w", err)
	}
	if n == 0 {
		return nil, p, ErrBoardNotFound
	}
	return s.feed(ctx, p, func(q *gorm.DB) *gorm.DB { return q.Where("posts.board_id = ?", boardID) })
}

// feed orders by creation time then id, both descending, so pages taken against the
// same snapshot are disjoint and leave no gaps.
func (s *PostService) feed(ctx context.Context, p Page, scope func(*gorm.DB) *gorm.DB) ([]models.Post, Page, error) {
	p = p.Normalize(s.now())
	posts := []models.Post{}
	q := s.withAssociations(s.db.WithContext(ctx)).Model(&models.Post{}).
		Where("posts.parent_post IS NULL AND posts.created_at <= ?", p.Snapshot)
	err := scope(q).
		Order("posts.created_at DESC, posts.id DESC").
		Offset((p.Page - 1) * p.Limit).Limit(p.Limit).
		Find(&posts).Error
	if err != nil {
		return nil, p, fmt.Errorf("load feed: %w", err)
	}
	return posts, p, nil
}

// PostsByUser returns the user's root posts, newest first.
func (s *PostService) PostsByUser(ctx context.Context, userID string) ([]models.Post, error) {
	return s.byUser(ctx, "posts.user_id = ? AND posts.parent_post IS NULL", userID)
}

// RepliesByUser returns the user's replies, newest first.
func (s *PostService) RepliesByUser(ctx context.Context, userID string) ([]models.Post, error) {
	return s.byUser(ctx, "posts.user_id = ? AND posts.parent_post IS NOT NULL", userID)
}

func (s *PostService) UpvotedByUser(ctx context.Context, userID string) ([]models.Post, error) {
	return s.votedBy(ctx, userID, models.VoteUp)
}

func (s *PostService) DownvotedByUser(ctx context.Context, userID string) ([]models.Post, error) {
	return s.votedBy(ctx, userID, models.VoteDown)
}

func (s *PostService) byUser(ctx context.Context, where, userID string) ([]models.Post, error) {
	posts := []models.Post{}
	if err := s.withAssociations(s.db.WithContext(ctx)).Where(where, userID).
		Order("posts.created_at DESC, posts.id DESC").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("list user posts: %w", err)
	}
	return posts, nil
}

func (s *PostService) votedBy(ctx context.Context, userID, direction string) ([]models.Post, error) {
	posts := []models.Post{}
	err := s.withAssociations(s.db.WithContext(ctx)).
		Joins("JOIN votes ON votes.post_id = posts.id AND votes.user_id = ? AND votes.direction = ?", userID, direction).
		Order("votes.updated_at DESC, posts.id DESC").Find(&posts).Error
	if err != nil {
		return nil, fmt.Errorf("list voted posts: %w", err)
	}
	return posts, nil
}

// prepare validates and cleans a submission and resolves the display username.
func (s *PostService) prepare(ctx context.Context, authorID string, in PostInput, root bool) (*models.Post, error) {
	var author models.User
	if err := s.db.WithContext(ctx).Select("id", "username").First(&author, "id = ?", authorID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load author: %w", err)
	}
	title := s.clean.Text(in.Title)
	content := s.clean.Text(in.Content)
	switch {
	case root && title == "":
		return nil, Invalid("title is required")
	case content == "":
		return nil, Invalid("content is required")
	case runeLen(title) > maxPostTitle:
		return nil, Invalid(fmt.Sprintf("title must be at most %d characters", maxPostTitle))
	case runeLen(content) > maxPostContent:
		return nil, Invalid(fmt.Sprintf("content must be at most %d characters", maxPostContent))
	}
	display := strings.TrimSpace(in.Username)
	if display == "" {
		display = author.Username
	}
	if !s.policy.UsernameValid(display) {
		return nil, ErrInvalidUsername
	}
	return &models.Post{
		Title:    title,
		Content:  content,
		UserID:   author.ID,
		Username: display,
		Image:    in.Image,
	}, nil
}

func (s *PostService) withAssociations(q *gorm.DB) *gorm.DB {
	return q.Preload("User").Preload("Board.User")
}

func (s *PostService) load(ctx context.Context, db *gorm.DB, postID string) (*models.Post, error) {
	var post models.Post
	if err := s.withAssociations(db.WithContext(ctx)).First(&post, "id = ?", postID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("load post: %w", err)
	}
	return &post, nil
}

func (s *PostService) exists(ctx context.Context, postID string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return fmt.Errorf("check post: %w", err)
	}
	if n == 0 {
		return ErrPostNotFound
	}
	return nil
}
