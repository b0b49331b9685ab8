package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/utils"
)

const (
	boardCachePrefix   = "boards:"
	boardListCacheKey  = boardCachePrefix + "list"
	boardDetailPrefix  = boardCachePrefix + "detail:"
	maxBoardTitle      = 80
	maxBoardDesc       = 500
	maxSystemImageName = 64
)

// BoardInput carries the editable board fields. On update, empty fields keep their
// current value.
type BoardInput struct {
	Title           string
	Description     string
	SymbolColor     string
	SystemImageName string
}

type BoardService struct {
	db    *gorm.DB
	cache *utils.Cache
	clean *utils.Sanitizer
	log   *zap.Logger
}

func NewBoardService(db *gorm.DB, cache *utils.Cache, clean *utils.Sanitizer, log *zap.Logger) *BoardService {
	return &BoardService{db: db, cache: cache, clean: clean, log: log}
}

// AuthorizeBoardManager is the single authorization check for board mutation. The role
// is read from the store.
func AuthorizeBoardManager(ctx context.Context, db *gorm.DB, userID string) error {
	var user models.User
	if err := db.WithContext(ctx).Select("id", "role").First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrForbidden
		}
		return fmt.Errorf("load role: %w", err)
	}
	if !models.CanManageBoards(user.Role) {
		return ErrForbidden
	}
	return nil
}

func (s *BoardService) Create(ctx context.Context, actorID string, in BoardInput) (*models.Board, error) {
	if err := AuthorizeBoardManager(ctx, s.db, actorID); err != nil {
		return nil, err
	}
	board := models.Board{UserID: &actorID}
	s.apply(&board, in)
	if err := validateBoard(&board); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Create(&board).Error; err != nil {
		return nil, fmt.Errorf("create board: %w", err)
	}
	s.cache.InvalidateByPrefix(ctx, boardCachePrefix)
	s.log.Info("board created", zap.String("board_id", board.ID), zap.String("user_id", actorID))
	return s.load(ctx, board.ID)
}

func (s *BoardService) Update(ctx context.Context, actorID, boardID string, in BoardInput) (*models.Board, error) {
	if err := AuthorizeBoardManager(ctx, s.db, actorID); err != nil {
		return nil, err
	}
	board, err := s.load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	s.apply(board, in)
	if err := validateBoard(board); err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&models.Board{}).Where("id = ?", boardID).Updates(map[string]interface{}{
		"title":             board.Title,
		"description":       board.Description,
		"symbol_color":      board.SymbolColor,
		"system_image_name": board.SystemImageName,
	}).Error; err != nil {
		return nil, fmt.Errorf("update board: %w", err)
	}
	s.cache.InvalidateByPrefix(ctx, boardCachePrefix)
	s.log.Info("board updated", zap.String("board_id", boardID), zap.String("user_id", actorID))
	return s.load(ctx, boardID)
}

func (s *BoardService) Get(ctx context.Context, boardID string) (*models.Board, error) {
	var cached models.Board
	if s.cache.GetJSON(ctx, boardDetailPrefix+boardID, &cached) {
		return &cached, nil
	}
	board, err := s.load(ctx, boardID)
	if err != nil {
		return nil, err
	}
	s.cache.SetJSON(ctx, boardDetailPrefix+boardID, board, 0)
	return board, nil
}

// List returns every board, oldest first.
func (s *BoardService) List(ctx context.Context) ([]models.Board, error) {
	boards := []models.Board{}
	if s.cache.GetJSON(ctx, boardListCacheKey, &boards) {
		return boards, nil
	}
	if err := s.db.WithContext(ctx).Preload("User").Order("created_at ASC, id ASC").Find(&boards).Error; err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	s.cache.SetJSON(ctx, boardListCacheKey, boards, 0)
	return boards, nil
}

// ListMine returns the boards the user created.
func (s *BoardService) ListMine(ctx context.Context, userID string) ([]models.Board, error) {
	boards := []models.Board{}
	if err := s.db.WithContext(ctx).Preload("User").Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").Find(&boards).Error; err != nil {
		return nil, fmt.Errorf("list my boards: %w", err)
	}
	return boards, nil
}

// ListFollowed returns the boards the user follows, most recently followed first.
func (s *BoardService) ListFollowed(ctx context.Context, userID string) ([]models.Board, error) {
	boards := []models.Board{}
	if err := s.db.WithContext(ctx).Preload("User").
		Joins("JOIN board_follows ON board_follows.board_id = boards.id AND board_follows.user_id = ?", userID).
		Order("board_follows.created_at DESC, boards.id ASC").Find(&boards).Error; err != nil {
		return nil, fmt.Errorf("list followed boards: %w", err)
	}
	return boards, nil
}

// ToggleFollow flips the follow state and returns the new one.
func (s *BoardService) ToggleFollow(ctx context.Context, userID, boardID string) (bool, error) {
	if err := s.exists(ctx, boardID); err != nil {
		return false, err
	}
	follow := models.BoardFollow{UserID: userID, BoardID: boardID}
	followed, err := toggle(ctx, s.db, &follow, "user_id = ? AND board_id = ?", userID, boardID)
	if err != nil {
		return false, fmt.Errorf("toggle follow: %w", err)
	}
	return followed, nil
}

func (s *BoardService) IsFollowed(ctx context.Context, userID, boardID string) (bool, error) {
	if err := s.exists(ctx, boardID); err != nil {
		return false, err
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.BoardFollow{}).
		Where("user_id = ? AND board_id = ?", userID, boardID).Count(&n).Error; err != nil {
		return false, fmt.Errorf("check follow: %w", err)
	}
	return n > 0, nil
}

func (s *BoardService) apply(b *models.Board, in BoardInput) {
	if v := s.clean.Text(in.Title); v != "" {
		b.Title = v
	}
	if v := s.clean.Text(in.Description); v != "" {
		b.Description = v
	}
	if v := strings.TrimSpace(in.SymbolColor); v != "" {
		b.SymbolColor = strings.ToUpper(v)
	}
	if v := strings.TrimSpace(in.SystemImageName); v != "" {
		b.SystemImageName = v
	}
}

func validateBoard(b *models.Board) error {
	switch {
	case b.Title == "" || b.Description == "":
		return Invalid("title and description are required")
	case runeLen(b.Title) > maxBoardTitle:
		return Invalid(fmt.Sprintf("title must be at most %d characters", maxBoardTitle))
	case runeLen(b.Description) > maxBoardDesc:
		return Invalid(fmt.Sprintf("description must be at most %d characters", maxBoardDesc))
	case !ValidColor(b.SymbolColor):
		return Invalid("symbolColor must be #RRGGBB")
	case b.SystemImageName == "" || runeLen(b.SystemImageName) > maxSystemImageName:
		return Invalid(fmt.Sprintf("systemImageName must be 1-%d characters", maxSystemImageName))
	}
	return nil
}

func (s *BoardService) load(ctx context.Context, boardID string) (*models.Board, error) {
	var board models.Board
	if err := s.db.WithContext(ctx).Preload("User").First(&board, "id = ?", boardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBoardNotFound
		}
		return nil, fmt.Errorf("load board: %w", err)
	}
	return &board, nil
}

func (s *BoardService) exists(ctx context.Context, boardID string) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Board{}).Where("id = ?", boardID).Count(&n).Error; err != nil {
		return fmt.Errorf("check board: %w", err)
	}
	if n == 0 {
		return ErrBoardNotFound
	}
	return nil
}

// toggle deletes the row matching where, or inserts row when nothing was deleted. If a
// concurrent toggle inserted the same key first, the insert is a no-op and the pair of
// toggles cancels out, so the row is removed again.
func toggle(ctx context.Context, db *gorm.DB, row interface{}, where string, args ...interface{}) (bool, error) {
	var on bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where(where, args...).Delete(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			on = false
			return nil
		}
		res = tx.Clauses(clause.OnConflict{DoNothing: true}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			on = true
			return nil
		}
		on = false
		return tx.Where(where, args...).Delete(row).Error
	})
	return on, err
}
