package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/utils"
)

// Principal is the authenticated caller of a request. Role is read from the store on
// every validation, never from the token.
type Principal struct {
	UserID    string
	Username  string
	Role      string
	SessionID string
}

// Session is the result of a login or refresh.
type Session struct {
	Tokens utils.TokenPair
	User   *models.User
}

// SessionService issues, validates, rotates and revokes token pairs.
type SessionService struct {
	db          *gorm.DB
	tokens      *utils.TokenIssuer
	revoked     utils.RevocationStore
	accessTTL   time.Duration
	emailPepper string
	log         *zap.Logger
	now         func() time.Time
}

func NewSessionService(db *gorm.DB, tokens *utils.TokenIssuer, revoked utils.RevocationStore, accessTTL time.Duration, emailPepper string, log *zap.Logger) *SessionService {
	return &SessionService{
		db:          db,
		tokens:      tokens,
		revoked:     revoked,
		accessTTL:   accessTTL,
		emailPepper: emailPepper,
		log:         log,
		now:         time.Now,
	}
}

// WithClock replaces the time source. It must match the clock of the token issuer.
func (s *SessionService) WithClock(now func() time.Time) *SessionService {
	s.now = now
	return s
}

// Login checks the credentials and opens a new session. email is optional; when given
// it must be the address the account was registered with.
func (s *SessionService) Login(ctx context.Context, email, username, password string) (*Session, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !utils.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if email != "" {
		got := utils.HashEmail(s.emailPepper, email)
		if subtle.ConstantTimeCompare([]byte(got), []byte(user.EmailHash)) != 1 {
			return nil, ErrInvalidCredentials
		}
	}

	sid := uuid.NewString()
	pair, err := s.tokens.IssuePair(user.ID, user.Username, user.Role, sid)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	sess := models.Session{
		ID:          sid,
		UserID:      user.ID,
		RefreshHash: utils.HashToken(pair.RefreshID),
		ExpiresAt:   pair.RefreshExpiresAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&sess).Error; err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.log.Info("login", zap.String("user_id", user.ID), zap.String("session_id", sid))
	return &Session{Tokens: pair, User: &user}, nil
}

// Validate authenticates an access token. A revocation store failure rejects the token.
func (s *SessionService) Validate(ctx context.Context, accessToken string) (*Principal, error) {
	claims, err := s.parse(accessToken, utils.TokenAccess)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoked.IsRevoked(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrTokenInvalid
	}

	sess, err := s.activeSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if sess.UserID != claims.UserID {
		return nil, ErrTokenInvalid
	}

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &Principal{UserID: user.ID, Username: user.Username, Role: user.Role, SessionID: sess.ID}, nil
}

// Refresh exchanges a refresh token for a new pair. Each refresh token is accepted once;
// presenting a superseded one revokes the whole session.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	claims, err := s.parse(refreshToken, utils.TokenRefresh)
	if err != nil {
		return nil, err
	}
	sess, err := s.activeSession(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", sess.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	pair, err := s.tokens.IssuePair(user.ID, user.Username, user.Role, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	res := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND refresh_hash = ? AND revoked_at IS NULL", sess.ID, utils.HashToken(claims.ID)).
		Updates(map[string]interface{}{
			"refresh_hash": utils.HashToken(pair.RefreshID),
			"expires_at":   pair.RefreshExpiresAt.UTC(),
		})
	if res.Error != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		s.log.Warn("refresh token reuse, revoking session", zap.String("session_id", sess.ID), zap.String("user_id", user.ID))
		if err := s.Logout(ctx, sess.ID); err != nil {
			return nil, err
		}
		return nil, ErrTokenInvalid
	}
	return &Session{Tokens: pair, User: &user}, nil
}

// Logout revokes the session so neither of its tokens validates again.
func (s *SessionService) Logout(ctx context.Context, sessionID string) error {
	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ? AND revoked_at IS NULL", sessionID).
		Update("revoked_at", now).Error; err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	// access tokens of this session expire within accessTTL of now
	if err := s.revoked.Revoke(ctx, sessionID, now.Add(s.accessTTL)); err != nil {
		return err
	}
	s.log.Info("logout", zap.String("session_id", sessionID))
	return nil
}

func (s *SessionService) parse(token, typ string) (*utils.Claims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}
	claims, err := s.tokens.Parse(token, typ)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (s *SessionService) activeSession(ctx context.Context, id string) (*models.Session, error) {
	var sess models.Session
	if err := s.db.WithContext(ctx).First(&sess, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !sess.Active(s.now()) {
		return nil, ErrTokenInvalid
	}
	return &sess, nil
}
