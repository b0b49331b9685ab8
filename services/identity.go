package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/utils"
)

const (
	codeLength        = 6
	codeIssueAttempts = 5
	registerWindow    = 24 * time.Hour
)

// IdentityConfig tunes verification and registration.
type IdentityConfig struct {
	EmailPepper      string
	CodeTTL          time.Duration
	CodeRetention    time.Duration
	EmailCooldown    time.Duration
	RegisterMaxPerIP int
	// RoleFor returns the configured role for a new username, "" for the default.
	RoleFor func(username string) string
}

// IdentityService owns verification codes and user credentials.
type IdentityService struct {
	db      *gorm.DB
	codes   utils.CodeStore
	counter utils.Counter
	mailer  utils.Mailer
	cache   *utils.Cache
	policy  Policy
	cfg     IdentityConfig
	log     *zap.Logger
	now     func() time.Time
}

func NewIdentityService(db *gorm.DB, codes utils.CodeStore, counter utils.Counter, mailer utils.Mailer, cache *utils.Cache, policy Policy, cfg IdentityConfig, log *zap.Logger) *IdentityService {
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.CodeRetention < 0 {
		cfg.CodeRetention = 0
	}
	return &IdentityService{
		db:      db,
		codes:   codes,
		counter: counter,
		mailer:  mailer,
		cache:   cache,
		policy:  policy,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// WithClock replaces the time source. Tests only.
func (s *IdentityService) WithClock(now func() time.Time) *IdentityService {
	s.now = now
	return s
}

// RequestVerificationCode issues a fresh code for email, replacing any earlier one,
// and mails it.
func (s *IdentityService) RequestVerificationCode(ctx context.Context, email string) error {
	email = utils.NormalizeEmail(email)
	if !s.policy.EmailAllowed(email) {
		return ErrInvalidEmailDomain
	}
	emailHash := utils.HashEmail(s.cfg.EmailPepper, email)
	cooldownKey := "cooldown:email:" + emailHash

	if s.cfg.EmailCooldown > 0 {
		n, err := s.counter.Hit(ctx, cooldownKey, s.cfg.EmailCooldown)
		if err != nil {
			return fmt.Errorf("email cooldown: %w", err)
		}
		if n > 1 {
			return ErrTooManyRequests
		}
	}

	now := s.now()
	rec := utils.CodeRecord{EmailHash: emailHash, IssuedAt: now, ExpiresAt: now.Add(s.cfg.CodeTTL)}
	issued := false
	for i := 0; i < codeIssueAttempts && !issued; i++ {
		code, err := utils.GenerateVerificationCode(codeLength)
		if err != nil {
			return err
		}
		rec.Code = code
		if issued, err = s.codes.Issue(ctx, rec, s.cfg.CodeRetention); err != nil {
			return err
		}
	}
	if !issued {
		return errors.New("could not allocate a unique verification code")
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.\n\nIf you did not request this code you can ignore this email.",
		rec.Code, int(s.cfg.CodeTTL/time.Minute))
	if err := s.mailer.Send(ctx, email, "Your verification code", body); err != nil {
		if rerr := s.codes.Revoke(ctx, rec.Code); rerr != nil {
			s.log.Warn("revoke undelivered code failed", zap.Error(rerr))
		}
		// the address never got a code, so it may ask again right away
		if s.cfg.EmailCooldown > 0 {
			if rerr := s.counter.Reset(ctx, cooldownKey); rerr != nil {
				s.log.Warn("reset email cooldown failed", zap.Error(rerr))
			}
		}
		return fmt.Errorf("send verification code: %w", err)
	}
	s.log.Info("verification code issued", zap.String("email_hash", emailHash[:12]))
	return nil
}

// RegisterInput is what a client submits to create an account.
type RegisterInput struct {
	Code     string
	Username string
	Password string
	ClientIP string
}

// Register consumes a verification code and creates the user it vouches for. Inputs are
// validated before the code is spent so a typo does not burn it.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	code := strings.TrimSpace(in.Code)
	if !isCode(code) {
		return nil, ErrCodeInvalid
	}
	if !s.policy.UsernameValid(username) {
		return nil, ErrInvalidUsername
	}
	if !s.policy.PasswordStrong(in.Password) {
		return nil, ErrWeakPassword
	}
	if taken, err := s.usernameTaken(ctx, username, ""); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}

	ipKey := "register:ip:" + in.ClientIP
	if s.cfg.RegisterMaxPerIP > 0 && in.ClientIP != "" {
		n, err := s.counter.Count(ctx, ipKey)
		if err != nil {
			return nil, fmt.Errorf("registration cap: %w", err)
		}
		if n >= int64(s.cfg.RegisterMaxPerIP) {
			return nil, ErrTooManyRequests
		}
	}

	rec, err := s.codes.Consume(ctx, code)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrCodeInvalid
	}
	if !s.now().Before(rec.ExpiresAt) {
		return nil, ErrCodeExpired
	}

	hash, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := models.User{
		Username:     username,
		Role:         models.RoleUser,
		EmailHash:    rec.EmailHash,
		PasswordHash: hash,
	}
	if s.cfg.RoleFor != nil {
		if role := s.cfg.RoleFor(username); models.ValidRole(role) {
			user.Role = role
		}
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		// the code was spent on an account that does not exist; hand it back
		if _, rerr := s.codes.Issue(ctx, *rec, s.cfg.CodeRetention); rerr != nil {
			s.log.Warn("restore verification code failed", zap.Error(rerr))
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.cfg.RegisterMaxPerIP > 0 && in.ClientIP != "" {
		if _, err := s.counter.Hit(ctx, ipKey, registerWindow); err != nil {
			s.log.Warn("registration counter update failed", zap.Error(err))
		}
	}
	s.log.Info("user registered", zap.String("user_id", user.ID), zap.String("role", user.Role))
	return &user, nil
}

// GetUser loads a user by id.
func (s *IdentityService) GetUser(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// UpdateUsername renames a user in place.
func (s *IdentityService) UpdateUsername(ctx context.Context, userID, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if !s.policy.UsernameValid(username) {
		return nil, ErrInvalidUsername
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Username == username {
		return user, nil
	}
	if taken, err := s.usernameTaken(ctx, username, userID); err != nil {
		return nil, err
	} else if taken {
		return nil, ErrUsernameTaken
	}
	if err := s.db.WithContext(ctx).Model(user).Update("username", username).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("update username: %w", err)
	}
	user.Username = username
	// cached boards embed their creator
	s.cache.InvalidateByPrefix(ctx, boardCachePrefix)
	return user, nil
}

// ChangePassword rotates the stored hash after checking the old password.
func (s *IdentityService) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !utils.CheckPassword(user.PasswordHash, oldPassword) {
		return ErrInvalidCredentials
	}
	if !s.policy.PasswordStrong(newPassword) {
		return ErrWeakPassword
	}
	hash, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", hash).Error; err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.log.Info("password changed", zap.String("user_id", userID))
	return nil
}

// SetRole changes the role of the named user.
func (s *IdentityService) SetRole(ctx context.Context, username, role string) (*models.User, error) {
	if !models.ValidRole(role) {
		return nil, Invalid("role must be one of user, moderator, admin")
	}
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&user).Update("role", role).Error; err != nil {
		return nil, fmt.Errorf("update role: %w", err)
	}
	user.Role = role
	s.cache.InvalidateByPrefix(ctx, boardCachePrefix)
	return &user, nil
}

func (s *IdentityService) usernameTaken(ctx context.Context, username, exceptID string) (bool, error) {
	q := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	var n int64
	if err := q.Count(&n).Error; err != nil {
		return false, fmt.Errorf("check username: %w", err)
	}
	return n > 0, nil
}

func isCode(s string) bool {
	if len(s) != codeLength {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
