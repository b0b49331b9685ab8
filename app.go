package main

import (
	"context"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/we-api/config"
	"github.com/cppla/we-api/controllers"
	"github.com/cppla/we-api/middleware"
	"github.com/cppla/we-api/routes"
	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/utils"
)

// codeRetention keeps expired codes around so late attempts read as expired.
const codeRetention = time.Hour

// app holds every constructed dependency.
type app struct {
	cfg config.AppConfig
	log *zap.Logger
	db  *gorm.DB
	rc  *redis.Client

	identity *services.IdentityService
	sessions *services.SessionService
	boards   *services.BoardService
	posts    *services.PostService
	reports  *services.ReportService

	captcha *utils.Captcha
	images  utils.ImageStore
	pruners []utils.Pruner
}

func newApp(ctx context.Context, cfg config.AppConfig, log *zap.Logger) (*app, error) {
	db, err := config.OpenDatabase(cfg.Database, cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	if err := config.Migrate(db); err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, db: db}

	var (
		codes   utils.CodeStore
		revoked utils.RevocationStore
		counter utils.Counter
	)
	if rc := utils.NewRedis(cfg.Redis); rc != nil {
		if err := utils.PingRedis(ctx, rc); err != nil {
			_ = rc.Close()
			return nil, err
		}
		a.rc = rc
		codes = utils.NewRedisCodeStore(rc)
		revoked = utils.NewRedisRevocationStore(rc)
		counter = utils.NewRedisCounter(rc)
	} else {
		log.Warn("redis disabled, using in-memory stores; run a single instance only")
		memCodes := utils.NewMemoryCodeStore(nil)
		memRevoked := utils.NewMemoryRevocationStore(nil)
		memCounter := utils.NewMemoryCounter(nil)
		codes, revoked, counter = memCodes, memRevoked, memCounter
		a.pruners = []utils.Pruner{memCodes, memRevoked, memCounter}
	}

	a.images, err = utils.NewImageStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}

	accessTTL := time.Duration(cfg.Auth.AccessTokenTTLMinutes) * time.Minute
	refreshTTL := time.Duration(cfg.Auth.RefreshTokenTTLHours) * time.Hour
	tokens := utils.NewTokenIssuer(cfg.App.JWTSecret, accessTTL, refreshTTL, nil)
	policy := services.DefaultPolicy(cfg.Auth.EmailDomain)
	clean := utils.NewSanitizer()
	cache := utils.NewCache(a.rc, log)

	a.identity = services.NewIdentityService(db, codes, counter, utils.NewMailer(cfg.SMTP, log), cache, policy, services.IdentityConfig{
		EmailPepper:      cfg.App.EmailPepper,
		CodeTTL:          time.Duration(cfg.Auth.CodeTTLMinutes) * time.Minute,
		CodeRetention:    codeRetention,
		EmailCooldown:    time.Duration(cfg.Auth.EmailCooldownSec) * time.Second,
		RegisterMaxPerIP: cfg.Auth.RegisterMaxPerIPPerDay,
		RoleFor:          cfg.RoleFor,
	}, log)
	a.sessions = services.NewSessionService(db, tokens, revoked, accessTTL, cfg.App.EmailPepper, log)
	a.boards = services.NewBoardService(db, cache, clean, log)
	a.posts = services.NewPostService(db, clean, policy, log)
	a.reports = services.NewReportService(db, clean, log)
	a.captcha = utils.NewCaptcha(a.rc)
	return a, nil
}

func (a *app) router() *gin.Engine {
	d := routes.Deps{
		GinMode:        a.cfg.App.GinMode,
		AllowedOrigins: a.cfg.App.AllowedOrigins,
		AccessLog:      utils.NewGinLogger(a.cfg.Log),
		Log:            a.log,
		Auth:           a.sessions,
		RateLimit:      middleware.NewIPRateLimiter(a.cfg.App.RateLimitPerMinute),
		AuthController: controllers.NewAuthController(a.identity, a.sessions, a.captcha, controllers.AuthOptions{
			CaptchaEnabled: a.cfg.Auth.CaptchaEnabled,
			SecureCookies:  a.cfg.Auth.SecureCookies,
		}, a.log),
		UserController:   controllers.NewUserController(a.identity, a.log),
		BoardController:  controllers.NewBoardController(a.boards, a.log),
		PostController:   controllers.NewPostController(a.posts, a.images, a.log),
		ReportController: controllers.NewReportController(a.reports, a.log),
	}
	if a.cfg.Storage.Driver == "local" && strings.HasPrefix(a.cfg.Storage.PublicBaseURL, "/") {
		d.StaticDir = a.cfg.Storage.UploadDir
		d.StaticURL = a.cfg.Storage.PublicBaseURL
	}
	return routes.SetupRouter(d)
}

func (a *app) close() {
	if a.rc != nil {
		_ = a.rc.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
