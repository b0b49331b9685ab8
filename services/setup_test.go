package services_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/testutil"
	"github.com/cppla/we-api/utils"
)

const (
	testDomain = "islander.tamucc.edu"
	testPepper = "test-pepper"
)

var codeRe = regexp.MustCompile(`\b\d{6}\b`)

type sentMail struct {
	To, Subject, Body string
}

// captureMailer records every message instead of sending it.
type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	fail error
}

func (m *captureMailer) Send(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, sentMail{to, subject, body})
	return nil
}

func (m *captureMailer) lastCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	code := codeRe.FindString(m.sent[len(m.sent)-1].Body)
	require.NotEmpty(t, code)
	return code
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newClock() *testClock {
	return &testClock{t: time.Now().UTC().Truncate(time.Millisecond)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type identityFixture struct {
	db       *gorm.DB
	mailer   *captureMailer
	clock    *testClock
	cache    *utils.Cache
	identity *services.IdentityService
}

func newIdentity(t *testing.T, cfg services.IdentityConfig) *identityFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	clock := newClock()
	mailer := &captureMailer{}
	if cfg.EmailPepper == "" {
		cfg.EmailPepper = testPepper
	}
	if cfg.CodeTTL == 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	if cfg.CodeRetention == 0 {
		cfg.CodeRetention = time.Hour
	}
	_, rc := testutil.SetupRedis(t)
	cache := utils.NewCache(rc, zaptest.NewLogger(t))
	identity := services.NewIdentityService(db,
		utils.NewMemoryCodeStore(clock.Now),
		utils.NewMemoryCounter(clock.Now),
		mailer,
		cache,
		services.DefaultPolicy(testDomain),
		cfg,
		zaptest.NewLogger(t),
	).WithClock(clock.Now)
	return &identityFixture{db: db, mailer: mailer, clock: clock, cache: cache, identity: identity}
}

func newPosts(t *testing.T, db *gorm.DB) *services.PostService {
	return services.NewPostService(db, utils.NewSanitizer(), services.DefaultPolicy(testDomain), zaptest.NewLogger(t))
}

// insertPost writes a root post directly with a fixed creation time.
func insertPost(t *testing.T, db *gorm.DB, author *models.User, boardID, title string, at time.Time) *models.Post {
	t.Helper()
	post := &models.Post{
		Title:     title,
		Content:   title + " body",
		UserID:    author.ID,
		Username:  author.Username,
		BoardID:   boardID,
		Path:      models.RootPath,
		CreatedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	}
	require.NoError(t, db.Omit(clause.Associations).Create(post).Error)
	return post
}

func requireKind(t *testing.T, err error, want *services.Error) {
	t.Helper()
	require.Error(t, err)
	var de *services.Error
	require.True(t, errors.As(err, &de), "expected domain error, got %v", err)
	require.Equal(t, want.Code, de.Code, "got %q", de.Message)
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
