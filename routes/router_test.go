package routes_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/cppla/we-api/controllers"
	"github.com/cppla/we-api/middleware"
	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/routes"
	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/testutil"
	"github.com/cppla/we-api/utils"
)

type inbox struct {
	mu    sync.Mutex
	codes []string
}

var sixDigits = regexp.MustCompile(`\b\d{6}\b`)

func (m *inbox) Send(_ context.Context, _, _, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes = append(m.codes, sixDigits.FindString(body))
	return nil
}

func (m *inbox) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.codes) == 0 {
		return ""
	}
	return m.codes[len(m.codes)-1]
}

type server struct {
	handler http.Handler
	db      *gorm.DB
	mail    *inbox
}

func newServer(t *testing.T) *server {
	t.Helper()
	db := testutil.SetupTestDB(t)
	log := zaptest.NewLogger(t)
	mail := &inbox{}

	policy := services.DefaultPolicy("islander.tamucc.edu")
	clean := utils.NewSanitizer()
	identity := services.NewIdentityService(db, utils.NewMemoryCodeStore(nil), utils.NewMemoryCounter(nil), mail, utils.NewCache(nil, log), policy,
		services.IdentityConfig{EmailPepper: "test-pepper", CodeTTL: 10 * time.Minute, CodeRetention: time.Hour}, log)
	tokens := utils.NewTokenIssuer("test-secret", 15*time.Minute, 24*time.Hour, nil)
	sessions := services.NewSessionService(db, tokens, utils.NewMemoryRevocationStore(nil), 15*time.Minute, "test-pepper", log)
	images := &utils.LocalImageStore{Dir: t.TempDir(), BaseURL: "/static/uploads", MaxBytes: 1 << 20}

	handler := routes.SetupRouter(routes.Deps{
		GinMode:          gin.TestMode,
		AccessLog:        log,
		Log:              log,
		Auth:             sessions,
		RateLimit:        middleware.NewIPRateLimiter(6000),
		AuthController:   controllers.NewAuthController(identity, sessions, utils.NewCaptcha(nil), controllers.AuthOptions{}, log),
		UserController:   controllers.NewUserController(identity, log),
		BoardController:  controllers.NewBoardController(services.NewBoardService(db, utils.NewCache(nil, log), clean, log), log),
		PostController:   controllers.NewPostController(services.NewPostService(db, clean, policy, log), images, log),
		ReportController: controllers.NewReportController(services.NewReportService(db, clean, log), log),
	})
	return &server{handler: handler, db: db, mail: mail}
}

type loginBody struct {
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

func (s *server) login(t *testing.T, username string) loginBody {
	t.Helper()
	rr := testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/auth/login",
		gin.H{"username": username, "password": testutil.TestPassword}, "")
	testutil.AssertStatus(t, rr, http.StatusOK)
	var body loginBody
	testutil.DecodeJSON(t, rr, &body)
	return body
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) int {
	t.Helper()
	var e utils.ErrorResponse
	testutil.DecodeJSON(t, rr, &e)
	return e.Code
}

func TestRegisterLoginFlow(t *testing.T) {
	s := newServer(t)

	rr := testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/auth/requestverificationcode", gin.H{"email": "sam@gmail.com"}, "")
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Equal(t, services.ErrInvalidEmailDomain.Code, errorCode(t, rr))

	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/auth/requestverificationcode", gin.H{"email": "sam@islander.tamucc.edu"}, "")
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/auth/register",
		gin.H{"code": s.mail.last(), "username": "shaka22", "password": testutil.TestPassword}, "")
	testutil.AssertStatus(t, rr, http.StatusOK)
	var reg struct {
		Message string                 `json:"message"`
		User    map[string]interface{} `json:"user"`
	}
	testutil.DecodeJSON(t, rr, &reg)
	assert.Equal(t, "shaka22", reg.User["username"])
	assert.NotContains(t, reg.User, "emailHash")
	assert.NotContains(t, reg.User, "passwordHash")

	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/auth/login",
		gin.H{"username": "shaka22", "password": "Wrong#123"}, "")
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	assert.Equal(t, services.ErrInvalidCredentials.Code, errorCode(t, rr))

	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/auth/login",
		gin.H{"username": "shaka22", "password": testutil.TestPassword}, "")
	testutil.AssertStatus(t, rr, http.StatusOK)
	var cookies = map[string]*http.Cookie{}
	for _, c := range rr.Result().Cookies() {
		cookies[c.Name] = c
	}
	require.Contains(t, cookies, middleware.AccessTokenCookie)
	require.Contains(t, cookies, middleware.RefreshTokenCookie)
	assert.True(t, cookies[middleware.AccessTokenCookie].HttpOnly)

	// the cookie alone authenticates
	req := httptest.NewRequest(http.MethodGet, "/api/user/current-user", nil)
	req.AddCookie(cookies[middleware.AccessTokenCookie])
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	testutil.AssertStatus(t, rec, http.StatusOK)
	var me map[string]interface{}
	testutil.DecodeJSON(t, rec, &me)
	assert.Equal(t, "shaka22", me["username"])
	assert.Equal(t, "user", me["role"])

	// refresh from the cookie, then logout
	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(cookies[middleware.RefreshTokenCookie])
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	testutil.AssertStatus(t, rec, http.StatusOK)
	var refreshed loginBody
	testutil.DecodeJSON(t, rec, &refreshed)
	require.NotEmpty(t, refreshed.AccessToken)

	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/auth/logout", nil, refreshed.AccessToken)
	testutil.AssertStatus(t, rr, http.StatusOK)
	rr = testutil.MakeRequest(t, s.handler, http.MethodGet, "/api/user/current-user", nil, refreshed.AccessToken)
	testutil.AssertStatus(t, rr, http.StatusUnauthorized)
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newServer(t)
	for _, path := range []string{"/api/boards", "/api/posts/for-you", "/api/user/current-user"} {
		rr := testutil.MakeRequest(t, s.handler, http.MethodGet, path, nil, "")
		testutil.AssertStatus(t, rr, http.StatusUnauthorized)
	}
	rr := testutil.MakeRequest(t, s.handler, http.MethodGet, "/api/nope", nil, "")
	testutil.AssertStatus(t, rr, http.StatusNotFound)
	assert.Equal(t, 40400, errorCode(t, rr))

	rr = testutil.MakeRequest(t, s.handler, http.MethodGet, "/health", nil, "")
	testutil.AssertStatus(t, rr, http.StatusOK)
}

func TestBoardAndPostFlow(t *testing.T) {
	s := newServer(t)
	testutil.CreateUser(t, s.db, "admin22", models.RoleAdmin)
	testutil.CreateUser(t, s.db, "shaka22", models.RoleUser)
	admin := s.login(t, "admin22").AccessToken
	user := s.login(t, "shaka22").AccessToken

	boardReq := gin.H{"title": "General", "description": "Anything goes", "symbolColor": "#FF5733", "systemImageName": "bubble.left"}
	rr := testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/boards/create", boardReq, user)
	testutil.AssertStatus(t, rr, http.StatusForbidden)

	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/boards/create", boardReq, admin)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var board map[string]interface{}
	testutil.DecodeJSON(t, rr, &board)
	boardID := board["_id"].(string)

	rr = testutil.MakeRequest(t, s.handler, http.MethodGet, "/api/boards/"+boardID+"/isFollowed", nil, user)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.JSONEq(t, `{"isFollowed": false}`, rr.Body.String())
	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/boards/"+boardID+"/toggleFollow", nil, user)
	testutil.AssertStatus(t, rr, http.StatusOK)

	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/posts/create",
		gin.H{"boardId": boardID, "title": "Parking", "content": "Where?"}, user)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var post map[string]interface{}
	testutil.DecodeJSON(t, rr, &post)
	postID := post["_id"].(string)
	assert.Equal(t, ",", post["path"])
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d{3}Z$`, post["createdAt"])
	assert.Equal(t, "shaka22", post["user"].(map[string]interface{})["username"])

	rr = testutil.MakeRequest(t, s.handler, http.MethodGet, "/api/posts/"+postID+"/isBookmarked", nil, user)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.JSONEq(t, `{"isBookmarked": false}`, rr.Body.String())
	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/posts/"+postID+"/bookmark", nil, user)
	testutil.AssertStatus(t, rr, http.StatusOK)
	rr = testutil.MakeRequest(t, s.handler, http.MethodGet, "/api/posts/"+postID+"/isBookmarked", nil, user)
	assert.JSONEq(t, `{"isBookmarked": true}`, rr.Body.String())

	rr = testutil.MakeRequest(t, s.handler, http.MethodPut, "/api/posts/"+postID+"/upvote", nil, user)
	testutil.AssertStatus(t, rr, http.StatusOK)
	rr = testutil.MakeRequest(t, s.handler, http.MethodPut, "/api/posts/"+postID+"/upvote", nil, user)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var vote map[string]interface{}
	testutil.DecodeJSON(t, rr, &vote)
	assert.Equal(t, "up", vote["direction"])
	assert.EqualValues(t, 1, vote["upvoteCount"])

	rr = testutil.MakeRequest(t, s.handler, http.MethodDelete, "/api/posts/"+postID+"/vote", nil, user)
	testutil.AssertStatus(t, rr, http.StatusOK)
	testutil.DecodeJSON(t, rr, &vote)
	assert.Nil(t, vote["direction"])
	assert.EqualValues(t, 0, vote["upvoteCount"])

	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/posts/"+postID+"/reply", gin.H{"content": "Lot 14"}, admin)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	rr = testutil.MakeRequest(t, s.handler, http.MethodGet, "/api/posts/"+postID+"/replies", nil, user)
	testutil.AssertStatus(t, rr, http.StatusOK)
	var replies []map[string]interface{}
	testutil.DecodeJSON(t, rr, &replies)
	require.Len(t, replies, 1)
	assert.Equal(t, postID, replies[0]["parentPost"])

	rr = testutil.MakeRequest(t, s.handler, http.MethodGet, "/api/posts/following?limit=5", nil, user)
	testutil.AssertStatus(t, rr, http.StatusOK)
	snapshot := rr.Header().Get(controllers.SnapshotHeader)
	require.NotEmpty(t, snapshot)
	var feed []map[string]interface{}
	testutil.DecodeJSON(t, rr, &feed)
	require.Len(t, feed, 1)

	rr = testutil.MakeRequest(t, s.handler, http.MethodGet, "/api/posts/for-you?page=2&snapshot="+snapshot, nil, user)
	testutil.AssertStatus(t, rr, http.StatusOK)
	assert.Equal(t, snapshot, rr.Header().Get(controllers.SnapshotHeader))
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = testutil.MakeRequest(t, s.handler, http.MethodGet, "/api/posts/for-you?page=abc", nil, user)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)

	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/reports/posts/"+postID+"/report", gin.H{"reason": "spam"}, user)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/reports/posts/missing/report", gin.H{"reason": "spam"}, user)
	testutil.AssertStatus(t, rr, http.StatusNotFound)
}

func TestCreatePostWithImage(t *testing.T) {
	s := newServer(t)
	testutil.CreateUser(t, s.db, "shaka22", models.RoleUser)
	token := s.login(t, "shaka22").AccessToken
	board := testutil.CreateBoard(t, s.db, "General", "")

	send := func(image []byte) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		_ = w.WriteField("boardId", board.ID)
		_ = w.WriteField("title", "Sunset")
		_ = w.WriteField("content", "From the seawall")
		part, err := w.CreateFormFile("image", "sunset.gif")
		require.NoError(t, err)
		_, _ = part.Write(image)
		require.NoError(t, w.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/posts/create", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		s.handler.ServeHTTP(rr, req)
		return rr
	}

	gif := []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")
	rr := send(gif)
	testutil.AssertStatus(t, rr, http.StatusCreated)
	var post struct {
		Image *string `json:"image"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &post))
	require.NotNil(t, post.Image)
	assert.Regexp(t, `^/static/uploads/\d{8}/[0-9a-f-]+\.gif$`, *post.Image)

	rr = send([]byte("not an image at all"))
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Equal(t, services.ErrInvalidImage.Code, errorCode(t, rr))

	// body cut off inside the image part, before the closing boundary
	body := "--xyz\r\n" +
		"Content-Disposition: form-data; name=\"boardId\"\r\n\r\n" + board.ID + "\r\n" +
		"--xyz\r\n" +
		"Content-Disposition: form-data; name=\"image\"; filename=\"a.gif\"\r\n" +
		"Content-Type: image/gif\r\n\r\nGIF89a"
	req := httptest.NewRequest(http.MethodPost, "/api/posts/create", strings.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xyz")
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	testutil.AssertStatus(t, rr, http.StatusBadRequest)
	assert.Equal(t, services.ErrInvalidImage.Code, errorCode(t, rr))

	rr = testutil.MakeRequest(t, s.handler, http.MethodPost, "/api/posts/create",
		map[string]string{"boardId": board.ID, "title": "Plain", "content": "No picture"}, token)
	testutil.AssertStatus(t, rr, http.StatusCreated)
}
