// Package testutil holds fixtures shared by the package tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cppla/we-api/config"
	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/utils"
)

// TestPassword satisfies the password policy.
const TestPassword = "Secret#123"

// SetupTestDB opens a private in-memory SQLite database with the full schema.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared&_pragma=busy_timeout(5000)"
	db, err := gorm.Open(sqlite.Open(dsn), config.GormConfig(logger.Default.LogMode(logger.Silent)))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps the in-memory database alive and serialises transactions
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

// SetupRedis starts a miniredis server and returns a client connected to it.
func SetupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return mr, rc
}

// CreateUser inserts a user with TestPassword and the given role.
func CreateUser(t *testing.T, db *gorm.DB, username, role string) *models.User {
	t.Helper()
	hash, err := utils.HashPassword(TestPassword)
	require.NoError(t, err)
	user := &models.User{
		Username:     username,
		Role:         role,
		EmailHash:    utils.HashEmail("test-pepper", username+"@islander.tamucc.edu"),
		PasswordHash: hash,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateBoard inserts a board owned by ownerID ("" for a system board).
func CreateBoard(t *testing.T, db *gorm.DB, title, ownerID string) *models.Board {
	t.Helper()
	board := &models.Board{
		Title:           title,
		Description:     title + " description",
		SymbolColor:     "#FF5733",
		SystemImageName: "books.vertical",
	}
	if ownerID != "" {
		board.UserID = &ownerID
	}
	require.NoError(t, db.Omit("User").Create(board).Error)
	return board
}

// MakeRequest sends a JSON request to handler. token, when set, is sent as a bearer token.
func MakeRequest(t *testing.T, handler http.Handler, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// AssertStatus fails the test when the response status differs, printing the body.
func AssertStatus(t *testing.T, rr *httptest.ResponseRecorder, expected int) {
	t.Helper()
	require.Equalf(t, expected, rr.Code, "unexpected status, body: %s", rr.Body.String())
}

// DecodeJSON unmarshals the response body into v.
func DecodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoErrorf(t, json.Unmarshal(rr.Body.Bytes(), v), "body: %s", rr.Body.String())
}
