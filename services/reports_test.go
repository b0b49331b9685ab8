package services_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/testutil"
	"github.com/cppla/we-api/utils"
)

func TestReportPost(t *testing.T) {
	db := testutil.SetupTestDB(t)
	reports := services.NewReportService(db, utils.NewSanitizer(), zaptest.NewLogger(t))
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "shaka22", models.RoleUser)
	board := testutil.CreateBoard(t, db, "General", "")
	post := insertPost(t, db, user, board.ID, "spam", time.Now())

	r, err := reports.Report(ctx, user.ID, post.ID, "  spam &lt;i&gt;link ")
	require.NoError(t, err)
	assert.Equal(t, "spam &lt;i&gt;link", r.Reason)
	_, err = reports.Report(ctx, user.ID, post.ID, "still spam")
	require.NoError(t, err)

	_, err = reports.Report(ctx, user.ID, post.ID, "   ")
	requireKind(t, err, services.Invalid(""))
	_, err = reports.Report(ctx, user.ID, post.ID, strings.Repeat("a", 1001))
	requireKind(t, err, services.Invalid(""))
	_, err = reports.Report(ctx, user.ID, "missing", "spam")
	requireKind(t, err, services.ErrNotFound)

	list, err := reports.ListReports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, r := range list {
		assert.Equal(t, post.ID, r.PostID)
		assert.Equal(t, user.ID, r.UserID)
	}
}
