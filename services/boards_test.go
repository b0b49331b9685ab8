package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/testutil"
	"github.com/cppla/we-api/utils"
)

func newBoards(t *testing.T, db *gorm.DB, cache *utils.Cache) *services.BoardService {
	if cache == nil {
		cache = utils.NewCache(nil, zaptest.NewLogger(t))
	}
	return services.NewBoardService(db, cache, utils.NewSanitizer(), zaptest.NewLogger(t))
}

var studyInput = services.BoardInput{
	Title:           "Study Groups",
	Description:     "Find people to study with",
	SymbolColor:     "#3366ff",
	SystemImageName: "person.3",
}

func TestBoardMutationRequiresManagerRole(t *testing.T) {
	db := testutil.SetupTestDB(t)
	boards := newBoards(t, db, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "plain22", models.RoleUser)
	mod := testutil.CreateUser(t, db, "mod2222", models.RoleModerator)
	admin := testutil.CreateUser(t, db, "admin22", models.RoleAdmin)

	_, err := boards.Create(ctx, user.ID, studyInput)
	requireKind(t, err, services.ErrForbidden)

	board, err := boards.Create(ctx, admin.ID, studyInput)
	require.NoError(t, err)
	assert.Equal(t, "#3366FF", board.SymbolColor)
	require.NotNil(t, board.User)
	assert.Equal(t, admin.ID, board.User.ID)

	_, err = boards.Update(ctx, user.ID, board.ID, services.BoardInput{Title: "Hijacked"})
	requireKind(t, err, services.ErrForbidden)

	updated, err := boards.Update(ctx, mod.ID, board.ID, services.BoardInput{Title: "Study Buddies"})
	require.NoError(t, err)
	assert.Equal(t, "Study Buddies", updated.Title)
	assert.Equal(t, studyInput.Description, updated.Description)

	_, err = boards.Update(ctx, admin.ID, "missing", services.BoardInput{Title: "x"})
	requireKind(t, err, services.ErrBoardNotFound)
}

func TestBoardValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	boards := newBoards(t, db, nil)
	admin := testutil.CreateUser(t, db, "admin22", models.RoleAdmin)
	ctx := context.Background()

	bad := studyInput
	bad.SymbolColor = "blue"
	_, err := boards.Create(ctx, admin.ID, bad)
	requireKind(t, err, services.Invalid(""))

	bad = studyInput
	bad.Title = " \t\x00 "
	_, err = boards.Create(ctx, admin.ID, bad)
	requireKind(t, err, services.Invalid(""))
}

func TestToggleFollowTwiceRestoresState(t *testing.T) {
	db := testutil.SetupTestDB(t)
	boards := newBoards(t, db, nil)
	ctx := context.Background()
	user := testutil.CreateUser(t, db, "shaka22", models.RoleUser)
	board := testutil.CreateBoard(t, db, "General", "")

	followed, err := boards.IsFollowed(ctx, user.ID, board.ID)
	require.NoError(t, err)
	assert.False(t, followed)

	on, err := boards.ToggleFollow(ctx, user.ID, board.ID)
	require.NoError(t, err)
	assert.True(t, on)
	followed, _ = boards.IsFollowed(ctx, user.ID, board.ID)
	assert.True(t, followed)

	list, err := boards.ListFollowed(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, board.ID, list[0].ID)

	on, err = boards.ToggleFollow(ctx, user.ID, board.ID)
	require.NoError(t, err)
	assert.False(t, on)
	followed, _ = boards.IsFollowed(ctx, user.ID, board.ID)
	assert.False(t, followed)

	_, err = boards.ToggleFollow(ctx, user.ID, "missing")
	requireKind(t, err, services.ErrBoardNotFound)
}

func TestListMine(t *testing.T) {
	db := testutil.SetupTestDB(t)
	boards := newBoards(t, db, nil)
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, "admin22", models.RoleAdmin)
	testutil.CreateBoard(t, db, "General", "")
	mine := testutil.CreateBoard(t, db, "Mine", admin.ID)

	list, err := boards.ListMine(ctx, admin.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ID, list[0].ID)

	all, err := boards.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestBoardListCacheInvalidatedOnWrite(t *testing.T) {
	db := testutil.SetupTestDB(t)
	_, rc := testutil.SetupRedis(t)
	boards := newBoards(t, db, utils.NewCache(rc, zaptest.NewLogger(t)))
	ctx := context.Background()
	admin := testutil.CreateUser(t, db, "admin22", models.RoleAdmin)

	first, err := boards.Create(ctx, admin.ID, studyInput)
	require.NoError(t, err)
	list, err := boards.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	got, err := boards.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Title, got.Title)

	// a write that bypasses the service is not seen until the cache is invalidated
	testutil.CreateBoard(t, db, "Side Door", "")
	list, err = boards.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = boards.Update(ctx, admin.ID, first.ID, services.BoardInput{Title: "Renamed"})
	require.NoError(t, err)
	list, err = boards.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	got, err = boards.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
}
