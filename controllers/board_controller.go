package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/utils"
)

type BoardController struct {
	boards *services.BoardService
	log    *zap.Logger
}

func NewBoardController(boards *services.BoardService, log *zap.Logger) *BoardController {
	return &BoardController{boards: boards, log: log}
}

type boardRequest struct {
	Title           string `json:"title"`
	Description     string `json:"description"`
	SymbolColor     string `json:"symbolColor"`
	SystemImageName string `json:"systemImageName"`
}

func (r boardRequest) input() services.BoardInput {
	return services.BoardInput{
		Title:           r.Title,
		Description:     r.Description,
		SymbolColor:     r.SymbolColor,
		SystemImageName: r.SystemImageName,
	}
}

func (b *BoardController) Create(ctx *gin.Context) {
	var req boardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body")
		return
	}
	board, err := b.boards.Create(ctx.Request.Context(), principal(ctx).UserID, req.input())
	if err != nil {
		respondError(ctx, b.log, err)
		return
	}
	utils.JSON(ctx, http.StatusCreated, board)
}

func (b *BoardController) Update(ctx *gin.Context) {
	var req boardRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "invalid request body")
		return
	}
	board, err := b.boards.Update(ctx.Request.Context(), principal(ctx).UserID, ctx.Param("id"), req.input())
	if err != nil {
		respondError(ctx, b.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, board)
}

func (b *BoardController) Get(ctx *gin.Context) {
	board, err := b.boards.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, b.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, board)
}

func (b *BoardController) List(ctx *gin.Context) {
	boards, err := b.boards.List(ctx.Request.Context())
	if err != nil {
		respondError(ctx, b.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, boards)
}

func (b *BoardController) ListMine(ctx *gin.Context) {
	boards, err := b.boards.ListMine(ctx.Request.Context(), principal(ctx).UserID)
	if err != nil {
		respondError(ctx, b.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, boards)
}

func (b *BoardController) ListFollowed(ctx *gin.Context) {
	boards, err := b.boards.ListFollowed(ctx.Request.Context(), principal(ctx).UserID)
	if err != nil {
		respondError(ctx, b.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, boards)
}

func (b *BoardController) ToggleFollow(ctx *gin.Context) {
	followed, err := b.boards.ToggleFollow(ctx.Request.Context(), principal(ctx).UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, b.log, err)
		return
	}
	msg := "board unfollowed"
	if followed {
		msg = "board followed"
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"message": msg, "isFollowed": followed})
}

func (b *BoardController) IsFollowed(ctx *gin.Context) {
	followed, err := b.boards.IsFollowed(ctx.Request.Context(), principal(ctx).UserID, ctx.Param("id"))
	if err != nil {
		respondError(ctx, b.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, gin.H{"isFollowed": followed})
}
