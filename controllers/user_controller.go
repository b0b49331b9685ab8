package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/utils"
)

type UserController struct {
	identity *services.IdentityService
	log      *zap.Logger
}

func NewUserController(identity *services.IdentityService, log *zap.Logger) *UserController {
	return &UserController{identity: identity, log: log}
}

func (u *UserController) CurrentUser(ctx *gin.Context) {
	user, err := u.identity.GetUser(ctx.Request.Context(), principal(ctx).UserID)
	if err != nil {
		respondError(ctx, u.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, user)
}

type updateUserRequest struct {
	Username string `json:"username" binding:"required"`
}

func (u *UserController) UpdateUser(ctx *gin.Context) {
	var req updateUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "username is required")
		return
	}
	user, err := u.identity.UpdateUsername(ctx.Request.Context(), principal(ctx).UserID, req.Username)
	if err != nil {
		respondError(ctx, u.log, err)
		return
	}
	utils.JSON(ctx, http.StatusOK, user)
}
