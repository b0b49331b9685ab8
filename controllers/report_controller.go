package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/utils"
)

type ReportController struct {
	reports *services.ReportService
	log     *zap.Logger
}

func NewReportController(reports *services.ReportService, log *zap.Logger) *ReportController {
	return &ReportController{reports: reports, log: log}
}

type reportRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (r *ReportController) ReportPost(ctx *gin.Context) {
	var req reportRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, "reason is required")
		return
	}
	if _, err := r.reports.Report(ctx.Request.Context(), principal(ctx).UserID, ctx.Param("id"), req.Reason); err != nil {
		respondError(ctx, r.log, err)
		return
	}
	utils.Message(ctx, http.StatusCreated, "report submitted")
}
