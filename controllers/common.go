package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/cppla/we-api/middleware"
	"github.com/cppla/we-api/services"
	"github.com/cppla/we-api/utils"
)

// SnapshotHeader carries the instant a feed page was cut at.
const SnapshotHeader = "X-Feed-Snapshot"

// respondError writes domain errors as-is and hides everything else behind a 500.
func respondError(ctx *gin.Context, log *zap.Logger, err error) {
	var de *services.Error
	if errors.As(err, &de) {
		utils.Error(ctx, de.Kind.Status(), de.Code, de.Message)
		return
	}
	log.Error("request failed",
		zap.String("method", ctx.Request.Method),
		zap.String("path", ctx.FullPath()),
		zap.Error(err),
	)
	utils.Error(ctx, http.StatusInternalServerError, 50000, "internal server error")
}

func badRequest(ctx *gin.Context, msg string) {
	utils.Error(ctx, http.StatusBadRequest, 40000, msg)
}

// principal returns the caller; routes using it sit behind AuthRequired.
func principal(ctx *gin.Context) *services.Principal {
	if p := middleware.CurrentPrincipal(ctx); p != nil {
		return p
	}
	return &services.Principal{}
}

// parsePage reads page, limit and snapshot from the query string.
func parsePage(ctx *gin.Context) (services.Page, bool) {
	var p services.Page
	if v := strings.TrimSpace(ctx.Query("page")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, false
		}
		p.Page = n
	}
	if v := strings.TrimSpace(ctx.Query("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, false
		}
		p.Limit = n
	}
	if v := strings.TrimSpace(ctx.Query("snapshot")); v != "" {
		t, ok := parseSnapshot(v)
		if !ok {
			return p, false
		}
		p.Snapshot = t
	}
	return p, true
}

// parseSnapshot accepts RFC 3339 or Unix milliseconds.
func parseSnapshot(v string) (time.Time, bool) {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), true
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t.UTC(), true
	}
	return time.Time{}, false
}
