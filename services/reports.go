package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cppla/we-api/models"
	"github.com/cppla/we-api/utils"
)

const maxReportReason = 1000

// ReportService records abuse reports for later moderator review.
type ReportService struct {
	db    *gorm.DB
	clean *utils.Sanitizer
	log   *zap.Logger
}

func NewReportService(db *gorm.DB, clean *utils.Sanitizer, log *zap.Logger) *ReportService {
	return &ReportService{db: db, clean: clean, log: log}
}

// Report appends a report against postID.
func (s *ReportService) Report(ctx context.Context, reporterID, postID, reason string) (*models.Report, error) {
	reason = s.clean.Text(reason)
	if reason == "" || runeLen(reason) > maxReportReason {
		return nil, Invalid(fmt.Sprintf("reason must be 1-%d characters", maxReportReason))
	}
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Post{}).Where("id = ?", postID).Count(&n).Error; err != nil {
		return nil, fmt.Errorf("check post: %w", err)
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	report := models.Report{PostID: postID, UserID: reporterID, Reason: reason}
	if err := s.db.WithContext(ctx).Create(&report).Error; err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	s.log.Info("post reported", zap.String("report_id", report.ID), zap.String("post_id", postID), zap.String("user_id", reporterID))
	return &report, nil
}

// ListReports returns reports newest first. Used by moderators from the CLI.
func (s *ReportService) ListReports(ctx context.Context, limit int) ([]models.Report, error) {
	if limit <= 0 || limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	reports := []models.Report{}
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}
