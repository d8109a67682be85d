package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/whisperwall/whisperwall/models"
)

// Ledger is the de-duplicated, atomically countable record of abuse reports.
// Uniqueness of (publication, reporter) is enforced by the composite index on
// models.Report, never by a separate existence check.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) (*Ledger, error) {
	if err := db.AutoMigrate(&models.Report{}); err != nil {
		return nil, fmt.Errorf("migrating report table: %w", err)
	}
	return &Ledger{db: db}, nil
}

// FileReport records one report for the pair. A second report by the same
// identity surfaces ErrAlreadyReported off the unique-index conflict, so two
// racing requests cannot both land.
func (l *Ledger) FileReport(ctx context.Context, pubUuid, reporterUuid string) (*models.Report, error) {
	return l.fileReport(l.db.WithContext(ctx), pubUuid, reporterUuid)
}

func (l *Ledger) fileReport(tx *gorm.DB, pubUuid, reporterUuid string) (*models.Report, error) {
	rep := models.Report{
		Uuid:        uuid.NewString(),
		Publication: pubUuid,
		Reporter:    reporterUuid,
	}
	if err := tx.Create(&rep).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrAlreadyReported
		}
		return nil, fmt.Errorf("filing report: %w", err)
	}
	reportsFiledCounter.Inc()
	return &rep, nil
}

// CountReports returns the number of committed reports against a publication.
func (l *Ledger) CountReports(ctx context.Context, pubUuid string) (int64, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&models.Report{}).
		Where("publication = ?", pubUuid).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("counting reports: %w", err)
	}
	return count, nil
}

// ListReports pages a publication's reports newest-first for moderator
// review. The second return is the total count.
func (l *Ledger) ListReports(ctx context.Context, pubUuid string, page, pageSize int) ([]models.Report, int64, error) {
	return l.list(l.db.WithContext(ctx).Where("publication = ?", pubUuid), page, pageSize)
}

// ListAllReports pages every report on record, newest-first.
func (l *Ledger) ListAllReports(ctx context.Context, page, pageSize int) ([]models.Report, int64, error) {
	return l.list(l.db.WithContext(ctx), page, pageSize)
}

func (l *Ledger) list(q *gorm.DB, page, pageSize int) ([]models.Report, int64, error) {
	var total int64
	if err := q.Model(&models.Report{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting reports: %w", err)
	}

	var reps []models.Report
	if err := q.Model(&models.Report{}).
		Order("created_at desc, id desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&reps).Error; err != nil {
		return nil, 0, fmt.Errorf("listing reports: %w", err)
	}
	return reps, total, nil
}

// ClearReports drops a publication's report history. Only the dismiss path
// uses this, inside the same transaction that unflags the publication.
func (l *Ledger) ClearReports(ctx context.Context, pubUuid string) error {
	return l.clearReports(l.db.WithContext(ctx), pubUuid)
}

func (l *Ledger) clearReports(tx *gorm.DB, pubUuid string) error {
	if err := tx.Where("publication = ?", pubUuid).Delete(&models.Report{}).Error; err != nil {
		return fmt.Errorf("clearing reports: %w", err)
	}
	return nil
}
