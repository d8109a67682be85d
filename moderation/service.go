// Package moderation owns the publication lifecycle: the report ledger that
// counts abuse flags, and the state machine that moves a publication through
// active → flagged → active|removed once enough distinct reporters pile on.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/whisperwall/whisperwall/events"
	"github.com/whisperwall/whisperwall/models"
)

// ReportThreshold is the report count at which a publication is
// automatically flagged for moderator review.
const ReportThreshold = 20

var (
	ErrAlreadyReported        = fmt.Errorf("publication already reported by this identity")
	ErrInvalidStateTransition = fmt.Errorf("publication is not in the required state for this action")
	ErrNoSuchPublication      = fmt.Errorf("no such publication")
)

// Decision is a moderator's verdict on a flagged publication.
type Decision string

const (
	DecisionDismiss = Decision("dismiss")
	DecisionConfirm = Decision("confirm")
)

type Service struct {
	db     *gorm.DB
	ledger *Ledger
	events *events.EventManager
	logger *slog.Logger
}

func NewService(db *gorm.DB, evtman *events.EventManager, logger *slog.Logger) (*Service, error) {
	ledger, err := NewLedger(db)
	if err != nil {
		return nil, err
	}
	return &Service{
		db:     db,
		ledger: ledger,
		events: evtman,
		logger: logger.With("component", "moderation"),
	}, nil
}

// Ledger exposes the report ledger for read paths (admin review, export).
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

// Receipt is what a reporter gets back: their report, the resulting count,
// and whether this particular report tripped the flag.
type Receipt struct {
	Report      *models.Report
	ReportCount int64
	Flagged     bool
}

// ReportPublication files a report and flags the publication once the count
// reaches ReportThreshold. The transition is a conditional update on status,
// so N reporters crossing the threshold together collapse into exactly one
// observable active → flagged flip, and reports against an already-flagged
// publication never re-trigger it.
func (s *Service) ReportPublication(ctx context.Context, pubUuid, reporterUuid string) (*Receipt, error) {
	var pub models.Publication
	if err := s.db.WithContext(ctx).Take(&pub, "uuid = ?", pubUuid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSuchPublication
		}
		return nil, fmt.Errorf("looking up publication: %w", err)
	}

	rep, err := s.ledger.FileReport(ctx, pubUuid, reporterUuid)
	if err != nil {
		if errors.Is(err, ErrAlreadyReported) {
			duplicateReportsCounter.Inc()
		}
		return nil, err
	}

	count, err := s.ledger.CountReports(ctx, pubUuid)
	if err != nil {
		return nil, err
	}

	receipt := &Receipt{Report: rep, ReportCount: count}
	if count < ReportThreshold {
		return receipt, nil
	}

	res := s.db.WithContext(ctx).Model(&models.Publication{}).
		Where("uuid = ? AND status = ?", pubUuid, models.PublicationActive).
		Update("status", models.PublicationFlagged)
	if res.Error != nil {
		return nil, fmt.Errorf("flagging publication: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// already flagged (or removed) by a concurrent reporter or a moderator
		return receipt, nil
	}

	receipt.Flagged = true
	publicationsFlaggedCounter.Inc()
	s.logger.Info("publication flagged", "publication", pubUuid, "reports", count)
	s.events.Emit(&events.PublicationEvent{
		Publication: pubUuid,
		Status:      models.PublicationFlagged,
		ReportCount: count,
		Time:        time.Now(),
	})
	return receipt, nil
}

// Moderate applies an admin decision to a flagged publication: dismiss
// restores it to active and clears its report history, confirm removes it.
// The flagged guard is a conditional update; zero rows affected means the
// publication was not in the state the decision requires.
func (s *Service) Moderate(ctx context.Context, pubUuid string, decision Decision) error {
	var target string
	switch decision {
	case DecisionDismiss:
		target = models.PublicationActive
	case DecisionConfirm:
		target = models.PublicationRemoved
	default:
		return fmt.Errorf("unknown moderation decision %q", decision)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var pub models.Publication
		if err := tx.Take(&pub, "uuid = ?", pubUuid).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoSuchPublication
			}
			return fmt.Errorf("looking up publication: %w", err)
		}

		res := tx.Model(&models.Publication{}).
			Where("uuid = ? AND status = ?", pubUuid, models.PublicationFlagged).
			Update("status", target)
		if res.Error != nil {
			return fmt.Errorf("applying decision: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrInvalidStateTransition
		}

		if decision == DecisionDismiss {
			// Clearing history means a re-flag takes a fresh twenty distinct
			// reporters, not one more straggler.
			return s.ledger.clearReports(tx, pubUuid)
		}
		return nil
	})
	if err != nil {
		return err
	}

	moderationDecisionsCounter.WithLabelValues(string(decision)).Inc()
	s.logger.Info("moderation decision applied", "publication", pubUuid, "decision", decision)
	s.events.Emit(&events.PublicationEvent{
		Publication: pubUuid,
		Status:      target,
		Time:        time.Now(),
	})
	return nil
}

// Remove is the owner/admin explicit delete. It is idempotent: removing an
// already-removed publication is a successful no-op, and removed stays
// terminal no matter who asks afterwards.
func (s *Service) Remove(ctx context.Context, pubUuid string) error {
	var pub models.Publication
	if err := s.db.WithContext(ctx).Take(&pub, "uuid = ?", pubUuid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoSuchPublication
		}
		return fmt.Errorf("looking up publication: %w", err)
	}

	res := s.db.WithContext(ctx).Model(&models.Publication{}).
		Where("uuid = ? AND status <> ?", pubUuid, models.PublicationRemoved).
		Update("status", models.PublicationRemoved)
	if res.Error != nil {
		return fmt.Errorf("removing publication: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		// already removed; nothing to do
		return nil
	}

	publicationsRemovedCounter.Inc()
	s.logger.Info("publication removed", "publication", pubUuid)
	s.events.Emit(&events.PublicationEvent{
		Publication: pubUuid,
		Status:      models.PublicationRemoved,
		Time:        time.Now(),
	})
	return nil
}
