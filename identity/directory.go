// Package identity manages user records: registered identities and the
// auto-provisioned anonymous ones handed out on a poster's first visit.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/whisperwall/whisperwall/models"
)

var (
	ErrNoSuchIdentity = fmt.Errorf("no such identity")
	ErrInvalidStatus  = fmt.Errorf("invalid identity status")
)

// AnonymousPrefix is the display-name prefix for auto-provisioned identities.
const AnonymousPrefix = "Anonymous "

var anonNameRe = regexp.MustCompile(`^Anonymous (\d+)$`)

type Directory struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewDirectory migrates the identity tables and seeds the anonymous-name
// counter from the highest suffix already on record, so the sequence survives
// restarts and never reissues a number.
func NewDirectory(db *gorm.DB, logger *slog.Logger) (*Directory, error) {
	if err := db.AutoMigrate(&models.Identity{}, &models.AnonSeq{}); err != nil {
		return nil, fmt.Errorf("migrating identity tables: %w", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		var seq models.AnonSeq
		err := tx.First(&seq).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		last, err := highestAnonSuffix(tx)
		if err != nil {
			return err
		}
		return tx.Create(&models.AnonSeq{Last: last}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("seeding anonymous sequence: %w", err)
	}

	return &Directory{
		db:     db,
		logger: logger.With("component", "identity"),
	}, nil
}

func highestAnonSuffix(tx *gorm.DB) (int64, error) {
	var names []string
	if err := tx.Model(&models.Identity{}).
		Where("name LIKE ?", AnonymousPrefix+"%").
		Pluck("name", &names).Error; err != nil {
		return 0, err
	}

	var max int64
	for _, name := range names {
		m := anonNameRe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		n, err := strconv.ParseInt(m[1], 10, 64)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max, nil
}

// AllocateAnonymous provisions a fresh identity named "Anonymous N". The
// counter row is bumped with a single UPDATE inside the insert transaction,
// so two concurrent allocations can never observe the same number; the
// suffix ordering survives deletions because the counter never rewinds.
func (d *Directory) AllocateAnonymous(ctx context.Context) (*models.Identity, error) {
	var ident models.Identity

	err := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.AnonSeq{}).
			Where("id IS NOT NULL").
			Update("last", gorm.Expr("last + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("anonymous sequence row missing")
		}

		var seq models.AnonSeq
		if err := tx.First(&seq).Error; err != nil {
			return err
		}

		ident = models.Identity{
			Uuid:   uuid.NewString(),
			Name:   AnonymousPrefix + strconv.FormatInt(seq.Last, 10),
			Status: models.IdentityActive,
		}
		return tx.Create(&ident).Error
	})
	if err != nil {
		return nil, fmt.Errorf("allocating anonymous identity: %w", err)
	}

	d.logger.Debug("allocated anonymous identity", "uuid", ident.Uuid, "name", ident.Name)
	return &ident, nil
}

// Register creates a named identity.
func (d *Directory) Register(ctx context.Context, name string) (*models.Identity, error) {
	ident := models.Identity{
		Uuid:   uuid.NewString(),
		Name:   name,
		Status: models.IdentityActive,
	}
	if err := d.db.WithContext(ctx).Create(&ident).Error; err != nil {
		return nil, fmt.Errorf("creating identity: %w", err)
	}
	return &ident, nil
}

func (d *Directory) GetByUuid(ctx context.Context, uid string) (*models.Identity, error) {
	var ident models.Identity
	if err := d.db.WithContext(ctx).Take(&ident, "uuid = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSuchIdentity
		}
		return nil, fmt.Errorf("looking up identity: %w", err)
	}
	return &ident, nil
}

// List returns a page of identities, newest first, optionally filtered by
// status. The second return is the total matching count.
func (d *Directory) List(ctx context.Context, page, pageSize int, status string) ([]models.Identity, int64, error) {
	q := d.db.WithContext(ctx).Model(&models.Identity{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting identities: %w", err)
	}

	var idents []models.Identity
	if err := q.Order("created_at desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&idents).Error; err != nil {
		return nil, 0, fmt.Errorf("listing identities: %w", err)
	}
	return idents, total, nil
}

// UpdateStatus moves an identity between active, banned and deleted.
func (d *Directory) UpdateStatus(ctx context.Context, uid, status string) error {
	switch status {
	case models.IdentityActive, models.IdentityBanned, models.IdentityDeleted:
	default:
		return ErrInvalidStatus
	}

	res := d.db.WithContext(ctx).Model(&models.Identity{}).
		Where("uuid = ?", uid).
		Update("status", status)
	if res.Error != nil {
		return fmt.Errorf("updating identity status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoSuchIdentity
	}
	return nil
}

// Delete soft-deletes by status change; the row and its name stay behind so
// the anonymous sequence can never collide with a recycled suffix.
func (d *Directory) Delete(ctx context.Context, uid string) error {
	return d.UpdateStatus(ctx, uid, models.IdentityDeleted)
}
