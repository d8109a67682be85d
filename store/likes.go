package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/whisperwall/whisperwall/models"
)

type LikeView struct {
	Identity  *IdentityRef `json:"identity"`
	CreatedAt time.Time    `json:"createdAt"`
}

// ToggleLike likes a publication, or unlikes it if the identity already has
// a like on record. The unique index carries the toggle: a duplicate insert
// means "remove", so two racing toggles can never double-insert.
func (s *Store) ToggleLike(ctx context.Context, pubUuid, identityUuid string) (liked bool, err error) {
	var pub models.Publication
	if err := s.db.WithContext(ctx).Take(&pub, "uuid = ?", pubUuid).Error; err != nil {
		return false, translateNotFound(err, "looking up publication")
	}

	like := models.Like{Publication: pub.Uuid, Identity: identityUuid}
	err = s.db.WithContext(ctx).Create(&like).Error
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, fmt.Errorf("creating like: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Where("publication = ? AND identity = ?", pub.Uuid, identityUuid).
		Delete(&models.Like{}).Error; err != nil {
		return false, fmt.Errorf("removing like: %w", err)
	}
	return false, nil
}

// ListLikes pages a publication's likes, newest first.
func (s *Store) ListLikes(ctx context.Context, pubUuid string, page, pageSize int) ([]*LikeView, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Like{}).Where("publication = ?", pubUuid)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting likes: %w", err)
	}

	var likes []models.Like
	if err := q.Order("created_at desc, id desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&likes).Error; err != nil {
		return nil, 0, fmt.Errorf("listing likes: %w", err)
	}

	out := make([]*LikeView, 0, len(likes))
	for _, like := range likes {
		view := &LikeView{CreatedAt: like.CreatedAt}
		if ident, err := s.ids.GetByUuid(ctx, like.Identity); err == nil {
			view.Identity = &IdentityRef{Uuid: ident.Uuid, Name: ident.Name}
		} else {
			view.Identity = &IdentityRef{Uuid: like.Identity}
		}
		out = append(out, view)
	}
	return out, total, nil
}
