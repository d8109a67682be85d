package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/whisperwall/whisperwall/models"
)

type CommentView struct {
	Uuid        string       `json:"uuid"`
	Publication string       `json:"publication"`
	Content     string       `json:"content"`
	Author      *IdentityRef `json:"author,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// CreateComment attaches an encrypted comment to a publication. Comments
// follow the same encryption and ownership discipline as publications but
// never affect the publication's moderation status.
func (s *Store) CreateComment(ctx context.Context, pubUuid, content string, authorUuid *string) (*CommentView, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	var pub models.Publication
	if err := s.db.WithContext(ctx).Take(&pub, "uuid = ?", pubUuid).Error; err != nil {
		return nil, translateNotFound(err, "looking up publication")
	}

	enc, err := s.cipher.Encrypt(content)
	if err != nil {
		return nil, fmt.Errorf("encrypting content: %w", err)
	}

	author, err := s.resolveAuthor(ctx, authorUuid)
	if err != nil {
		return nil, err
	}

	cmt := models.Comment{
		Uuid:        uuid.NewString(),
		Publication: pub.Uuid,
		Author:      author.Uuid,
		Content:     enc,
	}
	if err := s.db.WithContext(ctx).Create(&cmt).Error; err != nil {
		return nil, fmt.Errorf("creating comment: %w", err)
	}

	return &CommentView{
		Uuid:        cmt.Uuid,
		Publication: cmt.Publication,
		Content:     content,
		Author:      &IdentityRef{Uuid: author.Uuid, Name: author.Name},
		CreatedAt:   cmt.CreatedAt,
	}, nil
}

// ListComments pages a publication's comments, oldest first (thread order).
func (s *Store) ListComments(ctx context.Context, pubUuid string, page, pageSize int) ([]*CommentView, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Comment{}).Where("publication = ?", pubUuid)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting comments: %w", err)
	}

	var cmts []models.Comment
	if err := q.Order("created_at asc, id asc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&cmts).Error; err != nil {
		return nil, 0, fmt.Errorf("listing comments: %w", err)
	}

	out := make([]*CommentView, 0, len(cmts))
	for _, cmt := range cmts {
		content, err := s.decrypt("comment", cmt.Uuid, cmt.Content)
		if err != nil {
			return nil, 0, err
		}
		view := &CommentView{
			Uuid:        cmt.Uuid,
			Publication: cmt.Publication,
			Content:     content,
			CreatedAt:   cmt.CreatedAt,
		}
		if ident, err := s.ids.GetByUuid(ctx, cmt.Author); err == nil {
			view.Author = &IdentityRef{Uuid: ident.Uuid, Name: ident.Name}
		} else {
			view.Author = &IdentityRef{Uuid: cmt.Author}
		}
		out = append(out, view)
	}
	return out, total, nil
}

// DeleteComment soft-deletes a comment. Owners may delete their own; admins
// may delete anything.
func (s *Store) DeleteComment(ctx context.Context, commentUuid, requesterUuid string, asAdmin bool) error {
	var cmt models.Comment
	if err := s.db.WithContext(ctx).Take(&cmt, "uuid = ?", commentUuid).Error; err != nil {
		return translateNotFound(err, "looking up comment")
	}
	if !asAdmin && cmt.Author != requesterUuid {
		return ErrNotOwner
	}
	if err := s.db.WithContext(ctx).Delete(&cmt).Error; err != nil {
		return fmt.Errorf("deleting comment: %w", err)
	}
	return nil
}
