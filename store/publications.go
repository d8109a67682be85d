package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/whisperwall/whisperwall/models"
)

// IdentityRef is the author slice of a view: just enough to attribute a
// record without exposing the identity row.
type IdentityRef struct {
	Uuid string `json:"uuid"`
	Name string `json:"name"`
}

// PublicationView is a publication as callers see it: content decrypted,
// counts derived at read time rather than stored redundantly.
type PublicationView struct {
	Uuid      string       `json:"uuid"`
	Content   string       `json:"content"`
	Status    string       `json:"status"`
	Author    *IdentityRef `json:"author,omitempty"`
	Reports   int64        `json:"reports"`
	Likes     int64        `json:"likes"`
	Comments  int64        `json:"comments"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// CreatePublication encrypts content and persists a new active publication.
// A nil author provisions a fresh anonymous identity, which is returned in
// the view so the client can keep posting under it.
func (s *Store) CreatePublication(ctx context.Context, content string, authorUuid *string) (*PublicationView, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	enc, err := s.cipher.Encrypt(content)
	if err != nil {
		return nil, fmt.Errorf("encrypting content: %w", err)
	}

	author, err := s.resolveAuthor(ctx, authorUuid)
	if err != nil {
		return nil, err
	}

	pub := models.Publication{
		Uuid:    uuid.NewString(),
		Author:  &author.Uuid,
		Content: enc,
		Status:  models.PublicationActive,
	}
	if err := s.db.WithContext(ctx).Create(&pub).Error; err != nil {
		return nil, fmt.Errorf("creating publication: %w", err)
	}

	s.logger.Info("publication created", "uuid", pub.Uuid, "author", author.Uuid)
	return &PublicationView{
		Uuid:      pub.Uuid,
		Content:   content,
		Status:    pub.Status,
		Author:    &IdentityRef{Uuid: author.Uuid, Name: author.Name},
		CreatedAt: pub.CreatedAt,
		UpdatedAt: pub.UpdatedAt,
	}, nil
}

// GetPublication returns one publication with decrypted content and derived
// counts.
func (s *Store) GetPublication(ctx context.Context, uid string) (*PublicationView, error) {
	var pub models.Publication
	if err := s.db.WithContext(ctx).Take(&pub, "uuid = ?", uid).Error; err != nil {
		return nil, translateNotFound(err, "looking up publication")
	}
	return s.hydrate(ctx, &pub)
}

// ListPublications pages publications newest-first, optionally filtered by
// status. The second return is the total matching count.
func (s *Store) ListPublications(ctx context.Context, page, pageSize int, status string) ([]*PublicationView, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Publication{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting publications: %w", err)
	}

	var pubs []models.Publication
	if err := q.Order("created_at desc, id desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&pubs).Error; err != nil {
		return nil, 0, fmt.Errorf("listing publications: %w", err)
	}

	out := make([]*PublicationView, 0, len(pubs))
	for i := range pubs {
		view, err := s.hydrate(ctx, &pubs[i])
		if err != nil {
			return nil, 0, err
		}
		out = append(out, view)
	}
	return out, total, nil
}

// UpdateContent replaces a publication's text. Only the owning identity may
// edit, and removed publications stay frozen.
func (s *Store) UpdateContent(ctx context.Context, uid, requesterUuid, content string) (*PublicationView, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}

	var pub models.Publication
	if err := s.db.WithContext(ctx).Take(&pub, "uuid = ?", uid).Error; err != nil {
		return nil, translateNotFound(err, "looking up publication")
	}
	if pub.Author == nil || *pub.Author != requesterUuid {
		return nil, ErrNotOwner
	}
	if pub.Status == models.PublicationRemoved {
		return nil, ErrNotFound
	}

	enc, err := s.cipher.Encrypt(content)
	if err != nil {
		return nil, fmt.Errorf("encrypting content: %w", err)
	}

	if err := s.db.WithContext(ctx).Model(&pub).Update("content", enc).Error; err != nil {
		return nil, fmt.Errorf("updating publication: %w", err)
	}
	return s.GetPublication(ctx, uid)
}

func (s *Store) hydrate(ctx context.Context, pub *models.Publication) (*PublicationView, error) {
	content, err := s.decrypt("publication", pub.Uuid, pub.Content)
	if err != nil {
		return nil, err
	}

	view := &PublicationView{
		Uuid:      pub.Uuid,
		Content:   content,
		Status:    pub.Status,
		CreatedAt: pub.CreatedAt,
		UpdatedAt: pub.UpdatedAt,
	}

	if pub.Author != nil {
		ident, err := s.ids.GetByUuid(ctx, *pub.Author)
		if err == nil {
			view.Author = &IdentityRef{Uuid: ident.Uuid, Name: ident.Name}
		} else {
			// identities can outlive or predecease their publications; a
			// dangling reference is not an error on the read path
			view.Author = &IdentityRef{Uuid: *pub.Author}
		}
	}

	db := s.db.WithContext(ctx)
	if err := db.Model(&models.Report{}).Where("publication = ?", pub.Uuid).Count(&view.Reports).Error; err != nil {
		return nil, fmt.Errorf("counting reports: %w", err)
	}
	if err := db.Model(&models.Like{}).Where("publication = ?", pub.Uuid).Count(&view.Likes).Error; err != nil {
		return nil, fmt.Errorf("counting likes: %w", err)
	}
	if err := db.Model(&models.Comment{}).Where("publication = ?", pub.Uuid).Count(&view.Comments).Error; err != nil {
		return nil, fmt.Errorf("counting comments: %w", err)
	}
	return view, nil
}
