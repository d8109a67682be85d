// Package store is the CRUD layer over encrypted text records. Content is
// encrypted before it touches the database and decrypted on every read path
// that hands it back to a caller; nothing outside this package and the
// export service should ever see raw ciphertext.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/whisperwall/whisperwall/crypt"
	"github.com/whisperwall/whisperwall/identity"
	"github.com/whisperwall/whisperwall/models"
)

var (
	ErrNotFound          = fmt.Errorf("record not found")
	ErrNotOwner          = fmt.Errorf("record is owned by a different identity")
	ErrIdentityNotActive = fmt.Errorf("identity is not active")
	ErrEmptyContent      = fmt.Errorf("content must not be empty")
)

type Store struct {
	db     *gorm.DB
	cipher *crypt.Cipher
	ids    *identity.Directory
	logger *slog.Logger
}

func NewStore(db *gorm.DB, cipher *crypt.Cipher, ids *identity.Directory, logger *slog.Logger) (*Store, error) {
	if err := db.AutoMigrate(&models.Publication{}, &models.Comment{}, &models.Like{}); err != nil {
		return nil, fmt.Errorf("migrating content tables: %w", err)
	}
	return &Store{
		db:     db,
		cipher: cipher,
		ids:    ids,
		logger: logger.With("component", "store"),
	}, nil
}

// decrypt surfaces unreadable ciphertext instead of swallowing it; the
// record id lands in the log so an operator can chase the corruption.
func (s *Store) decrypt(kind, uid, enc string) (string, error) {
	text, err := s.cipher.Decrypt(enc)
	if err != nil {
		s.logger.Error("stored content cannot be decrypted", "kind", kind, "uuid", uid, "error", err)
		return "", fmt.Errorf("decrypting %s %s: %w", kind, uid, err)
	}
	return text, nil
}

// resolveAuthor verifies an explicit author or provisions an anonymous one.
func (s *Store) resolveAuthor(ctx context.Context, authorUuid *string) (*models.Identity, error) {
	if authorUuid == nil {
		return s.ids.AllocateAnonymous(ctx)
	}
	ident, err := s.ids.GetByUuid(ctx, *authorUuid)
	if err != nil {
		return nil, err
	}
	if ident.Status != models.IdentityActive {
		return nil, ErrIdentityNotActive
	}
	return ident, nil
}

func translateNotFound(err error, wrap string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", wrap, err)
}
