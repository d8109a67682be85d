package models

import (
	"time"

	"gorm.io/gorm"
)

// Identity lifecycle statuses. Identities are never hard-deleted; deletion is
// a status change so that publications can keep their author references.
const (
	IdentityActive  = "active"
	IdentityBanned  = "banned"
	IdentityDeleted = "deleted"
)

type Identity struct {
	ID        uint   `gorm:"primarykey"`
	Uuid      string `gorm:"uniqueIndex;not null"`
	Name      string `gorm:"index;not null"`
	Status    string `gorm:"not null;default:'active'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AnonSeq is the single-row counter behind anonymous display names. Last is
// the highest suffix handed out so far; it only moves forward, even when the
// identity that received a number is later deleted.
type AnonSeq struct {
	ID   uint `gorm:"primarykey"`
	Last int64
}

// Publication statuses. Removed is terminal.
const (
	PublicationActive  = "active"
	PublicationFlagged = "flagged"
	PublicationRemoved = "removed"
)

type Publication struct {
	ID        uint    `gorm:"primarykey"`
	Uuid      string  `gorm:"uniqueIndex;not null"`
	Author    *string `gorm:"index"`
	Content   string  // hex ciphertext, see crypt
	Status    string  `gorm:"index;not null;default:'active'"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Comment struct {
	gorm.Model
	Uuid        string `gorm:"uniqueIndex;not null"`
	Publication string `gorm:"index;not null"`
	Author      string `gorm:"index;not null"`
	Content     string // hex ciphertext, see crypt
}

type Like struct {
	ID          uint   `gorm:"primarykey"`
	Publication string `gorm:"index:idx_like_pub_identity,unique;not null"`
	Identity    string `gorm:"index:idx_like_pub_identity,unique;not null"`
	CreatedAt   time.Time
}
