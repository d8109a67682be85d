package models

import (
	"time"
)

// Report records one abuse flag filed by one identity against one
// publication. The composite unique index is what makes duplicate filing an
// atomic conflict rather than a check-then-insert race. Reports are
// append-only; the only bulk deletion is the dismiss path clearing a
// publication's history.
type Report struct {
	ID          uint   `gorm:"primarykey"`
	Uuid        string `gorm:"uniqueIndex;not null"`
	Publication string `gorm:"index:idx_report_pub_reporter,unique;not null"`
	Reporter    string `gorm:"index:idx_report_pub_reporter,unique;not null"`
	CreatedAt   time.Time
}
