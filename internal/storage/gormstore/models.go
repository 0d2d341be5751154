package gormstore

import (
	"time"

	"github.com/MagnunAVF/shorturls/internal/shortener"
)

// Mapping is one allocated short code. The primary key on Code is what makes
// concurrent allocation of the same code fail for all but one writer.
type Mapping struct {
	Code      string    `gorm:"primaryKey;type:varchar(32)"`
	TargetURL string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null;index"`
}

// ClickEvent is a single successful resolution. Insertion order (ID) is the
// order clicks are reported in.
type ClickEvent struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement;index:idx_click_events_code_id,priority:2"`
	MappingCode string    `gorm:"type:varchar(32);not null;index:idx_click_events_code_id,priority:1"`
	Mapping     Mapping   `gorm:"foreignKey:MappingCode;references:Code;constraint:OnDelete:CASCADE"`
	Timestamp   time.Time `gorm:"not null"`
	Referrer    string    `gorm:"type:text"`
	ClientIP    string    `gorm:"type:varchar(64)"`
}

// ClickRollup holds per-code counts aggregated by the analytics worker.
type ClickRollup struct {
	MappingCode string `gorm:"primaryKey;type:varchar(32)"`
	ClickCount  int64  `gorm:"not null;default:0"`
	UpdatedAt   time.Time
}

func (Mapping) TableName() string     { return "mappings" }
func (ClickEvent) TableName() string  { return "click_events" }
func (ClickRollup) TableName() string { return "click_rollups" }

func mappingFromDomain(m *shortener.Mapping) *Mapping {
	return &Mapping{
		Code:      m.Code,
		TargetURL: m.TargetURL,
		CreatedAt: m.CreatedAt,
		ExpiresAt: m.ExpiresAt,
	}
}

func (m *Mapping) toDomain() *shortener.Mapping {
	return &shortener.Mapping{
		Code:      m.Code,
		TargetURL: m.TargetURL,
		CreatedAt: m.CreatedAt.UTC(),
		ExpiresAt: m.ExpiresAt.UTC(),
	}
}

func (c ClickEvent) toDomain() shortener.ClickEvent {
	return shortener.ClickEvent{
		MappingCode: c.MappingCode,
		Timestamp:   c.Timestamp.UTC(),
		Referrer:    c.Referrer,
		ClientIP:    c.ClientIP,
	}
}
