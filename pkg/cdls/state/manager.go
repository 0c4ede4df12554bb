// Package state records load statistics and serves the incremental
// high-water mark for each source.
package state

import (
	"time"

	"github.com/dbazile/cdls/pkg/cdls/source"
)

// LoadStat : one row per load attempt.
type LoadStat struct {
	ID               uint      `gorm:"primaryKey;autoIncrement"`
	Identifier       string    `gorm:"column:identifier;type:varchar(64)"`
	AttemptedOn      time.Time `gorm:"column:attempted_on"`
	Successful       bool      `gorm:"column:successful"`
	TotalRecords     int       `gorm:"column:total_records"`
	LatestRecordDate time.Time `gorm:"column:latest_record_date"`
	Remarks          string    `gorm:"column:remarks;type:varchar(200)"`
}

func (LoadStat) TableName() string {
	return "cdls_load_stats"
}

type Manager interface {
	// RecordLoad persists the outcome of one load attempt.
	RecordLoad(report *source.Report, remarks string) error

	// LatestRecordDate returns the newest record date among a source's
	// successful loads; zero when the source has never loaded cleanly.
	LatestRecordDate(identifier string) (time.Time, error)
}
