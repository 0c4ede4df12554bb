package state

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/dbazile/cdls/pkg/cdls/source"
)

type GormManager struct {
	db *gorm.DB
}

func NewGormManager(db *gorm.DB) *GormManager {
	return &GormManager{db: db}
}

// Install drops and recreates the load stats table.
func Install(db *gorm.DB) error {
	m := db.Migrator()
	if m.HasTable(&LoadStat{}) {
		if err := m.DropTable(&LoadStat{}); err != nil {
			return fmt.Errorf("could not drop load stats table: %w", err)
		}
	}
	if err := db.AutoMigrate(&LoadStat{}); err != nil {
		return fmt.Errorf("could not create load stats table: %w", err)
	}
	return nil
}

func (m *GormManager) RecordLoad(report *source.Report, remarks string) error {
	stat := LoadStat{
		Identifier:       report.Identifier,
		AttemptedOn:      time.Now().UTC(),
		Successful:       report.Successful,
		TotalRecords:     report.NumberProcessed,
		LatestRecordDate: report.LatestRecord,
		Remarks:          remarks,
	}
	if err := m.db.Create(&stat).Error; err != nil {
		return fmt.Errorf("could not record load stats for '%s': %w", report.Identifier, err)
	}
	return nil
}

func (m *GormManager) LatestRecordDate(identifier string) (time.Time, error) {
	var stat LoadStat
	err := m.db.
		Where("identifier = ? AND successful = ?", identifier, true).
		Order("latest_record_date desc").
		First(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("could not read load stats for '%s': %w", identifier, err)
	}
	return stat.LatestRecordDate, nil
}
