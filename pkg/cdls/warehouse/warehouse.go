// Package warehouse stores loaded records as wrapped JSON documents in the
// local sqlite database.
package warehouse

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// RecordDateFormat is the stored textual form of a record date.
const RecordDateFormat = "2006-01-02 15:04:05.000000"

// Document : one warehoused record.
type Document struct {
	GUID             string `gorm:"column:guid;type:varchar(40);primaryKey"`
	SourceIdentifier string `gorm:"column:source_identifier;type:varchar(64)"`
	RecordDate       string `gorm:"column:record_date;type:varchar(26)"`
	JSON             string `gorm:"column:json;type:text"`
}

func (Document) TableName() string {
	return "warehouse"
}

// Store writes documents into the warehouse table.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Install drops and recreates the warehouse table.
func Install(db *gorm.DB) error {
	m := db.Migrator()
	if m.HasTable(&Document{}) {
		if err := m.DropTable(&Document{}); err != nil {
			return &DatabaseError{Message: fmt.Sprintf("could not drop warehouse table: %s", err), Err: err}
		}
	}
	if err := db.AutoMigrate(&Document{}); err != nil {
		return &DatabaseError{Message: fmt.Sprintf("could not create warehouse table: %s", err), Err: err}
	}
	return nil
}

// Warehouse decomposes a data structure the lazy way: it is saved as a JSON
// document wrapped with its type name, alongside source and date metadata.
func (s *Store) Warehouse(data any, source string, recordDate time.Time) error {
	packaged := map[string]any{
		"$class":    className(data),
		"$contents": data,
	}
	b, err := json.MarshalIndent(packaged, "", "    ")
	if err != nil {
		return &DatabaseError{Message: "JSON-serialization failed on data", Err: err}
	}

	guid, err := uuid.NewV4()
	if err != nil {
		return &DatabaseError{Message: fmt.Sprintf("could not generate guid: %s", err), Err: err}
	}

	doc := Document{
		GUID:             strings.ToUpper(guid.String()),
		SourceIdentifier: strings.ToUpper(strings.TrimSpace(source)),
		RecordDate:       recordDate.UTC().Format(RecordDateFormat),
		JSON:             strings.TrimSpace(string(b)),
	}
	if err := s.db.Create(&doc).Error; err != nil {
		return &DatabaseError{
			Message: fmt.Sprintf("insert into warehouse failed: %s", err),
			Query:   "INSERT INTO warehouse (guid, source_identifier, record_date, json)",
			Err:     err,
		}
	}
	return nil
}

func className(data any) string {
	t := reflect.TypeOf(data)
	if t == nil {
		return "nil"
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

// DatabaseError : a failure to write to or query the local database.
type DatabaseError struct {
	Message string
	Query   string
	Err     error
}

func (e *DatabaseError) Error() string {
	return e.Message
}

func (e *DatabaseError) Unwrap() error {
	return e.Err
}

// Details returns the SQL context for verbose error output.
func (e *DatabaseError) Details() string {
	if e.Query == "" {
		return ""
	}
	return "SQL Query:\n" + e.Query
}
