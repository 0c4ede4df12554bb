// Package sourcecfg holds the typed option blocks for each source type.
package sourcecfg

import "fmt"

// LocalFile : options for a source that drains a directory of data files.
type LocalFile struct {
	QueuePath   string `json:"queue_path"`
	ArchivePath string `json:"archive_path"`
}

// S3 : options for a source that drains an S3 prefix of data files.
type S3 struct {
	Bucket        string `json:"bucket"`
	QueuePrefix   string `json:"queue_prefix"`
	ArchivePrefix string `json:"archive_prefix"`
	Region        string `json:"region"`
	MaxRetry      int    `json:"max_retry"`
}

// MySQL : options for a source that extracts rows from a MySQL table.
type MySQL struct {
	Host         string `json:"host"`
	UserName     string `json:"user_name"`
	Password     string `json:"password"`
	Port         int    `json:"port"`
	DB           string `json:"db"`
	Table        string `json:"table"`
	DateColumn   string `json:"date_column"`
	QueryLogging bool   `json:"query_log"`
}

func (m *MySQL) GetDSN() string {
	return fmt.Sprintf(`%s:%s@tcp(%s:%d)/%s?parseTime=false&collation=utf8mb4_general_ci&autocommit=true`,
		m.UserName, m.Password, m.Host, m.Port, m.DB)
}
