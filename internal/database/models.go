package database

import (
	"time"
)

// ImportSession is the audit record of one completed import pass.
// It is written once the session finishes; live session state never
// touches the database.
type ImportSession struct {
	ID              string `gorm:"primaryKey"`
	VolumeID        string `gorm:"index"`
	VolumeLabel     string
	DestinationRoot string
	Outcome         string // success, partial, cancelled
	FilesImported   int
	FilesFailed     int
	FilesDuplicate  int
	FilesPreExist   int
	BytesImported   int64
	StartedAt       time.Time
	CompletedAt     time.Time
	CreatedAt       time.Time
	Records         []ImportRecord `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

// ImportRecord is the per-file outcome within a session
type ImportRecord struct {
	ID          uint   `gorm:"primaryKey"`
	SessionID   string `gorm:"index"`
	SourcePath  string
	DestPath    string
	Status      string
	Error       string
	Size        int64
	ContentHash string `gorm:"index"`
	CapturedAt  time.Time
	CreatedAt   time.Time
}
