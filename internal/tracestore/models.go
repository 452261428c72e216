package tracestore

import "time"

// Event kinds
const (
	KindShutter = "shutter"
	KindError   = "error"
	KindResult  = "result"
)

// Run is one recorded capture session
type Run struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	Scenario   string `gorm:"index"`
	CameraID   string
	StartedAt  time.Time `gorm:"not null"`
	FinishedAt *time.Time

	Submitted     int
	Shutters      int
	Results       int
	BufferErrors  int
	RequestErrors int
	Dropped       int64 // events the recorder could not keep up with

	Events []Event `gorm:"foreignKey:RunID;constraint:OnDelete:CASCADE"`
}

func (Run) TableName() string {
	return "runs"
}

// Event is one framework callback emitted by the device
type Event struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"type:varchar(36);not null;index:idx_event_run_seq"`
	Seq         int64  `gorm:"not null;index:idx_event_run_seq"`
	Kind        string `gorm:"type:varchar(16);not null"`
	FrameNumber uint32 `gorm:"not null;index"`

	// Sensor timestamp in ns, shutter events only
	Timestamp int64

	// Error events only
	ErrorCode string `gorm:"type:varchar(16)"`
	StreamID  *int

	// Result events only
	Buffers      int
	BufferErrors int
	HasMetadata  bool

	RecordedAt time.Time `gorm:"not null"`
}

func (Event) TableName() string {
	return "events"
}
