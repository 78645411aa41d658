package audit

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/kumadojo/api/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entry is the durable audit trail row. Context is stored as serialized JSON
// so the table never needs a migration when a new event gains a field.
type Entry struct {
	gorm.Model
	EventID string `json:"event_id" gorm:"uniqueIndex;size:36;not null"`
	Level   string `json:"level" gorm:"size:16;not null"`
	Message string `json:"message" gorm:"size:512;not null"`
	Context string `json:"context" gorm:"type:text"`
}

func (Entry) TableName() string {
	return "audit_entries"
}

// Recorder writes security-relevant events to both the structured log and the
// audit table. A database failure never propagates: losing one audit row must
// not fail the operation being audited.
type Recorder struct {
	db     *gorm.DB
	logger *logging.Service
}

func NewRecorder(db *gorm.DB, logger *logging.Service) *Recorder {
	return &Recorder{
		db:     db,
		logger: logger.Named("audit"),
	}
}

func (r *Recorder) Record(level, message string, context map[string]any) {
	eventID := uuid.New().String()

	fields := make([]zap.Field, 0, len(context)+1)
	fields = append(fields, zap.String("event_id", eventID))
	for key, value := range context {
		fields = append(fields, zap.Any(key, value))
	}

	switch level {
	case "error":
		r.logger.Error(message, fields...)
	case "warn":
		r.logger.Warn(message, fields...)
	default:
		r.logger.Info(message, fields...)
	}

	if r.db == nil {
		return
	}

	serialized, err := json.Marshal(context)
	if err != nil {
		serialized = []byte("{}")
	}

	entry := &Entry{
		EventID: eventID,
		Level:   level,
		Message: message,
		Context: string(serialized),
	}
	if err := r.db.Create(entry).Error; err != nil {
		r.logger.Warn("failed to persist audit entry", zap.Error(err), zap.String("event_id", eventID))
	}
}

// Recent returns the newest audit entries, capped at limit. Admin tooling uses
// this for the activity view.
func (r *Recorder) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []Entry
	if err := r.db.Order("id DESC").Limit(limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
