package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"

	FieldJobID    = "job_id"
	FieldResumeID = "resume_id"
	FieldSearchID = "search_id"
	FieldSource   = "job_source"
	FieldTerm     = "search_term"
	FieldJobURL   = "job_url"
	FieldCycle    = "cycle"
	FieldCycleID  = "cycle_id"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches the provided fields to the logger.
// A nil logger is replaced with a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns the fields that describe the AI provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// PairFields identifies a (posting, resume) pair.
func PairFields(jobID, resumeID int64) []zap.Field {
	return []zap.Field{
		zap.Int64(FieldJobID, jobID),
		zap.Int64(FieldResumeID, resumeID),
	}
}

// SearchFields identifies one provider call of a search. Empty source or term are omitted.
func SearchFields(searchID int64, source, term string) []zap.Field {
	fields := []zap.Field{zap.Int64(FieldSearchID, searchID)}
	return append(fields, StringFields(
		StringField{Key: FieldSource, Value: source},
		StringField{Key: FieldTerm, Value: term},
	)...)
}

// CycleFields identifies a scrape or match cycle.
func CycleFields(kind, id string) []zap.Field {
	return StringFields(
		StringField{Key: FieldCycle, Value: kind},
		StringField{Key: FieldCycleID, Value: id},
	)
}
