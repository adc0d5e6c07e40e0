package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRecord = errors.New("invalid stock record")
	ErrNotFound      = errors.New("resource not found")
)

// RecordError describes why a stock record was rejected.
type RecordError struct {
	Key    SeriesKey
	Date   time.Time
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	date := "<no date>"
	if !e.Date.IsZero() {
		date = e.Date.Format("2006-01-02")
	}
	return fmt.Sprintf("%v: series %s on %s: %s %s", ErrInvalidRecord, e.Key, date, e.Field, e.Reason)
}

func (e *RecordError) Unwrap() error {
	return ErrInvalidRecord
}
