package domain

import "strings"

// Status is the stock risk classification of a series.
type Status string

const (
	StatusCritical Status = "CRITICAL"
	StatusWarning  Status = "WARNING"
	StatusHealthy  Status = "HEALTHY"
)

var statusPriorities = map[Status]int{
	StatusCritical: 1,
	StatusWarning:  2,
	StatusHealthy:  3,
}

// Priority returns the reorder urgency for a status, 1 being the most urgent.
func (s Status) Priority() int {
	if p, ok := statusPriorities[s]; ok {
		return p
	}

	return statusPriorities[StatusHealthy]
}

// Actionable reports whether the status calls for a reorder.
func (s Status) Actionable() bool {
	return s == StatusCritical || s == StatusWarning
}

// ParseStatus returns the status for a given label (case-insensitive).
func ParseStatus(label string) (Status, bool) {
	s := Status(strings.ToUpper(strings.TrimSpace(label)))
	_, ok := statusPriorities[s]

	return s, ok
}
