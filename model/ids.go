package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix, e.g. "loan_<uuid>".
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	return fmt.Sprintf("%s_%s", module, id.String())
}

// HealthInfo reports the persistence health of a single component.
type HealthInfo struct {
	Component   string     `json:"component"`
	Healthy     bool       `json:"healthy"`
	Dirty       bool       `json:"dirty"`
	Records     int        `json:"records"`
	LastError   string     `json:"last_error,omitempty"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
	LastSaveAt  *time.Time `json:"last_save_at,omitempty"`
}

// Account is a balance record keyed by player identity.
type Account struct {
	ID      string  `json:"id"`
	Balance float64 `json:"balance"`
}
