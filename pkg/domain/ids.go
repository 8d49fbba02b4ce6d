// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"github.com/google/uuid"

	dErrors "dealerdesk/pkg/domain-errors"
)

// Distinct ID types - compiler prevents passing a DealerUserID where a TenantID is expected.
type (
	TenantID     uuid.UUID
	DealerUserID uuid.UUID
)

// Parse functions - use at trust boundaries (handlers, token claims).

func ParseTenantID(s string) (TenantID, error) {
	id, err := parseUUID(s, "tenant ID")
	return TenantID(id), err
}

func ParseDealerUserID(s string) (DealerUserID, error) {
	id, err := parseUUID(s, "dealer user ID")
	return DealerUserID(id), err
}

// String methods - for logging and cache keys.

func (id TenantID) String() string     { return uuid.UUID(id).String() }
func (id DealerUserID) String() string { return uuid.UUID(id).String() }

// IsNil checks - used for tenant-presence validation.

func (id TenantID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id DealerUserID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// parseUUID is the shared validation logic.
// Nil UUIDs are allowed here; use IsNil() where a value is actually required
// so lookups can still return proper "not found" errors.
func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" cannot be empty")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label+" format")
	}
	return id, nil
}
