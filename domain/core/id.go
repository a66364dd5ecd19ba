package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID represents a domain identifier
type ID string

// NewID creates a new unique identifier using UUID v7 for time-ordered generation
func NewID() ID {
	// Use UUID v7 for time-ordered, sortable IDs
	// Falls back to v4 if v7 is not available (for compatibility)
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to v4 if v7 fails
		id = uuid.New()
	}
	return ID(id.String())
}

// String returns the string representation
func (id ID) String() string {
	return string(id)
}

// IsEmpty checks if the ID is empty
func (id ID) IsEmpty() bool {
	return id == ""
}

// Domain-specific ID types
type (
	ItemID        ID
	ResponseID    ID
	SessionID     ID
	ResultID      ID
	UserID        ID
	CalibrationID ID // CalibrationRun.job_id
	AdminID       ID
)

// String conversions for domain IDs
func (id ItemID) String() string       { return ID(id).String() }
func (id ResponseID) String() string   { return ID(id).String() }
func (id SessionID) String() string    { return ID(id).String() }
func (id ResultID) String() string     { return ID(id).String() }
func (id UserID) String() string       { return ID(id).String() }
func (id CalibrationID) String() string { return ID(id).String() }
func (id AdminID) String() string      { return ID(id).String() }

func (id ItemID) IsEmpty() bool        { return ID(id).IsEmpty() }
func (id SessionID) IsEmpty() bool     { return ID(id).IsEmpty() }
func (id ResultID) IsEmpty() bool      { return ID(id).IsEmpty() }
func (id CalibrationID) IsEmpty() bool { return ID(id).IsEmpty() }

// ParseItemID parses a string into ItemID
func ParseItemID(s string) (ItemID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("item ID cannot be empty")
	}
	return ItemID(s), nil
}

// ParseSessionID parses a string into SessionID
func ParseSessionID(s string) (SessionID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("session ID cannot be empty")
	}
	return SessionID(s), nil
}

// ParseUserID parses a string into UserID
func ParseUserID(s string) (UserID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("user ID cannot be empty")
	}
	return UserID(s), nil
}

// ParseResultID parses a string into ResultID
func ParseResultID(s string) (ResultID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("result ID cannot be empty")
	}
	return ResultID(s), nil
}

// NewCalibrationID generates a unique job_id for a calibration run.
func NewCalibrationID() CalibrationID {
	return CalibrationID(NewID())
}

// ParseAdminID parses an admin override identifier; spec requires it be a
// non-negative integer-ish ID, but the store treats it as an opaque ID.
func ParseAdminID(s string) (AdminID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("admin ID cannot be empty")
	}
	return AdminID(s), nil
}
