package types

import (
	"time"

	"github.com/google/uuid"
)

// IndexID is a UUIDv7 identifier for a stored index mapping.
type IndexID string

// RequestID is a UUIDv7 identifier attached to each compile request.
type RequestID string

// NewIndexID generates a UUIDv7 index identifier.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewIndexID() IndexID {
	return IndexID(uuid.Must(uuid.NewV7()).String())
}

// NewRequestID generates a UUIDv7 request identifier.
func NewRequestID() RequestID {
	return RequestID(uuid.Must(uuid.NewV7()).String())
}

// ParseRequestID validates and converts a caller-supplied request id.
// Rejects malformed UUIDs so log correlation keys stay well-formed.
func ParseRequestID(s string) (RequestID, error) {
	_, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return RequestID(s), nil
}

// IndexIDTime extracts the creation time embedded in a UUIDv7 index ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func IndexIDTime(id IndexID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
