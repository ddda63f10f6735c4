package model

import (
	"math"
	"time"
)

// AnonymousOwner is recorded as the owner of incidents opened without a user id.
const AnonymousOwner = "anonymous"

// IncidentStatus is the lifecycle status of an incident.
type IncidentStatus string

const (
	StatusActive    IncidentStatus = "active"
	StatusCompleted IncidentStatus = "completed"
)

// Location is a single position fix. Samples are never modified once taken.
type Location struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate checks coordinate ranges.
func (l Location) Validate() error {
	if math.IsNaN(l.Latitude) || l.Latitude < -90 || l.Latitude > 90 {
		return NewValidationError("latitude", "must be within [-90, 90]")
	}
	if math.IsNaN(l.Longitude) || l.Longitude < -180 || l.Longitude > 180 {
		return NewValidationError("longitude", "must be within [-180, 180]")
	}
	if l.Timestamp.IsZero() {
		return NewValidationError("timestamp", "required")
	}
	return nil
}

// Incident is a documented interaction. The incident log is its only writer.
type Incident struct {
	ID           string         `json:"logId"`
	OwnerID      string         `json:"userId"`
	CreatedAt    time.Time      `json:"timestamp"`
	Location     Location       `json:"location"`
	RecordingURL *string        `json:"recordingUrl"`
	Notes        string         `json:"notes"`
	Status       IncidentStatus `json:"status"`
}

// OwnerOrAnonymous returns userID, or AnonymousOwner when it is empty.
func OwnerOrAnonymous(userID string) string {
	if userID == "" {
		return AnonymousOwner
	}
	return userID
}

// UserProfile is the locally known user.
type UserProfile struct {
	UserID          string     `json:"userId,omitempty"`
	Jurisdiction    string     `json:"state,omitempty"`
	Premium         bool       `json:"premiumStatus"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
	TrustedContacts []string   `json:"trustedContacts"`
}

// Channel identifies a notification transport.
type Channel string

const (
	ChannelShare     Channel = "share"
	ChannelSMS       Channel = "sms"
	ChannelEmail     Channel = "email"
	ChannelClipboard Channel = "clipboard"
)

// Contact is a notification destination.
type Contact struct {
	Channel Channel `json:"channel"`
	Address string  `json:"address"`
}
