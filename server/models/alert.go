package models

import (
	"time"
)

const UNKNOWN_LOCATION = "Unknown"

// Decrypter reverses the encryption applied to Alert.LocationEnc.
type Decrypter interface {
	Decrypt(token string) (string, error)
}

// Alert is the history record of one SOS dispatch. Exactly one of
// Location/LocationEnc is set.
type Alert struct {
	ID               uint       `json:"id" gorm:"primarykey"`
	UserEmail        string     `json:"user" gorm:"not null;index"`
	Timestamp        time.Time  `json:"timestamp" gorm:"not null"`
	Location         *string    `json:"location"`
	LocationEnc      *string    `json:"location_enc"`
	ContactsNotified int        `json:"contacts_notified"`
	Type             string     `json:"type"`
	QueuedAt         *time.Time `json:"queued_at,omitempty"`
}

// Reveal returns a copy of the alert with Location decrypted for display.
// An alert that can't be decrypted shows UNKNOWN_LOCATION.
func (alert Alert) Reveal(decrypter Decrypter) Alert {
	if decrypter == nil || alert.LocationEnc == nil || *alert.LocationEnc == "" {
		return alert
	}

	location, err := decrypter.Decrypt(*alert.LocationEnc)
	if err != nil {
		logg.Warnf("unable to decrypt location for alert %v: %v", alert.ID, err)
		location = UNKNOWN_LOCATION
	}
	alert.Location = &location

	return alert
}

func CreateAlert(alert *Alert) error {
	alert.ID = 0
	alert.UserEmail = normalizeEmail(alert.UserEmail)
	return db.Create(alert).Error
}

// AlertsFor returns every alert owned by 'email', most recent first.
func AlertsFor(email string) ([]Alert, error) {
	alerts := []Alert{}
	err := db.Scopes(ownedBy(normalizeEmail(email))).Order("id desc").Find(&alerts).Error
	if err != nil {
		return nil, err
	}

	return alerts, nil
}

// SosStore exposes the queries the SOS dispatcher needs.
type SosStore struct{}

func (SosStore) ContactsFor(email string) ([]Contact, error) {
	return ContactsFor(email)
}

func (SosStore) RecordAlert(alert *Alert) error {
	return CreateAlert(alert)
}
