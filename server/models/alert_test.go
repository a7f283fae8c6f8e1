package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type decrypterStub struct {
	plaintext string
	err       error
}

func (stub decrypterStub) Decrypt(token string) (string, error) {
	return stub.plaintext, stub.err
}

func stringPtr(s string) *string {
	return &s
}

func TestAlertsForIsMostRecentFirst(t *testing.T) {
	InitializeTestDb()

	for _, alertType := range []string{"SOS", "(Queued / MANUAL)", "(Queued / AI)"} {
		err := CreateAlert(&Alert{
			UserEmail: "stark@avengers.com",
			Timestamp: time.Now(),
			Location:  stringPtr("Stark Tower"),
			Type:      alertType,
		})
		assert.Nil(t, err)
	}
	assert.Nil(t, CreateAlert(&Alert{UserEmail: "web@avengers.com", Timestamp: time.Now(), Type: "SOS"}))

	alerts, err := AlertsFor("stark@avengers.com")
	assert.Nil(t, err)
	assert.Len(t, alerts, 3, "Alerts of other users should not be returned")
	assert.Equal(t, "(Queued / AI)", alerts[0].Type)
	assert.Equal(t, "(Queued / MANUAL)", alerts[1].Type)
	assert.Equal(t, "SOS", alerts[2].Type)
}

func TestAlertReveal(t *testing.T) {
	encrypted := Alert{ID: 1, LocationEnc: stringPtr("gAAAA...")}
	plain := Alert{ID: 2, Location: stringPtr("Stark Tower")}

	testCases := []struct {
		description      string
		alert            Alert
		decrypter        Decrypter
		expectedLocation *string
	}{
		{"Should decrypt an encrypted location", encrypted, decrypterStub{plaintext: "Stark Tower"}, stringPtr("Stark Tower")},
		{"Should show 'Unknown' if decryption fails", encrypted, decrypterStub{err: errors.New("bad token")}, stringPtr(UNKNOWN_LOCATION)},
		{"Should leave plaintext locations alone", plain, decrypterStub{err: errors.New("not called")}, stringPtr("Stark Tower")},
		{"Should leave encrypted locations hidden without a key", encrypted, nil, nil},
	}

	for _, tcase := range testCases {
		t.Run(tcase.description, func(t *testing.T) {
			revealed := tcase.alert.Reveal(tcase.decrypter)
			assert.Equal(t, tcase.expectedLocation, revealed.Location)
			assert.Equal(t, tcase.alert.LocationEnc, revealed.LocationEnc)
		})
	}
}
