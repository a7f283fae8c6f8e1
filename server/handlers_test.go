package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Daskott/haven/server/auth"
	"github.com/Daskott/haven/server/auth/key"
	"github.com/Daskott/haven/server/cipher"
	"github.com/Daskott/haven/server/metrics"
	"github.com/Daskott/haven/server/models"
	"github.com/Daskott/haven/server/notify"
	"github.com/Daskott/haven/server/sos"
	"github.com/lestrrat-go/jwx/jwk"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
)

type GeocoderStub struct{}

func (GeocoderStub) Reverse(ctx context.Context, lat, lon float64) string {
	return fmt.Sprintf("Place(%v,%v)", lat, lon)
}

type SmsSenderStub struct {
	numbers [][]string
}

func (s *SmsSenderStub) Enabled() bool { return true }

func (s *SmsSenderStub) Send(ctx context.Context, message string, numbers []string) (notify.SmsResult, error) {
	s.numbers = append(s.numbers, numbers)
	return notify.SmsResult{"return": true}, nil
}

type EmailSenderStub struct {
	recipients [][]string
}

func (e *EmailSenderStub) Enabled() bool { return true }

func (e *EmailSenderStub) Send(ctx context.Context, subject string, recipients []string, body string) error {
	e.recipients = append(e.recipients, recipients)
	return nil
}

var testKeyPair *key.KeyPair

func sessionTestKeyPair(t *testing.T) *key.KeyPair {
	if testKeyPair == nil {
		var err error
		testKeyPair, err = key.NewEphemeralKeyPair()
		assert.Nil(t, err)
	}
	return testKeyPair
}

type testServer struct {
	*httptest.Server
	sms    *SmsSenderStub
	mailer *EmailSenderStub
}

func newTestServer(t *testing.T, locationCipher *cipher.LocationCipher) *testServer {
	models.InitializeTestDb()

	registry := prometheus.NewRegistry()
	appMetrics := metrics.New(registry)
	sms := &SmsSenderStub{}
	mailer := &EmailSenderStub{}

	opts := sos.Options{
		Geocoder: GeocoderStub{},
		Sms:      sms,
		Mailer:   mailer,
		Store:    models.SosStore{},
		Metrics:  appMetrics,
	}
	deps := Dependencies{
		KeyPair:  sessionTestKeyPair(t),
		Metrics:  appMetrics,
		Registry: registry,
	}
	if locationCipher != nil {
		opts.Cipher = locationCipher
		deps.Decrypter = locationCipher
	}
	deps.Dispatcher = sos.NewDispatcher(opts)

	app, err := NewApp(deps)
	assert.Nil(t, err)

	server := httptest.NewServer(app.Router())
	t.Cleanup(server.Close)

	return &testServer{Server: server, sms: sms, mailer: mailer}
}

// newTestClient keeps cookies like a browser, but doesn't follow redirects.
func newTestClient(t *testing.T) *http.Client {
	jar, err := cookiejar.New(nil)
	assert.Nil(t, err)

	return &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func (ts *testServer) do(t *testing.T, client *http.Client, method, path string, body interface{}, dest interface{}) *http.Response {
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		payload, err := json.Marshal(b)
		assert.Nil(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	assert.Nil(t, err)
	req.Header.Set("Content-Type", "application/json")

	res, err := client.Do(req)
	assert.Nil(t, err)
	defer res.Body.Close()

	if dest != nil {
		assert.Nil(t, json.NewDecoder(res.Body).Decode(dest))
	}

	return res
}

func (ts *testServer) signUp(t *testing.T, client *http.Client, email string) {
	payload := ResponsePayload{}
	ts.do(t, client, "POST", "/api/signup", map[string]string{
		"name":     "Tony Stark",
		"phone":    "+14165550100",
		"email":    email,
		"password": "iam1ronman",
	}, &payload)
	assert.True(t, payload.Success, payload.Message)
}

func TestSignupThenLogin(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t)

	ts.signUp(t, client, "tony@avengers.com")

	payload := ResponsePayload{}
	ts.do(t, client, "POST", "/api/logout", nil, &payload)
	assert.True(t, payload.Success)

	testCases := []struct {
		description     string
		password        string
		expectedSuccess bool
		expectedMessage string
	}{
		{"Should log in with the signup credentials", "iam1ronman", true, ""},
		{"Should reject a wrong password", "iampepper", false, "Invalid credentials"},
	}

	for _, tcase := range testCases {
		t.Run(tcase.description, func(t *testing.T) {
			payload := ResponsePayload{}
			res := ts.do(t, newTestClient(t), "POST", "/api/login",
				map[string]string{"email": "tony@avengers.com", "password": tcase.password}, &payload)

			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.Equal(t, tcase.expectedSuccess, payload.Success)
			assert.Equal(t, tcase.expectedMessage, payload.Message)
		})
	}
}

func TestSignupSetsSession(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t)

	res := ts.do(t, client, "GET", "/home", nil, nil)
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/login", res.Header.Get("Location"))

	ts.signUp(t, client, "tony@avengers.com")

	res = ts.do(t, client, "GET", "/home", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res = ts.do(t, client, "GET", "/", nil, nil)
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/home", res.Header.Get("Location"))

	ts.do(t, client, "POST", "/api/logout", nil, nil)
	res = ts.do(t, client, "GET", "/contacts", nil, nil)
	assert.Equal(t, http.StatusFound, res.StatusCode, "Logging out should end the session")
}

func TestSignupWithDuplicateEmail(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.signUp(t, newTestClient(t), "tony@avengers.com")

	payload := ResponsePayload{}
	ts.do(t, newTestClient(t), "POST", "/api/signup", map[string]string{
		"name":     "Impostor",
		"phone":    "+14165550199",
		"email":    "Tony@Avengers.com",
		"password": "notironman",
	}, &payload)

	assert.False(t, payload.Success)
	assert.Equal(t, "Email already exists", payload.Message)
}

func TestSignupWithInvalidPayload(t *testing.T) {
	ts := newTestServer(t, nil)

	testCases := []struct {
		description string
		body        interface{}
	}{
		{"Should reject malformed json", `{"email": `},
		{"Should reject a missing password", map[string]string{"name": "Tony", "phone": "1", "email": "tony@avengers.com"}},
		{"Should reject a password with spaces", map[string]string{"name": "Tony", "phone": "1", "email": "tony@avengers.com", "password": "iam ironman"}},
		{"Should reject an invalid email", map[string]string{"name": "Tony", "phone": "1", "email": "tony", "password": "iam1ronman"}},
	}

	for _, tcase := range testCases {
		t.Run(tcase.description, func(t *testing.T) {
			payload := ResponsePayload{}
			res := ts.do(t, newTestClient(t), "POST", "/api/signup", tcase.body, &payload)

			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			assert.False(t, payload.Success)
		})
	}
}

func TestContactsAreOnlyVisibleToTheirOwner(t *testing.T) {
	ts := newTestServer(t, nil)
	tony, peter := newTestClient(t), newTestClient(t)
	ts.signUp(t, tony, "tony@avengers.com")
	ts.signUp(t, peter, "peter@avengers.com")

	contact := models.Contact{}
	ts.do(t, tony, "POST", "/api/contacts", map[string]string{
		"name":         "Pepper",
		"phone":        "+14165550111",
		"email":        "pepper@stark.com",
		"relationship": "partner",
	}, &contact)
	assert.NotZero(t, contact.ID)
	assert.Equal(t, "tony@avengers.com", contact.UserEmail)
	contactPath := fmt.Sprintf("/api/contacts/%v", contact.ID)

	contacts := []models.Contact{}
	ts.do(t, peter, "GET", "/api/contacts", nil, &contacts)
	assert.Empty(t, contacts, "Contacts of other users should not be visible")

	payload := ResponsePayload{}
	ts.do(t, peter, "PUT", contactPath, map[string]string{"name": "Hacked"}, &payload)
	assert.False(t, payload.Success, "Contacts of other users should not be editable")

	payload = ResponsePayload{}
	ts.do(t, peter, "DELETE", contactPath, nil, &payload)
	assert.False(t, payload.Success, "Contacts of other users should not be deletable")

	ts.do(t, tony, "GET", "/api/contacts", nil, &contacts)
	assert.Len(t, contacts, 1)
	assert.Equal(t, "Pepper", contacts[0].Name)

	payload = ResponsePayload{}
	ts.do(t, tony, "PUT", contactPath, map[string]string{"name": "Pepper Potts", "user": "peter@avengers.com"}, &payload)
	assert.True(t, payload.Success)

	ts.do(t, tony, "GET", "/api/contacts", nil, &contacts)
	assert.Equal(t, "Pepper Potts", contacts[0].Name)
	assert.Equal(t, "tony@avengers.com", contacts[0].UserEmail, "Owner should not be editable")

	payload = ResponsePayload{}
	ts.do(t, tony, "DELETE", contactPath, nil, &payload)
	assert.True(t, payload.Success)

	ts.do(t, tony, "GET", "/api/contacts", nil, &contacts)
	assert.Empty(t, contacts)
}

func TestContactRoutesWithOversizedID(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t)
	ts.signUp(t, client, "tony@avengers.com")

	for _, name := range []string{"Pepper", "Happy"} {
		ts.do(t, client, "POST", "/api/contacts", map[string]string{
			"name": name, "phone": "+14165550111", "relationship": "friend",
		}, nil)
	}

	testCases := []struct {
		description string
		method      string
		id          string
	}{
		{"Should not delete anything for an id beyond int64", "DELETE", "99999999999999999999"},
		{"Should not delete anything for an id beyond uint64", "DELETE", "999999999999999999999999999"},
		{"Should not update anything for an id beyond int64", "PUT", "99999999999999999999"},
	}

	for _, tcase := range testCases {
		t.Run(tcase.description, func(t *testing.T) {
			payload := ResponsePayload{}
			res := ts.do(t, client, tcase.method, "/api/contacts/"+tcase.id, map[string]string{"name": "Hacked"}, &payload)
			assert.Equal(t, http.StatusOK, res.StatusCode)
			assert.False(t, payload.Success)
			assert.Equal(t, "Contact not found", payload.Message)

			contacts := []models.Contact{}
			ts.do(t, client, "GET", "/api/contacts", nil, &contacts)
			assert.Len(t, contacts, 2)
			assert.Equal(t, "Pepper", contacts[0].Name)
			assert.Equal(t, "Happy", contacts[1].Name)
		})
	}
}

func TestContactsWhenLoggedOut(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t)

	contacts := []models.Contact{}
	res := ts.do(t, client, "GET", "/api/contacts", nil, &contacts)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Empty(t, contacts)

	for _, method := range []string{"POST", "PUT", "DELETE"} {
		t.Run(fmt.Sprintf("%v should fail", method), func(t *testing.T) {
			path := "/api/contacts"
			if method != "POST" {
				path = "/api/contacts/1"
			}

			payload := ResponsePayload{Success: true}
			ts.do(t, client, method, path, map[string]string{"name": "Pepper"}, &payload)
			assert.False(t, payload.Success)
		})
	}
}

func TestUpdateContactValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t)
	ts.signUp(t, client, "tony@avengers.com")

	contact := models.Contact{}
	ts.do(t, client, "POST", "/api/contacts", map[string]string{
		"name": "Happy", "phone": "+14165550112", "relationship": "driver",
	}, &contact)

	testCases := []struct {
		description string
		body        interface{}
	}{
		{"Should reject unknown fields only", map[string]string{"nickname": "Hap"}},
		{"Should reject an empty name", map[string]string{"name": " "}},
		{"Should reject an invalid email", map[string]string{"email": "happy"}},
		{"Should reject non string values", map[string]interface{}{"phone": 4165550112}},
	}

	for _, tcase := range testCases {
		t.Run(tcase.description, func(t *testing.T) {
			payload := ResponsePayload{}
			res := ts.do(t, client, "PUT", fmt.Sprintf("/api/contacts/%v", contact.ID), tcase.body, &payload)
			assert.Equal(t, http.StatusBadRequest, res.StatusCode)
			assert.False(t, payload.Success)
		})
	}
}

func TestTriggerSOS(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t)
	ts.signUp(t, client, "tony@avengers.com")

	response := SosResponse{}
	res := ts.do(t, client, "POST", "/api/sos", map[string]interface{}{
		"location": map[string]float64{"lat": 12.9, "lon": 77.6},
	}, &response)

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, response.Success)
	assert.Equal(t, "SOS sent to 0 contacts!", response.Message)
	assert.Equal(t, 0, response.Alert.ContactsNotified)
	assert.Equal(t, "SOS", response.Alert.Type)
	assert.Equal(t, "Place(12.9,77.6)", *response.Alert.Location)
	assert.Equal(t, "No contacts to notify or SMS disabled.", response.SmsResult["error"])
}

func TestTriggerSOSNotifiesContacts(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t)
	ts.signUp(t, client, "tony@avengers.com")

	ts.do(t, client, "POST", "/api/contacts", map[string]string{
		"name": "Pepper", "phone": "+14165550111", "email": "pepper@stark.com", "relationship": "partner",
	}, nil)

	response := SosResponse{}
	ts.do(t, client, "POST", "/api/sos", map[string]interface{}{"location": "12.9,77.6"}, &response)

	assert.Equal(t, "SOS sent to 1 contacts!", response.Message)
	assert.Equal(t, [][]string{{"+14165550111"}}, ts.sms.numbers)
	assert.Equal(t, [][]string{{"pepper@stark.com"}}, ts.mailer.recipients)
}

func TestTriggerSOSWhenLoggedOut(t *testing.T) {
	ts := newTestServer(t, nil)

	payload := ResponsePayload{}
	res := ts.do(t, newTestClient(t), "POST", "/api/sos", map[string]interface{}{}, &payload)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.False(t, payload.Success)
	assert.Equal(t, "Not logged in", payload.Message)

	payload = ResponsePayload{}
	res = ts.do(t, newTestClient(t), "POST", "/api/sos-offline", map[string]interface{}{}, &payload)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.False(t, payload.Success)
	assert.Equal(t, "Not logged in", payload.Message)
}

func TestTriggerQueuedSOS(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t)
	ts.signUp(t, client, "tony@avengers.com")

	testCases := []struct {
		description      string
		body             map[string]interface{}
		expectedType     string
		expectedQueuedAt bool
	}{
		{
			"Should label alerts raised by the ai",
			map[string]interface{}{
				"location":  map[string]float64{"lat": 12.9, "lon": 77.6},
				"source":    "ai",
				"timestamp": "2022-03-04T10:30:00.000Z",
			},
			"(Queued / AI)",
			true,
		},
		{
			"Should default to a manual source",
			map[string]interface{}{"location": nil, "timestamp": "yesterday"},
			"(Queued / MANUAL)",
			false,
		},
	}

	for _, tcase := range testCases {
		t.Run(tcase.description, func(t *testing.T) {
			response := SosResponse{}
			ts.do(t, client, "POST", "/api/sos-offline", tcase.body, &response)

			assert.True(t, response.Success)
			assert.Equal(t, "Queued SOS processed and sent to 0 contacts!", response.Message)
			assert.Equal(t, tcase.expectedType, response.Alert.Type)
			assert.Equal(t, tcase.expectedQueuedAt, response.Alert.QueuedAt != nil)
		})
	}
}

func TestHistoryIsMostRecentFirst(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t)
	ts.signUp(t, client, "tony@avengers.com")

	ts.do(t, client, "POST", "/api/sos", map[string]interface{}{}, nil)
	ts.do(t, client, "POST", "/api/sos-offline", map[string]interface{}{"source": "ai"}, nil)

	alerts := []models.Alert{}
	ts.do(t, client, "GET", "/api/history", nil, &alerts)
	assert.Len(t, alerts, 2)
	assert.Equal(t, "(Queued / AI)", alerts[0].Type)
	assert.Equal(t, "SOS", alerts[1].Type)
	assert.Equal(t, models.UNKNOWN_LOCATION, *alerts[1].Location)

	ts.do(t, newTestClient(t), "GET", "/api/history", nil, &alerts)
	assert.Empty(t, alerts, "History should be empty when logged out")
}

func TestHistoryWithEncryptedLocations(t *testing.T) {
	encodedKey, err := cipher.GenerateKey()
	assert.Nil(t, err)
	locationCipher, err := cipher.New(encodedKey)
	assert.Nil(t, err)

	ts := newTestServer(t, locationCipher)
	client := newTestClient(t)
	ts.signUp(t, client, "tony@avengers.com")

	response := SosResponse{}
	ts.do(t, client, "POST", "/api/sos", map[string]interface{}{
		"location": map[string]float64{"lat": 12.9, "lon": 77.6},
	}, &response)
	assert.Nil(t, response.Alert.Location)
	assert.NotNil(t, response.Alert.LocationEnc)

	stored, err := models.AlertsFor("tony@avengers.com")
	assert.Nil(t, err)
	assert.Nil(t, stored[0].Location, "Location should never be stored in plaintext")

	alerts := []models.Alert{}
	ts.do(t, client, "GET", "/api/history", nil, &alerts)
	assert.Equal(t, "Place(12.9,77.6)", *alerts[0].Location)
}

func TestJWKSVerifiesSessionTokens(t *testing.T) {
	ts := newTestServer(t, nil)

	res, err := newTestClient(t).Get(ts.URL + "/.well-known/jwks.json")
	assert.Nil(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	assert.Nil(t, err)

	set, err := jwk.Parse(body)
	assert.Nil(t, err)
	assert.Equal(t, 1, set.Len())

	publicJWK, ok := set.LookupKeyID(key.KEY_ID)
	assert.True(t, ok)

	publicKey, err := key.PublicKeyFromJWK(publicJWK)
	assert.Nil(t, err)

	token, err := auth.NewSessionToken("tony@avengers.com", "Tony", time.Hour, sessionTestKeyPair(t))
	assert.Nil(t, err)

	claims, err := auth.DecodeJWT(token, &key.KeyPair{Kid: key.KEY_ID, PublicKey: publicKey})
	assert.Nil(t, err)
	assert.Equal(t, "tony@avengers.com", claims.Subject)
}

func TestOperationalRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	client := newTestClient(t)

	payload := ResponsePayload{}
	res := ts.do(t, client, "GET", "/healthz", nil, &payload)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.True(t, payload.Success)

	res, err := client.Get(ts.URL + "/metrics")
	assert.Nil(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	assert.Nil(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `haven_http_requests_total{method="GET",route="/healthz",status="2xx"} 1`)
}
