package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Daskott/haven/server/auth/key"
	"github.com/Daskott/haven/server/models"
	"github.com/Daskott/haven/server/sos"
	"github.com/gorilla/mux"
)

var editableContactFields = map[string]bool{"name": true, "phone": true, "email": true, "relationship": true}

func (app *App) signUp(rw http.ResponseWriter, r *http.Request) {
	data := SignupRequest{}
	if err := decodeBody(r, &data); err != nil {
		writeResponse(rw, ResponsePayload{Message: "invalid request body", Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	if errs := app.validate.Struct(data); errs != nil {
		writeResponse(rw, ResponsePayload{Message: "invalid signup details", Errors: validationErrors(errs)}, http.StatusBadRequest)
		return
	}

	user := models.User{Name: data.Name, Phone: data.Phone, Email: data.Email, Password: data.Password}
	err := models.CreateUser(&user)
	if errors.Is(err, models.ErrDuplicateEmail) {
		writeJSON(rw, ResponsePayload{Message: "Email already exists"}, http.StatusOK)
		return
	}

	if err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to create account", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	if err = app.setSessionCookie(rw, &user); err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to start session", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	writeJSON(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func (app *App) logIn(rw http.ResponseWriter, r *http.Request) {
	data := LoginRequest{}
	if err := decodeBody(r, &data); err != nil {
		writeResponse(rw, ResponsePayload{Message: "invalid request body", Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	user, err := models.Authenticate(data.Email, data.Password)
	if err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to log in", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	if user == nil {
		writeJSON(rw, ResponsePayload{Message: "Invalid credentials"}, http.StatusOK)
		return
	}

	if err = app.setSessionCookie(rw, user); err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to start session", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	writeJSON(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func (app *App) logOut(rw http.ResponseWriter, r *http.Request) {
	app.clearSessionCookie(rw)
	writeJSON(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func (app *App) contacts(rw http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	if user == nil {
		writeJSON(rw, []models.Contact{}, http.StatusOK)
		return
	}

	contacts, err := user.Contacts()
	if err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to load contacts", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	writeJSON(rw, contacts, http.StatusOK)
}

func (app *App) createContact(rw http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	if user == nil {
		writeJSON(rw, ResponsePayload{}, http.StatusOK)
		return
	}

	contact := models.Contact{}
	if err := decodeBody(r, &contact); err != nil {
		writeResponse(rw, ResponsePayload{Message: "invalid request body", Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	if errs := app.validate.Struct(contact); errs != nil {
		writeResponse(rw, ResponsePayload{Message: "invalid contact", Errors: validationErrors(errs)}, http.StatusBadRequest)
		return
	}

	if err := user.AddContact(&contact); err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to save contact", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	writeJSON(rw, contact, http.StatusOK)
}

func (app *App) updateContact(rw http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	if user == nil {
		writeJSON(rw, ResponsePayload{}, http.StatusOK)
		return
	}

	data := make(map[string]interface{})
	if err := decodeBody(r, &data); err != nil {
		writeResponse(rw, ResponsePayload{Message: "invalid request body", Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	removeUnknownFields(data, editableContactFields)
	if len(data) <= 0 {
		writeResponse(rw, ResponsePayload{Message: "valid fields required"}, http.StatusBadRequest)
		return
	}

	if errs := app.validateContactUpdate(data); len(errs) > 0 {
		writeResponse(rw, ResponsePayload{Message: "invalid contact", Errors: errs}, http.StatusBadRequest)
		return
	}

	id, ok := contactID(r)
	if !ok {
		writeJSON(rw, ResponsePayload{Message: "Contact not found"}, http.StatusOK)
		return
	}

	found, err := user.UpdateContact(id, data)
	if err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to update contact", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	if !found {
		writeJSON(rw, ResponsePayload{Message: "Contact not found"}, http.StatusOK)
		return
	}

	writeJSON(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func (app *App) deleteContact(rw http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	if user == nil {
		writeJSON(rw, ResponsePayload{}, http.StatusOK)
		return
	}

	id, ok := contactID(r)
	if !ok {
		writeJSON(rw, ResponsePayload{Message: "Contact not found"}, http.StatusOK)
		return
	}

	found, err := user.DeleteContact(id)
	if err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to delete contact", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	if !found {
		writeJSON(rw, ResponsePayload{Message: "Contact not found"}, http.StatusOK)
		return
	}

	writeJSON(rw, ResponsePayload{Success: true}, http.StatusOK)
}

func (app *App) history(rw http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	if user == nil {
		writeJSON(rw, []models.Alert{}, http.StatusOK)
		return
	}

	alerts, err := user.Alerts()
	if err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to load history", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	for i := range alerts {
		alerts[i] = alerts[i].Reveal(app.decrypter)
	}

	writeJSON(rw, alerts, http.StatusOK)
}

func (app *App) triggerSOS(rw http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	if user == nil {
		writeJSON(rw, ResponsePayload{Message: "Not logged in"}, http.StatusOK)
		return
	}

	data := SosRequest{}
	if err := decodeBody(r, &data); err != nil {
		writeResponse(rw, ResponsePayload{Message: "invalid request body", Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	result, err := app.dispatcher.TriggerSOS(r.Context(), user.Email, sos.ParseLocation(data.Location))
	if err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to send SOS", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	writeJSON(rw, SosResponse{
		Success:   true,
		Message:   fmt.Sprintf("SOS sent to %v contacts!", result.Alert.ContactsNotified),
		Alert:     result.Alert,
		SmsResult: result.SmsResult,
	}, http.StatusOK)
}

func (app *App) triggerQueuedSOS(rw http.ResponseWriter, r *http.Request) {
	user := sessionUser(r)
	if user == nil {
		writeResponse(rw, ResponsePayload{Message: "Not logged in"}, http.StatusUnauthorized)
		return
	}

	data := SosRequest{}
	if err := decodeBody(r, &data); err != nil {
		writeResponse(rw, ResponsePayload{Message: "invalid request body", Errors: []string{err.Error()}}, http.StatusBadRequest)
		return
	}

	result, err := app.dispatcher.TriggerQueued(
		r.Context(),
		user.Email,
		sos.ParseLocation(data.Location),
		data.Source,
		parseQueuedAt(data.Timestamp),
	)
	if err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to send SOS", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	writeJSON(rw, SosResponse{
		Success:   true,
		Message:   fmt.Sprintf("Queued SOS processed and sent to %v contacts!", result.Alert.ContactsNotified),
		Alert:     result.Alert,
		SmsResult: result.SmsResult,
	}, http.StatusOK)
}

func (app *App) jwks(rw http.ResponseWriter, r *http.Request) {
	publicJWK, err := app.keyPair.JWK()
	if err != nil {
		writeResponse(rw, ResponsePayload{Message: "unable to export key", Errors: []string{err.Error()}}, http.StatusInternalServerError)
		return
	}

	writeJSON(rw, key.ExportJWKAsJWKS(publicJWK), http.StatusOK)
}

func (app *App) healthz(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, ResponsePayload{Success: true}, http.StatusOK)
}

// ---------------------------------------------------------------------------------//
// Helper functions
// --------------------------------------------------------------------------------//

func (app *App) validateContactUpdate(data map[string]interface{}) []string {
	errs := []string{}
	for field, value := range data {
		str, ok := value.(string)
		if !ok {
			errs = append(errs, fmt.Sprintf("%v must be a string", field))
			continue
		}

		if field == "email" {
			if app.validate.Var(str, "omitempty,email") != nil {
				errs = append(errs, "email is invalid")
			}
			continue
		}

		if strings.TrimSpace(str) == "" {
			errs = append(errs, fmt.Sprintf("%v cannot be empty", field))
		}
	}

	return errs
}

// contactID reads the {id} route variable. Ids beyond the range of a sqlite
// integer can't exist.
func contactID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 63)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// parseQueuedAt reads the client's queue time. Values that aren't RFC 3339 are dropped.
func parseQueuedAt(timestamp string) *time.Time {
	if strings.TrimSpace(timestamp) == "" {
		return nil
	}

	queuedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(timestamp))
	if err != nil {
		logg.Infof("ignoring queued SOS timestamp %q: %v", timestamp, err)
		return nil
	}

	return &queuedAt
}
