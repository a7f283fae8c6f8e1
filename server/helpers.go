package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Daskott/haven/server/auth"
	"github.com/Daskott/haven/server/models"
	"github.com/Daskott/haven/utils"
	"github.com/go-playground/validator"
	"github.com/gorilla/mux"
)

const SESSION_COOKIE = "haven_session"

// ---------------------------------------------------------------------------------//
// Handler Helper functions
// --------------------------------------------------------------------------------//

func writeResponse(rw http.ResponseWriter, payLoad ResponsePayload, statusCode int) {
	if statusCode >= http.StatusInternalServerError {
		logg.Error(payLoad.Message, payLoad.Errors)
	} else if statusCode >= http.StatusBadRequest {
		logg.Info(payLoad.Message, payLoad.Errors)
	}

	writeJSON(rw, payLoad, statusCode)
}

func writeJSON(rw http.ResponseWriter, body interface{}, statusCode int) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(statusCode)

	if err := json.NewEncoder(rw).Encode(body); err != nil {
		logg.Errorf("writeJSON: %v", err)
	}
}

// decodeBody reads a json body into 'dest'. An empty body leaves 'dest' untouched.
func decodeBody(r *http.Request, dest interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dest)
	if err == io.EOF {
		return nil
	}
	return err
}

func removeUnknownFields(args map[string]interface{}, validFields map[string]bool) {
	for key := range args {
		if !validFields[key] {
			delete(args, key)
		}
	}
}

func validationErrors(err error) []string {
	return strings.Split(err.Error(), "\n")
}

func RegisterValidators(validate *validator.Validate) error {
	return validate.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		// if whitespace in password return false
		err := validate.Var(fl.Field().String(), "contains= ")
		if err == nil {
			return false
		}
		return len(fl.Field().String()) > 0
	})
}

// ---------------------------------------------------------------------------------//
// Session Helper functions
// --------------------------------------------------------------------------------//

func (app *App) setSessionCookie(rw http.ResponseWriter, user *models.User) error {
	token, err := auth.NewSessionToken(user.Email, user.Name, app.sessionTTL, app.keyPair)
	if err != nil {
		return err
	}

	http.SetCookie(rw, &http.Cookie{
		Name:     SESSION_COOKIE,
		Value:    token,
		Path:     "/",
		MaxAge:   int(app.sessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   app.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	return nil
}

func (app *App) clearSessionCookie(rw http.ResponseWriter) {
	http.SetCookie(rw, &http.Cookie{
		Name:     SESSION_COOKIE,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   app.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// userFromSessionCookie returns the user the session cookie was issued to, or
// nil if there is no valid cookie or the account no longer exists.
func (app *App) userFromSessionCookie(r *http.Request) *models.User {
	cookie, err := r.Cookie(SESSION_COOKIE)
	if err != nil || cookie.Value == "" {
		return nil
	}

	claims, err := auth.DecodeJWT(cookie.Value, app.keyPair)
	if err != nil {
		logg.Debugf("ignoring session cookie: %v", err)
		return nil
	}

	user, err := models.FindUserByEmail(claims.Subject)
	if err != nil {
		return nil
	}

	return user
}

func sessionUser(r *http.Request) *models.User {
	user, _ := r.Context().Value(sessionUserKey).(*models.User)
	return user
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return "unmatched"
	}

	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return "unmatched"
	}
	return tmpl
}

// ---------------------------------------------------------------------------------//
// Server Helper functions
// --------------------------------------------------------------------------------//

func serve(server *http.Server) {
	logg.Infof("Haven server is listening on port%v", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Fatal(err)
	}
}

func cleanup(server *http.Server, backup *sqliteBackup) {
	// Shutdown server gracefully
	ctxShutDown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctxShutDown); err != nil {
		logg.Fatalf("Haven server shutdown failed:%+s", err)
	}

	// No requests are in flight, so the last backup holds every alert
	if backup != nil {
		backup.Stop()
		if err := backup.Run(context.Background()); err != nil {
			logg.Errorf("final sqlite backup failed: %v", err)
		}
	}

	if err := models.Close(); err != nil {
		logg.Errorf("unable to close database: %v", err)
	}

	logg.Infof("Haven server stopped properly")
}

// configDirectory retrieves the directory to store haven data
// Or logs an error message and then calls os.Exit if it's unable to.
func configDirectory(devMode bool) string {
	// Use 'haven' folder in home directory for prod
	configFolderName := "haven"
	rootDir, err := os.UserHomeDir()
	fatalOnError(err)

	// Use 'dev' folder in current directory for dev mode
	if devMode {
		configFolderName = "dev"
		rootDir, err = os.Getwd()
		fatalOnError(err)
	}

	configDir := filepath.Join(rootDir, configFolderName)

	err = utils.CreateDirIfNotExist(configDir)
	fatalOnError(err)

	return configDir
}

func fatalOnError(err error) {
	if err != nil {
		logg.Fatal(err)
	}
}
