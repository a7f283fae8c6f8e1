package server

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Daskott/haven/server/auth/key"
	"github.com/Daskott/haven/server/cipher"
	"github.com/Daskott/haven/server/cron"
	"github.com/Daskott/haven/server/geocoder"
	"github.com/Daskott/haven/server/gstorage"
	"github.com/Daskott/haven/server/logger"
	"github.com/Daskott/haven/server/metrics"
	"github.com/Daskott/haven/server/models"
	"github.com/Daskott/haven/server/notify"
	"github.com/Daskott/haven/server/sos"
	"github.com/Daskott/haven/server/twilio"
	"github.com/Daskott/haven/shared"
	"github.com/go-playground/validator"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	DEFAULT_SESSION_TTL         = 24 * time.Hour
	DEFAULT_HTTP_CLIENT_TIMEOUT = 10 * time.Second
)

var logg = logger.NewLogger()

// Dependencies are what the http layer needs to serve requests.
type Dependencies struct {
	KeyPair    *key.KeyPair
	Dispatcher *sos.Dispatcher

	// Decrypter reveals encrypted alert locations. nil when no cipher key is set.
	Decrypter     models.Decrypter
	Metrics       *metrics.Metrics
	Registry      *prometheus.Registry
	SessionTTL    time.Duration
	SecureCookies bool
}

type App struct {
	keyPair       *key.KeyPair
	dispatcher    *sos.Dispatcher
	decrypter     models.Decrypter
	metrics       *metrics.Metrics
	registry      *prometheus.Registry
	sessionTTL    time.Duration
	secureCookies bool
	validate      *validator.Validate
	pages         map[string]*template.Template
}

func NewApp(deps Dependencies) (*App, error) {
	validate := validator.New()
	if err := RegisterValidators(validate); err != nil {
		return nil, err
	}

	pages, err := parsePages()
	if err != nil {
		return nil, err
	}

	sessionTTL := deps.SessionTTL
	if sessionTTL <= 0 {
		sessionTTL = DEFAULT_SESSION_TTL
	}

	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	return &App{
		keyPair:       deps.KeyPair,
		dispatcher:    deps.Dispatcher,
		decrypter:     deps.Decrypter,
		metrics:       deps.Metrics,
		registry:      registry,
		sessionTTL:    sessionTTL,
		secureCookies: deps.SecureCookies,
		validate:      validate,
		pages:         pages,
	}, nil
}

func (app *App) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(app.loggingMiddleware, app.sessionMiddleware)

	router.HandleFunc("/", app.index).Methods("GET")
	router.HandleFunc("/signup", app.renderPage("signup", "Sign up")).Methods("GET")
	router.HandleFunc("/login", app.renderPage("login", "Log in")).Methods("GET")

	router.Handle("/home", pageAuthMiddleware(app.renderPage("home", "Home"))).Methods("GET")
	router.Handle("/contacts", pageAuthMiddleware(app.renderPage("contacts", "Contacts"))).Methods("GET")
	router.Handle("/history", pageAuthMiddleware(app.renderPage("history", "History"))).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/signup", app.signUp).Methods("POST")
	api.HandleFunc("/login", app.logIn).Methods("POST")
	api.HandleFunc("/logout", app.logOut).Methods("POST")
	api.HandleFunc("/contacts", app.contacts).Methods("GET")
	api.HandleFunc("/contacts", app.createContact).Methods("POST")
	api.HandleFunc("/contacts/{id:[0-9]+}", app.updateContact).Methods("PUT")
	api.HandleFunc("/contacts/{id:[0-9]+}", app.deleteContact).Methods("DELETE")
	api.HandleFunc("/history", app.history).Methods("GET")
	api.HandleFunc("/sos", app.triggerSOS).Methods("POST")
	api.HandleFunc("/sos-offline", app.triggerQueuedSOS).Methods("POST")

	router.HandleFunc("/.well-known/jwks.json", app.jwks).Methods("GET")
	router.HandleFunc("/healthz", app.healthz).Methods("GET")
	router.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{})).Methods("GET")

	return router
}

func Start(config *shared.ServerConfig, devMode bool) {
	ctx := context.Background()
	configDir := configDirectory(devMode)

	var backup *sqliteBackup
	if config.Google.Storage.EnableSqliteBackupAndSync {
		gStorage, err := gstorage.NewGStorage(ctx, config.Google.ApplicationCredentials)
		fatalOnError(err)
		defer gStorage.Close()

		backup = newSqliteBackup(gStorage, config.Google.Storage, configDir, cron.NewCronScheduler(config.Haven.Cron.TimeZone))
		fatalOnError(backup.Restore(ctx))
	}

	fatalOnError(models.AutoMigrate(config.Sqlite.PassPhrase, configDir))

	deps, err := buildDependencies(config)
	fatalOnError(err)

	app, err := NewApp(deps)
	fatalOnError(err)

	if backup != nil {
		fatalOnError(backup.Schedule())
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%v", config.Haven.Listener.Port),
		WriteTimeout: time.Second * 30,
		ReadTimeout:  time.Second * 15,
		IdleTimeout:  time.Second * 60,
		Handler:      app.Router(),
	}

	go serve(server)

	// Wait for an interrupt, then clean up
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	<-sigs

	cleanup(server, backup)
}

// buildDependencies wires the configured senders, cipher and keys.
// Missing credentials disable the matching feature rather than failing.
func buildDependencies(config *shared.ServerConfig) (Dependencies, error) {
	keyPair, err := sessionKeyPair(config.Haven.PrivateKeyPem)
	if err != nil {
		return Dependencies{}, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.New(registry)

	timeout := httpClientTimeout(config)
	mailer := notify.NewSMTPMailer(config.Mail)
	if !mailer.Enabled() {
		logg.Warn("MAIL_USERNAME/MAIL_PASSWORD not set, SOS emails are disabled")
	}

	deps := Dependencies{
		KeyPair:       keyPair,
		Metrics:       appMetrics,
		Registry:      registry,
		SessionTTL:    config.Haven.SessionTTL,
		SecureCookies: config.Haven.SecureCookies,
	}

	opts := sos.Options{
		Geocoder: geocoder.NewNominatim(config.Geocoder, timeout),
		Sms:      smsSender(config, timeout),
		Mailer:   mailer,
		Store:    models.SosStore{},
		Metrics:  appMetrics,
	}

	if config.Haven.FernetKey != "" {
		locationCipher, err := cipher.New(config.Haven.FernetKey)
		if err != nil {
			return Dependencies{}, err
		}
		opts.Cipher = locationCipher
		deps.Decrypter = locationCipher
	} else {
		logg.Warn("FERNET_KEY not set, alert locations are stored in plaintext")
	}

	deps.Dispatcher = sos.NewDispatcher(opts)
	return deps, nil
}

// smsSender prefers twilio when it's configured, and falls back to Fast2SMS.
func smsSender(config *shared.ServerConfig, timeout time.Duration) notify.SmsSender {
	if config.Twilio.TwilioEnabled() {
		logg.Info("Sending SOS sms with twilio")
		return twilio.NewClient(config.Twilio)
	}

	fast2sms := notify.NewFast2SMS(config.Fast2SMS, timeout)
	if !fast2sms.Enabled() {
		logg.Warn("FAST2SMS_API_KEY not set, SOS sms are disabled")
	}
	return fast2sms
}

// httpClientTimeout bounds every call to the geocoder and sms gateway.
func httpClientTimeout(config *shared.ServerConfig) time.Duration {
	if config.Haven.HttpClientTimeout <= 0 {
		return DEFAULT_HTTP_CLIENT_TIMEOUT
	}
	return config.Haven.HttpClientTimeout
}

// sessionKeyPair loads the key that signs session cookies. Older deployments set
// SECRET_KEY to a plain secret; that gets the same ephemeral key as no SECRET_KEY.
func sessionKeyPair(privateKeyPem string) (*key.KeyPair, error) {
	if privateKeyPem == "" {
		logg.Warn("SECRET_KEY not set, sessions will not survive a restart")
		return key.NewEphemeralKeyPair()
	}

	keyPair, err := key.NewKeyPairFromRSAPrivateKeyPem(privateKeyPem)
	if err != nil {
		logg.Warnf("SECRET_KEY is not an RSA private key (%v), sessions will not survive a restart", err)
		return key.NewEphemeralKeyPair()
	}

	return keyPair, nil
}
