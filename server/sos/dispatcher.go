// Package sos sends an SOS to a user's emergency contacts and records it in
// the user's alert history.
package sos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Daskott/haven/server/geocoder"
	"github.com/Daskott/haven/server/logger"
	"github.com/Daskott/haven/server/metrics"
	"github.com/Daskott/haven/server/models"
	"github.com/Daskott/haven/server/notify"
	"github.com/pkg/errors"
)

const (
	SOS_LABEL      = "SOS"
	DEFAULT_SOURCE = "manual"

	// Shortest phone number worth handing to the sms gateway
	MIN_PHONE_LENGTH = 10
	SMS_DISABLED_MSG = "No contacts to notify or SMS disabled."
)

var logg = logger.NewLogger()

type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) string
}

type Encrypter interface {
	Encrypt(plaintext string) (string, error)
}

type Store interface {
	ContactsFor(email string) ([]models.Contact, error)
	RecordAlert(alert *models.Alert) error
}

type Request struct {
	UserEmail string
	Location  *Coordinates
	Label     string
	QueuedAt  *time.Time
}

type Result struct {
	Alert     *models.Alert
	SmsResult notify.SmsResult
}

type Options struct {
	Geocoder Geocoder
	Sms      notify.SmsSender
	Mailer   notify.EmailSender
	Store    Store

	// Cipher is optional. Without it locations are stored in plaintext.
	Cipher  Encrypter
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type Dispatcher struct {
	geocoder Geocoder
	sms      notify.SmsSender
	mailer   notify.EmailSender
	store    Store
	cipher   Encrypter
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewDispatcher(opts Options) *Dispatcher {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		geocoder: opts.Geocoder,
		sms:      opts.Sms,
		mailer:   opts.Mailer,
		store:    opts.Store,
		cipher:   opts.Cipher,
		metrics:  opts.Metrics,
		now:      now,
	}
}

// TriggerSOS dispatches an immediate SOS for 'email'.
func (d *Dispatcher) TriggerSOS(ctx context.Context, email string, location *Coordinates) (*Result, error) {
	return d.Dispatch(ctx, Request{UserEmail: email, Location: location, Label: SOS_LABEL})
}

// TriggerQueued dispatches an SOS that was queued on the client while it was
// offline. 'source' says what raised it, e.g. "manual" or "ai".
func (d *Dispatcher) TriggerQueued(ctx context.Context, email string, location *Coordinates, source string, queuedAt *time.Time) (*Result, error) {
	return d.Dispatch(ctx, Request{
		UserEmail: email,
		Location:  location,
		Label:     QueuedLabel(source),
		QueuedAt:  queuedAt,
	})
}

func QueuedLabel(source string) string {
	source = strings.TrimSpace(source)
	if source == "" {
		source = DEFAULT_SOURCE
	}
	return fmt.Sprintf("(Queued / %s)", strings.ToUpper(source))
}

// Dispatch resolves the request location, notifies the user's contacts by email
// and sms, then records the alert. Notification failures are logged and never
// stop the alert from being recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	now := d.now()
	place, mapsLink := d.resolve(ctx, req.Location)

	contacts, err := d.store.ContactsFor(req.UserEmail)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load contacts")
	}

	d.sendEmail(ctx, req, contacts, place, mapsLink, now)
	smsResult := d.sendSms(ctx, req, contacts, place, mapsLink)

	alert := &models.Alert{
		UserEmail:        req.UserEmail,
		Timestamp:        now,
		ContactsNotified: len(contacts),
		Type:             strings.TrimSpace(req.Label),
		QueuedAt:         req.QueuedAt,
	}

	if d.cipher != nil {
		locationEnc, err := d.cipher.Encrypt(place)
		if err != nil {
			return nil, errors.Wrap(err, "unable to encrypt location")
		}
		alert.LocationEnc = &locationEnc
	} else {
		alert.Location = &place
	}

	if err := d.store.RecordAlert(alert); err != nil {
		return nil, errors.Wrap(err, "unable to record alert")
	}

	d.metrics.ObserveAlert(variant(req))
	logg.Infof("%v alert %v recorded for %v, %v contact(s) notified",
		alert.Type, alert.ID, alert.UserEmail, alert.ContactsNotified)

	return &Result{Alert: alert, SmsResult: smsResult}, nil
}

func (d *Dispatcher) resolve(ctx context.Context, location *Coordinates) (string, string) {
	if location == nil {
		return models.UNKNOWN_LOCATION, ""
	}

	return d.geocoder.Reverse(ctx, location.Lat, location.Lon),
		geocoder.MapsLink(location.Lat, location.Lon)
}

func (d *Dispatcher) sendEmail(ctx context.Context, req Request, contacts []models.Contact, place, mapsLink string, now time.Time) {
	recipients := emailRecipients(contacts)
	if len(recipients) == 0 || d.mailer == nil || !d.mailer.Enabled() {
		d.metrics.ObserveNotification("email", "skipped")
		return
	}

	err := d.mailer.Send(ctx, EmailSubject(req.Label), recipients, EmailBody(req.UserEmail, req.Label, place, mapsLink, now))
	if err != nil {
		logg.Errorf("unable to send SOS email for %v: %v", req.UserEmail, err)
		d.metrics.ObserveNotification("email", "failed")
		return
	}

	d.metrics.ObserveNotification("email", "sent")
}

func (d *Dispatcher) sendSms(ctx context.Context, req Request, contacts []models.Contact, place, mapsLink string) notify.SmsResult {
	numbers := smsNumbers(contacts)
	if len(numbers) == 0 || d.sms == nil || !d.sms.Enabled() {
		d.metrics.ObserveNotification("sms", "skipped")
		return notify.ErrorResult(SMS_DISABLED_MSG)
	}

	result, err := d.sms.Send(ctx, SmsMessage(req.UserEmail, req.Label, place, mapsLink), numbers)
	if err != nil {
		logg.Errorf("unable to send SOS sms for %v: %v", req.UserEmail, err)
		d.metrics.ObserveNotification("sms", "failed")
		return notify.ErrorResult(err.Error())
	}

	logg.Infof("sms provider response: %v", result)
	d.metrics.ObserveNotification("sms", "sent")
	return result
}

// ---------------------------------------------------------------------------------//
// Message helpers
// --------------------------------------------------------------------------------//

func SmsMessage(email, label, place, mapsLink string) string {
	return fmt.Sprintf("EMERGENCY SOS! User %s needs help! %s\nLocation: %s\nNavigate: %s\n",
		email, label, place, mapsLink)
}

func EmailSubject(label string) string {
	return fmt.Sprintf("EMERGENCY SOS Alert! %s", label)
}

func EmailBody(email, label, place, mapsLink string, at time.Time) string {
	return fmt.Sprintf("User %s needs help! %s\nLocation: %s\nNavigate: %s\nTime: %s\nPlease respond urgently.",
		email, label, place, mapsLink, at.Format("2006-01-02 15:04:05"))
}

func emailRecipients(contacts []models.Contact) []string {
	recipients := []string{}
	for _, contact := range contacts {
		if strings.TrimSpace(contact.Email) != "" {
			recipients = append(recipients, contact.Email)
		}
	}
	return recipients
}

func smsNumbers(contacts []models.Contact) []string {
	numbers := []string{}
	for _, contact := range contacts {
		if len(contact.Phone) >= MIN_PHONE_LENGTH {
			numbers = append(numbers, contact.Phone)
		}
	}
	return numbers
}

func variant(req Request) string {
	if req.Label == SOS_LABEL {
		return "immediate"
	}
	return "queued"
}
