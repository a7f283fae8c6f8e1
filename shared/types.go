package shared

import "time"

// Fast2SMSPlaceholderKey is the value shipped in sample .env files. It is treated as "no key".
const Fast2SMSPlaceholderKey = "your-fast2sms-key-here"

type ServerConfig struct {
	Sqlite   SqliteConfig   `mapstructure:"sqlite" validate:"required"`
	Haven    HavenConfig    `mapstructure:"haven" validate:"required"`
	Mail     MailConfig     `mapstructure:"mail"`
	Fast2SMS Fast2SMSConfig `mapstructure:"fast2sms"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	Geocoder GeocoderConfig `mapstructure:"geocoder"`
	Google   GoogleConfig   `mapstructure:"google"`
}

type SqliteConfig struct {
	PassPhrase string `mapstructure:"passPhrase" validate:"required"`
}

type HavenConfig struct {
	// PrivateKeyPem signs session cookies. When empty a key is generated on start up,
	// so sessions do not survive a restart.
	PrivateKeyPem string `mapstructure:"privateKeyPem"`

	// FernetKey enables at-rest encryption of alert locations.
	FernetKey         string         `mapstructure:"fernetKey"`
	SessionTTL        time.Duration  `mapstructure:"sessionTTL"`
	SecureCookies     bool           `mapstructure:"secureCookies"`
	HttpClientTimeout time.Duration  `mapstructure:"httpClientTimeout"`
	Cron              CronConfig     `mapstructure:"cron" validate:"required"`
	Listener          ListenerConfig `mapstructure:"listener" validate:"required"`
}

type MailConfig struct {
	Server   string `mapstructure:"server"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type Fast2SMSConfig struct {
	ApiKey   string `mapstructure:"apiKey"`
	Url      string `mapstructure:"url"`
	SenderID string `mapstructure:"senderId"`
}

type TwilioConfig struct {
	AccountSid          string `mapstructure:"accountSid"`
	AuthToken           string `mapstructure:"authToken"`
	MessagingServiceSid string `mapstructure:"messagingServiceSid"`
}

type GeocoderConfig struct {
	Url       string `mapstructure:"url"`
	UserAgent string `mapstructure:"userAgent"`
}

type GoogleConfig struct {
	ApplicationCredentials string        `mapstructure:"applicationCredentials"`
	Storage                StorageConfig `mapstructure:"storage"`
}

type CronConfig struct {
	TimeZone string `mapstructure:"timeZone" validate:"required"`
}

type ListenerConfig struct {
	Port int `mapstructure:"port" validate:"required"`
}

type StorageConfig struct {
	Bucket                    string `mapstructure:"bucket" validate:"required_with=EnableSqliteBackupAndSync"`
	Prefix                    string `mapstructure:"prefix" validate:"required_with=EnableSqliteBackupAndSync"`
	SqliteBackupSchedule      string `mapstructure:"sqliteBackupSchedule" validate:"required_with=EnableSqliteBackupAndSync"`
	EnableSqliteBackupAndSync bool   `mapstructure:"enableSqliteBackupAndSync"`
}

// TwilioEnabled reports whether enough twilio credentials are set to send messages.
func (tc TwilioConfig) TwilioEnabled() bool {
	return tc.AccountSid != "" && tc.AuthToken != "" && tc.MessagingServiceSid != ""
}
