package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	GRPC      GRPCConfig      `mapstructure:"grpc"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Studio    StudioConfig    `mapstructure:"studio"`
	Booking   BookingConfig   `mapstructure:"booking"`
	Calendar  CalendarConfig  `mapstructure:"calendar"`
	WhatsApp  WhatsAppConfig  `mapstructure:"whatsapp"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	S3        S3Config        `mapstructure:"s3"`
	Admin     AdminConfig     `mapstructure:"admin"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type GRPCConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URL        string `mapstructure:"url"`
	Migrations string `mapstructure:"migrations"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type StudioConfig struct {
	Name     string `mapstructure:"name"`
	Timezone string `mapstructure:"timezone"`
}

type BookingConfig struct {
	RatePerMinute int `mapstructure:"rate_per_minute"`
	AuthPerMinute int `mapstructure:"auth_per_minute"`
}

type CalendarConfig struct {
	ID              string `mapstructure:"id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
}

type WhatsAppConfig struct {
	APIURL        string `mapstructure:"api_url"`
	PhoneNumberID string `mapstructure:"phone_number_id"`
	Token         string `mapstructure:"token"`
}

type RemindersConfig struct {
	Secret          string `mapstructure:"secret"`
	SchedulerHeader string `mapstructure:"scheduler_header"`
	Schedule        string `mapstructure:"schedule"`
}

type S3Config struct {
	Endpoint        string        `mapstructure:"endpoint"`
	Region          string        `mapstructure:"region"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	BucketName      string        `mapstructure:"bucket_name"`
	URLExpiry       time.Duration `mapstructure:"url_expiry"`
}

type AdminConfig struct {
	Email    string `mapstructure:"email"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

// Location resolves the studio time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Studio.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: studio.timezone: %w", err)
	}
	return loc, nil
}

var defaults = map[string]any{
	"server.address":             ":8080",
	"grpc.address":               ":50051",
	"database.url":               "",
	"database.migrations":        "db/migrations",
	"jwt.secret":                 "",
	"jwt.expiration":             "1h",
	"studio.name":                "the studio",
	"studio.timezone":            "UTC",
	"booking.rate_per_minute":    5,
	"booking.auth_per_minute":    10,
	"calendar.id":                "",
	"calendar.credentials_file":  "",
	"calendar.credentials_json":  "",
	"whatsapp.api_url":           "",
	"whatsapp.phone_number_id":   "",
	"whatsapp.token":             "",
	"reminders.secret":           "",
	"reminders.scheduler_header": "X-Appengine-Cron",
	"reminders.schedule":         "",
	"s3.endpoint":                "",
	"s3.region":                  "us-east-1",
	"s3.access_key_id":           "",
	"s3.secret_access_key":       "",
	"s3.bucket_name":             "",
	"s3.url_expiry":              "15m",
	"admin.email":                "",
	"admin.password":             "",
	"admin.name":                 "Studio Admin",
}

// Load reads .env (when present), then config.yaml from path, then the
// environment. SERVER_ADDRESS overrides server.address and so on.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	var cfg Config
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("config: read: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("config: database.url is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("config: jwt.secret is required")
	}
	if c.Booking.RatePerMinute < 1 {
		return fmt.Errorf("config: booking.rate_per_minute must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
