package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// minConfiguredLen guards against empty-string / placeholder secrets:
// a remote DSN or API key this short is treated as absent.
const minConfiguredLen = 5

type Config struct {
	Debug    bool
	TestMode bool
	Env      string
	Build    string
	AppName  string

	SecretKey string

	// AdminEmail is the only address allowed to register a mentor account.
	AdminEmail string

	DefaultFromEmail mail.Address
	SendgridApiKey   string
	RollbarToken     string

	GeminiApiKey string
	GeminiModel  string

	// DatabaseDSN doubles as the backend selector: when absent the
	// application runs in device-local mode.
	DatabaseDSN    string
	LocalStorePath string

	Server struct {
		Host               string
		DebugHost          string
		ShutdownTimeout    time.Duration
		JWTExpirationDelta time.Duration
	}
}

func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Instituto Hope")
	v.SetDefault("secretKey", "x1u$-hope)qg$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("adminEmail", "institutohopemdr@gmail.com")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("geminiModel", "gemini-2.5-flash")
	v.SetDefault("localStorePath", filepath.Join(".", "hope.db"))
	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err = godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Debug:            v.GetBool("debug"),
		TestMode:         env == "TEST",
		Env:              env,
		Build:            v.GetString("build"),
		AppName:          v.GetString("appName"),
		SecretKey:        v.GetString("secretKey"),
		AdminEmail:       CleanString(v.GetString("adminEmail"), true /* lower */),
		DefaultFromEmail: mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		GeminiApiKey:     v.GetString("geminiApiKey"),
		GeminiModel:      v.GetString("geminiModel"),
		DatabaseDSN:      v.GetString("databaseDsn"),
		LocalStorePath:   v.GetString("localStorePath"),
	}
	conf.Server.Host = v.GetString("serverHost")
	conf.Server.DebugHost = v.GetString("serverDebugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("serverShutdownTimeout")
	conf.Server.JWTExpirationDelta = v.GetDuration("jwtExpirationDelta")
	return conf
}

// RemoteConfigured reports whether the remote document store is usable.
// It is evaluated once at startup; a DSN appearing later in the process's
// life is never picked up. Pure: no I/O, no side effects.
func (c *Config) RemoteConfigured() bool {
	return len(strings.TrimSpace(c.DatabaseDSN)) > minConfiguredLen
}

// AIConfigured reports whether the generative-AI service may be called.
func (c *Config) AIConfigured() bool {
	return len(strings.TrimSpace(c.GeminiApiKey)) > minConfiguredLen
}
