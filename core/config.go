package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug        bool   `mapstructure:"debug"`
		TestMode     bool   `mapstructure:"testMode"`
		AppName      string `mapstructure:"appName"`
		Env          string `mapstructure:"env"`
		Build        string `mapstructure:"build"`
		SecretKey    string `mapstructure:"secretKey"`
		RollbarToken string `mapstructure:"rollbarToken"`

		PasswordResetTimeoutDelta time.Duration `mapstructure:"passwordResetTimeoutDelta"`

		Server   ServerConfig   `mapstructure:"server"`
		Database DatabaseConfig `mapstructure:"database"`
		Uploads  UploadsConfig  `mapstructure:"uploads"`
		Security SecurityConfig `mapstructure:"security"`
		Email    EmailConfig    `mapstructure:"email"`
	}

	ServerConfig struct {
		Host                      string        `mapstructure:"host"`
		DebugHost                 string        `mapstructure:"debugHost"`
		DisableReqLogs            bool          `mapstructure:"disableReqLogs"`
		JWTExpirationDelta        time.Duration `mapstructure:"jwtExpirationDelta"`
		JWTRefreshExpirationDelta time.Duration `mapstructure:"jwtRefreshExpirationDelta"`
		ShutdownTimeout           time.Duration `mapstructure:"shutdownTimeout"`
	}

	DatabaseConfig struct {
		Engine        string `mapstructure:"engine"` // postgres | sqlite3
		DSN           string `mapstructure:"dsn"`    // sqlite3 only
		User          string `mapstructure:"user"`
		Password      string `mapstructure:"password"`
		AdminUser     string `mapstructure:"adminUser"`
		AdminPassword string `mapstructure:"adminPassword"`
		Host          string `mapstructure:"host"`
		Port          string `mapstructure:"port"`
		Name          string `mapstructure:"name"`
		DisableTLS    bool   `mapstructure:"disableTLS"`
	}

	UploadsConfig struct {
		Engine            string   `mapstructure:"engine"` // local | b2
		Dir               string   `mapstructure:"dir"`
		URLPrefix         string   `mapstructure:"urlPrefix"`
		AllowedExtensions []string `mapstructure:"allowedExtensions"`
		B2AccountID       string   `mapstructure:"b2AccountID"`
		B2AppKey          string   `mapstructure:"b2AppKey"`
		B2Bucket          string   `mapstructure:"b2Bucket"`
	}

	SecurityConfig struct {
		AuditLogFile string `mapstructure:"auditLogFile"`
	}

	EmailConfig struct {
		DefaultFrom     string `mapstructure:"defaultFrom"`
		SendgridApiKey  string `mapstructure:"sendgridApiKey"`
		FrontendBaseURL string `mapstructure:"frontendBaseURL"`
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// DefaultFromEmail parses Email.DefaultFrom, falling back to the app name as display name.
func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.Email.DefaultFrom)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: c.Email.DefaultFrom}
	}
	if addr.Name == "" {
		addr.Name = c.AppName
	}
	return *addr
}

func setDefaults(v *viper.Viper) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Odin")
	v.SetDefault("env", "DEV")
	v.SetDefault("build", "develop")
	v.SetDefault("secretKey", "x8s!0v_z3#lq9+d2m@r7k$ne1%wb5^tyh&6*c(jg)4pa")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.disableReqLogs", false)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("server.shutdownTimeout", 5*time.Second)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.user", "odin")
	v.SetDefault("database.password", "odin")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "odin")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("uploads.engine", "local")
	v.SetDefault("uploads.dir", filepath.Join("static", "uploads"))
	v.SetDefault("uploads.urlPrefix", "/static/uploads")
	v.SetDefault("uploads.allowedExtensions", []string{"pdf", "docx", "txt"})
	v.SetDefault("uploads.b2AccountID", "")
	v.SetDefault("uploads.b2AppKey", "")
	v.SetDefault("uploads.b2Bucket", "")

	v.SetDefault("security.auditLogFile", "odin.log")

	v.SetDefault("email.defaultFrom", "noreply@localhost")
	v.SetDefault("email.sendgridApiKey", "")
	v.SetDefault("email.frontendBaseURL", "http://localhost:8080")
}

// NewConfig loads the configuration of the current environment (`ENV`: DEV (default), TEST, QA, PROD).
// Values come from defaults, then `config/.env.<env>` if present, then environment variables
// prefixed with the environment name, e.g. `PROD_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
		v.SetDefault("database.engine", "sqlite3")
		v.SetDefault("database.dsn", "file::memory:?_foreign_keys=on")
	}
	v.Set("env", env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := new(Config)
	if err := v.Unmarshal(conf); err != nil {
		log.Fatalf("config.Unmarshal: %v", err)
	}
	for i, ext := range conf.Uploads.AllowedExtensions {
		conf.Uploads.AllowedExtensions[i] = NormalizeKey(strings.TrimPrefix(ext, "."))
	}
	return conf
}
