package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Port                      int
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string // postgres | sqlite
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
		Path          string // sqlite only
	}

	AlertsConfig struct {
		BatchSize     int
		MaxAttempts   int
		Retention     time.Duration
		Cooldown      time.Duration
		AutoInterval  time.Duration
		QueueInterval time.Duration
		GCInterval    time.Duration
	}

	PluginsConfig struct {
		Manifest     string
		CronInterval time.Duration
	}

	Config struct {
		AppName          string
		Build            string
		Env              string // DEV (local; default), TEST, QA, PROD
		Debug            bool
		TestMode         bool
		SecretKey        string
		WorkDir          string
		DataRoot         string
		FrontendBaseURL  string
		SendgridApiKey   string
		RollbarToken     string
		MaxUploadSize    int64 // bytes, <= 0 for no limit
		defaultFromEmail string

		Server   ServerConfig
		Database DatabaseConfig
		Alerts   AlertsConfig
		Plugins  PluginsConfig
	}
)

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

func (s ServerConfig) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (db DatabaseConfig) Address() string {
	return net.JoinHostPort(db.Host, strconv.Itoa(db.Port))
}

func (db DatabaseConfig) IsSQLite() bool {
	return db.Engine == "sqlite"
}

// NewConfig reads the configuration from the environment,
// loading `config/.env.<env>` first when it exists.
func NewConfig() *Config {
	conf := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	workDir := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", env == "DEV")
	conf.SetDefault("testMode", env == "TEST")
	conf.SetDefault("appName", "ELBP")
	conf.SetDefault("build", "develop")
	conf.SetDefault("secretKey", "x9c!4m2l$q-0zv#ue)j8w+3t^s1r&b7p(kd6f%ya5hgno=")
	conf.SetDefault("dataRoot", filepath.Join(workDir, "data"))
	conf.SetDefault("frontendBaseURL", "http://localhost:8080")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("sendgridApiKey", "")
	conf.SetDefault("rollbarToken", "")
	conf.SetDefault("maxUploadSize", 20<<20)

	conf.SetDefault("serverHost", "localhost")
	conf.SetDefault("serverPort", 8000)
	conf.SetDefault("serverDebugHost", "localhost:4000")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", 5432)
	conf.SetDefault("dbName", "elbp")
	conf.SetDefault("dbUser", "elbp")
	conf.SetDefault("dbPassword", "")
	conf.SetDefault("dbAdminUser", "")
	conf.SetDefault("dbAdminPassword", "")
	conf.SetDefault("dbDisableTLS", env == "DEV" || env == "TEST")
	conf.SetDefault("dbPath", filepath.Join(workDir, "elbp.db"))

	conf.SetDefault("alertsBatchSize", 50)
	conf.SetDefault("alertsMaxAttempts", 5)
	conf.SetDefault("alertsRetention", 30*24*time.Hour)
	conf.SetDefault("alertsCooldown", 24*time.Hour)
	conf.SetDefault("alertsAutoInterval", 15*time.Minute)
	conf.SetDefault("alertsQueueInterval", 5*time.Minute)
	conf.SetDefault("alertsGcInterval", 24*time.Hour)

	conf.SetDefault("pluginsManifest", filepath.Join(workDir, "config", "plugins.yaml"))
	conf.SetDefault("pluginsCronInterval", time.Hour)

	conf.SetEnvPrefix(env)
	conf.AutomaticEnv()

	return &Config{
		AppName:          conf.GetString("appName"),
		Build:            conf.GetString("build"),
		Env:              env,
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		SecretKey:        conf.GetString("secretKey"),
		WorkDir:          workDir,
		DataRoot:         conf.GetString("dataRoot"),
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		SendgridApiKey:   conf.GetString("sendgridApiKey"),
		RollbarToken:     conf.GetString("rollbarToken"),
		MaxUploadSize:    conf.GetInt64("maxUploadSize"),
		defaultFromEmail: conf.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			Port:                      conf.GetInt("serverPort"),
			DebugHost:                 conf.GetString("serverDebugHost"),
			ShutdownTimeout:           conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetInt("dbPort"),
			Name:          conf.GetString("dbName"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
			Path:          conf.GetString("dbPath"),
		},
		Alerts: AlertsConfig{
			BatchSize:     conf.GetInt("alertsBatchSize"),
			MaxAttempts:   conf.GetInt("alertsMaxAttempts"),
			Retention:     conf.GetDuration("alertsRetention"),
			Cooldown:      conf.GetDuration("alertsCooldown"),
			AutoInterval:  conf.GetDuration("alertsAutoInterval"),
			QueueInterval: conf.GetDuration("alertsQueueInterval"),
			GCInterval:    conf.GetDuration("alertsGcInterval"),
		},
		Plugins: PluginsConfig{
			Manifest:     conf.GetString("pluginsManifest"),
			CronInterval: conf.GetDuration("pluginsCronInterval"),
		},
	}
}

// NewTestConfig returns a config suitable for tests: sqlite in memory, no external services.
func NewTestConfig(dataRoot string) *Config {
	return &Config{
		AppName:          "ELBP",
		Build:            "test",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "secret",
		DataRoot:         dataRoot,
		FrontendBaseURL:  "http://localhost:8080",
		MaxUploadSize:    1 << 20,
		defaultFromEmail: "noreply@localhost",
		Server: ServerConfig{
			Host:                      "localhost",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Database: DatabaseConfig{Engine: "sqlite", Path: ":memory:"},
		Alerts: AlertsConfig{
			BatchSize:     10,
			MaxAttempts:   3,
			Retention:     30 * 24 * time.Hour,
			Cooldown:      24 * time.Hour,
			AutoInterval:  time.Minute,
			QueueInterval: time.Minute,
			GCInterval:    time.Hour,
		},
		Plugins: PluginsConfig{CronInterval: time.Hour},
	}
}
