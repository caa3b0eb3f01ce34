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
	PortalConfig struct {
		BaseURL   string
		Timeout   time.Duration
		UserAgent string
		Username  string
		Password  string
		Year      string
		Semel     string
	}

	ServerConfig struct {
		Host               string
		Port               int
		SecretKey          string
		JWTExpirationDelta time.Duration
		ShutdownTimeout    time.Duration
		UploadDir          string
		DisableReqLogs     bool
	}

	DatabaseConfig struct {
		Engine     string // postgres | sqlite; empty disables the run journal
		Host       string
		Port       int
		User       string
		Password   string
		Name       string
		DisableTLS bool
		Path       string // sqlite only
	}

	EmailConfig struct {
		Provider         string // console | sendgrid | resend
		SendgridApiKey   string
		ResendApiKey     string
		DefaultFromEmail string
		OperatorEmail    string
	}

	Config struct {
		AppName      string
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		WorkDir      string
		RollbarToken string
		Portal       PortalConfig
		Server       ServerConfig
		Database     DatabaseConfig
		Email        EmailConfig
	}
)

// NewConfig reads the configuration from defaults, the optional `config/.env.<env>` file and the environment.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "MashovSend")
	conf.SetDefault("build", "dev")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("portal.baseURL", "https://web.mashov.info")
	conf.SetDefault("portal.timeout", 25*time.Second)
	conf.SetDefault("portal.userAgent", "MashovSend-Go/1.0")
	conf.SetDefault("portal.username", "")
	conf.SetDefault("portal.password", "")
	conf.SetDefault("portal.year", "")
	conf.SetDefault("portal.semel", "")

	conf.SetDefault("server.host", "")
	conf.SetDefault("server.port", 8000)
	conf.SetDefault("server.secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("server.jwtExpirationDelta", 2*time.Hour)
	conf.SetDefault("server.shutdownTimeout", 20*time.Second)
	conf.SetDefault("server.uploadDir", "uploads")
	conf.SetDefault("server.disableReqLogs", false)

	conf.SetDefault("database.engine", "")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", 5432)
	conf.SetDefault("database.user", "")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.name", "mashovsend")
	conf.SetDefault("database.disableTLS", false)
	conf.SetDefault("database.path", "mashovsend.db")

	conf.SetDefault("email.provider", "console")
	conf.SetDefault("email.sendgridApiKey", "")
	conf.SetDefault("email.resendApiKey", "")
	conf.SetDefault("email.defaultFromEmail", "noreply@localhost")
	conf.SetDefault("email.operatorEmail", "")

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := workDir()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	// names used by the original sender scripts
	_ = conf.BindEnv("portal.username", "MASHOV_USER")
	_ = conf.BindEnv("portal.password", "MASHOV_PASS")
	_ = conf.BindEnv("portal.year", "MASHOV_YEAR")
	_ = conf.BindEnv("portal.semel", "MASHOV_SEMEL")

	return &Config{
		AppName:      conf.GetString("appName"),
		Env:          env,
		Build:        conf.GetString("build"),
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		WorkDir:      wd,
		RollbarToken: conf.GetString("rollbarToken"),
		Portal: PortalConfig{
			BaseURL:   strings.TrimRight(conf.GetString("portal.baseURL"), "/"),
			Timeout:   conf.GetDuration("portal.timeout"),
			UserAgent: conf.GetString("portal.userAgent"),
			Username:  conf.GetString("portal.username"),
			Password:  conf.GetString("portal.password"),
			Year:      conf.GetString("portal.year"),
			Semel:     conf.GetString("portal.semel"),
		},
		Server: ServerConfig{
			Host:               conf.GetString("server.host"),
			Port:               conf.GetInt("server.port"),
			SecretKey:          conf.GetString("server.secretKey"),
			JWTExpirationDelta: conf.GetDuration("server.jwtExpirationDelta"),
			ShutdownTimeout:    conf.GetDuration("server.shutdownTimeout"),
			UploadDir:          conf.GetString("server.uploadDir"),
			DisableReqLogs:     conf.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:     strings.ToLower(conf.GetString("database.engine")),
			Host:       conf.GetString("database.host"),
			Port:       conf.GetInt("database.port"),
			User:       conf.GetString("database.user"),
			Password:   conf.GetString("database.password"),
			Name:       conf.GetString("database.name"),
			DisableTLS: conf.GetBool("database.disableTLS"),
			Path:       conf.GetString("database.path"),
		},
		Email: EmailConfig{
			Provider:         strings.ToLower(conf.GetString("email.provider")),
			SendgridApiKey:   conf.GetString("email.sendgridApiKey"),
			ResendApiKey:     conf.GetString("email.resendApiKey"),
			DefaultFromEmail: conf.GetString("email.defaultFromEmail"),
			OperatorEmail:    conf.GetString("email.operatorEmail"),
		},
	}
}

func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.Email.DefaultFromEmail}
}

// workDir returns the directory holding `config/`, falling back to the current directory.
// go-test changes the working directory to the package being tested, so parents are searched too.
func workDir() string {
	wd, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	currDir := wd
	for {
		if fi, err := os.Stat(filepath.Join(currDir, "go.mod")); err == nil && !fi.IsDir() {
			return currDir
		}
		newDir := filepath.Dir(currDir)
		if newDir == currDir {
			return wd
		}
		currDir = newDir
	}
}
