package Config

import (
	"log"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Env          string `mapstructure:"env"`
	AllowOrigins string `mapstructure:"allow_origins"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Port     string `mapstructure:"port"`
}

type AuthConfig struct {
	APISecret         string `mapstructure:"api_secret"`
	TokenHourLifespan int    `mapstructure:"token_hour_lifespan"`
}

type StorageConfig struct {
	Backend    string `mapstructure:"backend"`
	RecordsDir string `mapstructure:"records_dir"`
}

type FirebaseConfig struct {
	CredentialsPath string `mapstructure:"credentials_path"`
	Bucket          string `mapstructure:"bucket"`
	Notifications   bool   `mapstructure:"notifications"`
}

type DeviceConfig struct {
	BaudRate    int    `mapstructure:"baud_rate"`
	RequestMode string `mapstructure:"request_mode"`
}

type MonitorConfig struct {
	MaxPoints         int   `mapstructure:"max_points"`
	TimeSpanMs        int64 `mapstructure:"time_span_ms"`
	DisplayIntervalMs int   `mapstructure:"display_interval_ms"`
}

// Config is the whole server configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	DB       DBConfig       `mapstructure:"db"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Firebase FirebaseConfig `mapstructure:"firebase"`
	Device   DeviceConfig   `mapstructure:"device"`
	Monitor  MonitorConfig  `mapstructure:"monitor"`
}

var envBindings = map[string][]string{
	"server.address":              {"SERVER_ADDRESS"},
	"server.env":                  {"APP_ENV"},
	"server.allow_origins":        {"ALLOW_ORIGINS"},
	"db.host":                     {"DB_HOST"},
	"db.user":                     {"DB_USER"},
	"db.password":                 {"DB_PASSWORD"},
	"db.name":                     {"DB_NAME"},
	"db.port":                     {"DB_PORT"},
	"auth.api_secret":             {"API_SECRET"},
	"auth.token_hour_lifespan":    {"TOKEN_HOUR_LIFESPAN"},
	"storage.backend":             {"STORAGE_BACKEND"},
	"storage.records_dir":         {"RECORDS_DIR"},
	"firebase.credentials_path":   {"FIREBASE_SERVICE_ACCOUNT_PATH"},
	"firebase.bucket":             {"FIREBASE_STORAGE_BUCKET"},
	"firebase.notifications":      {"FIREBASE_NOTIFICATIONS"},
	"device.baud_rate":            {"DEVICE_BAUD_RATE"},
	"device.request_mode":         {"DEVICE_REQUEST_MODE"},
	"monitor.max_points":          {"MONITOR_MAX_POINTS"},
	"monitor.time_span_ms":        {"MONITOR_TIME_SPAN_MS"},
	"monitor.display_interval_ms": {"MONITOR_DISPLAY_INTERVAL_MS"},
}

var defaults = map[string]any{
	"server.address":              ":3005",
	"server.env":                  "production",
	"server.allow_origins":        "http://localhost:3000",
	"auth.token_hour_lifespan":    24,
	"storage.backend":             "local",
	"storage.records_dir":         "./PatientRecords",
	"firebase.notifications":      false,
	"device.baud_rate":            115200,
	"device.request_mode":         "smart",
	"monitor.max_points":          3500,
	"monitor.time_span_ms":        0,
	"monitor.display_interval_ms": 100,
}

// Load reads .env (if present) into the environment and builds the config
// from environment variables on top of the defaults.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}
	return LoadEnv()
}

// LoadEnv builds the config from the current environment only.
func LoadEnv() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if err := bindEnvs(v); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func bindEnvs(v *viper.Viper) error {
	for key, envs := range envBindings {
		inputs := slices.Insert(envs, 0, key)
		if err := v.BindEnv(inputs...); err != nil {
			return err
		}
	}
	return nil
}

// Origins splits the comma separated CORS origin list.
func (c ServerConfig) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c MonitorConfig) DisplayInterval() time.Duration {
	return time.Duration(c.DisplayIntervalMs) * time.Millisecond
}
