package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	GeneralParams    GeneralParams
	HttpServerParams HttpServerParams
	MainDBParams     MainDBParams
	RedisParams      RedisParams
	S3Params         S3Params
	ChatParams       ChatParams
}

type GeneralParams struct {
	Env       string
	SecretKey string
	LogLevel  string
}

type HttpServerParams struct {
	Address        string
	Port           string
	AllowedOrigins []string
}

type MainDBParams struct {
	Driver   string
	Username string
	Password string
	Name     string
	Port     int
	Host     string
	Timeout  int
}

type RedisParams struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

type S3Params struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	BucketName      string
}

// ChatParams tunes the room session engine
type ChatParams struct {
	GracePeriod     time.Duration
	HistoryLimit    int
	MessageTTL      time.Duration
	XPPerMessage    int
	SweepInterval   time.Duration
	SendRateLimit   int
	SendRateWindow  time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type ConfigManager struct {
	v      *viper.Viper
	config *Config
}

// NewConfigManager creates new config manager that handles
// all viper config options and loads a config from yaml
func NewConfigManager(configPath string) (*ConfigManager, error) {
	v := viper.New()

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cm := &ConfigManager{v: v}
	cm.loadConfig()

	return cm, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general_params.env", "dev")
	v.SetDefault("http_server_params.http_server_address", "0.0.0.0")
	v.SetDefault("http_server_params.http_server_port", "5000")
	v.SetDefault("main_db_params.driver", "postgres")
	v.SetDefault("main_db_params.db_port", 5432)
	v.SetDefault("main_db_params.db_timeout", 5)
	v.SetDefault("redis_params.addr", "localhost:6379")

	v.SetDefault("chat_params.grace_period", "1s")
	v.SetDefault("chat_params.history_limit", 50)
	v.SetDefault("chat_params.message_ttl", "24h")
	v.SetDefault("chat_params.xp_per_message", 1)
	v.SetDefault("chat_params.sweep_interval", "30s")
	v.SetDefault("chat_params.send_rate_limit", 5)
	v.SetDefault("chat_params.send_rate_window", "1s")
	v.SetDefault("chat_params.access_token_ttl", "24h")
	v.SetDefault("chat_params.refresh_token_ttl", "720h")
}

// Extracting data from yaml file and loading into Config
func (cm *ConfigManager) loadConfig() {
	cm.config = &Config{
		GeneralParams: GeneralParams{
			Env:       cm.v.GetString("general_params.env"),
			SecretKey: cm.v.GetString("general_params.secret_key"),
			LogLevel:  cm.v.GetString("general_params.log_level"),
		},
		HttpServerParams: HttpServerParams{
			Address:        cm.v.GetString("http_server_params.http_server_address"),
			Port:           cm.v.GetString("http_server_params.http_server_port"),
			AllowedOrigins: cm.v.GetStringSlice("http_server_params.allowed_origins"),
		},
		MainDBParams: MainDBParams{
			Driver:   cm.v.GetString("main_db_params.driver"),
			Username: cm.v.GetString("main_db_params.db_username"),
			Password: cm.v.GetString("main_db_params.db_password"),
			Name:     cm.v.GetString("main_db_params.db_name"),
			Port:     cm.v.GetInt("main_db_params.db_port"),
			Host:     cm.v.GetString("main_db_params.db_host"),
			Timeout:  cm.v.GetInt("main_db_params.db_timeout"),
		},
		RedisParams: RedisParams{
			Enabled:  cm.v.GetBool("redis_params.enabled"),
			Addr:     cm.v.GetString("redis_params.addr"),
			Password: cm.v.GetString("redis_params.password"),
			DB:       cm.v.GetInt("redis_params.db"),
		},
		S3Params: S3Params{
			Enabled:         cm.v.GetBool("s3_params.enabled"),
			Endpoint:        cm.v.GetString("s3_params.endpoint"),
			AccessKeyID:     cm.v.GetString("s3_params.access_key_id"),
			SecretAccessKey: cm.v.GetString("s3_params.secret_access_key"),
			UseSSL:          cm.v.GetBool("s3_params.use_ssl"),
			BucketName:      cm.v.GetString("s3_params.bucket_name"),
		},
		ChatParams: ChatParams{
			GracePeriod:     cm.v.GetDuration("chat_params.grace_period"),
			HistoryLimit:    cm.v.GetInt("chat_params.history_limit"),
			MessageTTL:      cm.v.GetDuration("chat_params.message_ttl"),
			XPPerMessage:    cm.v.GetInt("chat_params.xp_per_message"),
			SweepInterval:   cm.v.GetDuration("chat_params.sweep_interval"),
			SendRateLimit:   cm.v.GetInt("chat_params.send_rate_limit"),
			SendRateWindow:  cm.v.GetDuration("chat_params.send_rate_window"),
			AccessTokenTTL:  cm.v.GetDuration("chat_params.access_token_ttl"),
			RefreshTokenTTL: cm.v.GetDuration("chat_params.refresh_token_ttl"),
		},
	}
}

// Geting config instance
func (cm *ConfigManager) GetConfig() *Config {
	return cm.config
}

// Compiling a string to connect to main_db
func (db *MainDBParams) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?connect_timeout=%d&sslmode=disable",
		db.Username,
		db.Password,
		db.Host,
		db.Port,
		db.Name,
		db.Timeout,
	)
}

// DBTimeout is the per-query deadline applied by stores
func (db *MainDBParams) DBTimeout() time.Duration {
	if db.Timeout <= 0 {
		return 5 * time.Second
	}
	return time.Duration(db.Timeout) * time.Second
}

func (h *HttpServerParams) GetAddress() string {
	return fmt.Sprintf(
		"%s:%s",
		h.Address,
		h.Port,
	)
}

func (c *Config) Validate() error {
	if c.GeneralParams.SecretKey == "" {
		return fmt.Errorf("parameter secret_key is required")
	}

	switch c.GeneralParams.Env {
	case "dev", "prod", "test":
	default:
		return fmt.Errorf("env parameter is invalid: %s. try dev/prod/test instead", c.GeneralParams.Env)
	}

	if c.HttpServerParams.Address == "" {
		return fmt.Errorf("http server address is required")
	}
	if c.HttpServerParams.Port == "" {
		return fmt.Errorf("http server port is required")
	}

	switch c.MainDBParams.Driver {
	case "memory":
	case "postgres":
		db := c.MainDBParams
		if db.Host == "" {
			return fmt.Errorf("MainDB: host is required")
		}
		if db.Username == "" {
			return fmt.Errorf("MainDB: username is required")
		}
		if db.Password == "" {
			return fmt.Errorf("MainDB: password is requred")
		}
		if db.Name == "" {
			return fmt.Errorf("MainDB: database name is required")
		}
		if db.Port <= 0 || db.Port > 65535 {
			return fmt.Errorf("MainDB: port is invalid")
		}
	default:
		return fmt.Errorf("MainDB: unknown driver %q (use postgres or memory)", c.MainDBParams.Driver)
	}

	if c.RedisParams.Enabled && c.RedisParams.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	if c.S3Params.Enabled {
		if c.S3Params.Endpoint == "" {
			return fmt.Errorf("S3 endpoint is required")
		}
		if c.S3Params.AccessKeyID == "" {
			return fmt.Errorf("S3 access_key id is required")
		}
		if c.S3Params.SecretAccessKey == "" {
			return fmt.Errorf("S3 secret_access_key is required")
		}
		if c.S3Params.BucketName == "" {
			return fmt.Errorf("S3 bucket name is required")
		}
	}

	chat := c.ChatParams
	if chat.GracePeriod < 0 {
		return fmt.Errorf("chat grace_period must not be negative")
	}
	if chat.HistoryLimit <= 0 {
		return fmt.Errorf("chat history_limit must be positive")
	}
	if chat.MessageTTL <= 0 {
		return fmt.Errorf("chat message_ttl must be positive")
	}
	if chat.SendRateLimit <= 0 || chat.SendRateWindow <= 0 {
		return fmt.Errorf("chat send rate limit and window must be positive")
	}

	return nil
}
