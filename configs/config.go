package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout  time.Duration `koanf:"read_timeout"`
		WriteTimeout time.Duration `koanf:"write_timeout"`
		IdleTimeout  time.Duration `koanf:"idle_timeout"`
	} `koanf:"http"`

	MySQL struct {
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	} `koanf:"mysql"`

	Redis struct {
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
	} `koanf:"redis"`

	Idempotency struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`

	Rabbit struct {
		URL string `koanf:"url"`
	} `koanf:"rabbitmq"`

	Kafka struct {
		Brokers     []string `koanf:"brokers"`
		TopicStatus string   `koanf:"topic_status"`
		GroupID     string   `koanf:"group_id"`
	} `koanf:"kafka"`

	AccessControl struct {
		Target       string        `koanf:"target"`
		Timeout      time.Duration `koanf:"timeout"`
		UseTLS       bool          `koanf:"use_tls"`
		CACertPath   string        `koanf:"ca_cert_path"`
		ServerName   string        `koanf:"server_name"`
		MaxRecvBytes int           `koanf:"max_recv_bytes"`
		MaxSendBytes int           `koanf:"max_send_bytes"`
	} `koanf:"access_control"`

	Providers struct {
		GerencianetBaseURL string        `koanf:"gerencianet_base_url"`
		MercadoPagoBaseURL string        `koanf:"mercadopago_base_url"`
		ChargeTimeout      time.Duration `koanf:"charge_timeout"`
		ChargeExpiry       time.Duration `koanf:"charge_expiry"`
	} `koanf:"providers"`

	Security struct {
		JWTSecret string        `koanf:"jwt_secret"`
		Issuer    string        `koanf:"issuer"`
		Audience  string        `koanf:"audience"`
		TTL       time.Duration `koanf:"ttl"`
	} `koanf:"security"`
}

func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	// 1) base
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// 2) env override (dev/staging/prod). Optional: allow missing for local runs.
	_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())

	// 3) environment variables override (prefix ORDERS_, nested with __)
	// e.g. ORDERS_MYSQL__DSN, ORDERS_SECURITY__JWT_SECRET
	if err := k.Load(env.Provider("ORDERS_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "ORDERS_")
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn required")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret required")
	}
	if c.AccessControl.Target == "" {
		return fmt.Errorf("access_control.target required")
	}
	return nil
}
