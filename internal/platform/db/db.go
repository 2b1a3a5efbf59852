package db

import (
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"gopkg.in/yaml.v3"
)

const driverName = "mysql"

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type LendingConfig struct {
	MaxActiveLoans  int `yaml:"max_active_loans"`
	DefaultLoanDays int `yaml:"default_loan_days"`
}

type ReservationConfig struct {
	DefaultDaysValid int `yaml:"default_days_valid"`
}

type Config struct {
	Version      string            `yaml:"version"`
	Mode         string            `yaml:"mode"`
	Server       ServerConfig      `yaml:"server"`
	DB           DatabaseConfig    `yaml:"database"`
	Lending      LendingConfig     `yaml:"lending"`
	Reservations ReservationConfig `yaml:"reservations"`
}

func LoadConfig(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// Policy knobs fall back to the documented defaults so a minimal config
// file only needs database credentials.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Lending.MaxActiveLoans <= 0 {
		c.Lending.MaxActiveLoans = 5
	}
	if c.Lending.DefaultLoanDays <= 0 {
		c.Lending.DefaultLoanDays = 14
	}
	if c.Reservations.DefaultDaysValid <= 0 {
		c.Reservations.DefaultDaysValid = 14
	}
}

func Connect(c DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	conn, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}

	// Keep the pool well under MySQL's max_connections.
	conn.SetMaxOpenConns(80)
	conn.SetMaxIdleConns(20)
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	return conn, nil
}
