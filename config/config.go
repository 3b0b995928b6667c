package config

import (
	"fmt"
	"os"
	"strconv"
)

type DbConfig interface {
	GetConnectionString() string
}

// PostgresConfig represents the configuration needed to connect to a PostgreSQL database
type PostgresConfig struct {
	Host         string `yaml:"host"`
	Port         string `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

func (pc *PostgresConfig) GetConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName, pc.SSLMode)
}

// applyEnv fills every field left empty by the config file from POSTGRES_* variables.
func (pc *PostgresConfig) applyEnv() {
	pc.Host = firstNonEmpty(pc.Host, getEnv("POSTGRES_HOST", "localhost"))
	pc.Port = firstNonEmpty(pc.Port, getEnv("POSTGRES_PORT", "5432"))
	pc.User = firstNonEmpty(pc.User, getEnv("POSTGRES_USER", "postgres"))
	pc.Password = firstNonEmpty(pc.Password, getEnv("POSTGRES_PASSWORD", "postgres"))
	pc.DBName = firstNonEmpty(pc.DBName, getEnv("POSTGRES_NAME", "products"))
	pc.SSLMode = firstNonEmpty(pc.SSLMode, getEnv("POSTGRES_SSLMODE", "disable"))
	if pc.MaxOpenConns <= 0 {
		pc.MaxOpenConns = getEnvInt("POSTGRES_MAX_OPEN_CONNS", 20)
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
