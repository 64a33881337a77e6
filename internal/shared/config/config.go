package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// MetadataDBType selects which relational backend holds eCR metadata.
type MetadataDBType string

const (
	MetadataDBPostgres  MetadataDBType = "postgres"
	MetadataDBSQLServer MetadataDBType = "sqlserver"
)

// MetadataSchema selects which column set the save pipeline writes.
type MetadataSchema string

const (
	SchemaCore     MetadataSchema = "core"
	SchemaExtended MetadataSchema = "extended"
)

type Config struct {
	Server        ServerConfig
	Postgres      PostgresConfig
	SQLServer     SQLServerConfig
	Auth          AuthConfig
	Orchestration OrchestrationConfig
	Viewer        ViewerConfig
}

type ServerConfig struct {
	Port     int
	Env      string
	BasePath string
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type SQLServerConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Encrypt  bool
}

func (s SQLServerConfig) DSN() string {
	dsn := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		s.Host, s.Port, s.Database, s.User, s.Password)
	if s.Encrypt {
		dsn += ";encrypt=true;TrustServerCertificate=true"
	}
	return dsn
}

// AuthConfig configures the NBS token gate. PublicKey is the PEM-encoded
// RS256 verification key shared by the upstream identity provider.
type AuthConfig struct {
	Enabled   bool
	PublicKey string
}

type OrchestrationConfig struct {
	URL string
}

// ViewerConfig holds presentation settings.
type ViewerConfig struct {
	// MetadataDBType selects the metadata backend, one of postgres/sqlserver.
	MetadataDBType MetadataDBType
	// MetadataSchema is the column set written on ingest, core or extended.
	MetadataSchema MetadataSchema
	// NonIntegratedViewer enables the eCR library list view.
	NonIntegratedViewer bool
	// Timezone is the IANA zone dates are localized to for display.
	Timezone string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvInt("SERVER_PORT", 3000),
			Env:      getEnv("ENV", "development"),
			BasePath: getEnv("BASE_PATH", "/ecr-viewer"),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "ecr_viewer"),
			Password: getEnv("DB_PASSWORD", "ecr_viewer"),
			Database: getEnv("DB_NAME", "ecr_viewer_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		SQLServer: SQLServerConfig{
			Host:     getEnv("SQLSERVER_HOST", "localhost"),
			Port:     getEnvInt("SQLSERVER_PORT", 1433),
			User:     getEnv("SQLSERVER_USER", "sa"),
			Password: getEnv("SQLSERVER_PASSWORD", ""),
			Database: getEnv("SQLSERVER_DATABASE", "ecr_viewer_db"),
			Encrypt:  getEnvBool("SQLSERVER_ENCRYPT", false),
		},
		Auth: AuthConfig{
			Enabled:   getEnvBool("NBS_AUTH", false),
			PublicKey: getEnv("NBS_PUB_KEY", ""),
		},
		Orchestration: OrchestrationConfig{
			URL: getEnv("ORCHESTRATION_URL", "http://localhost:8080"),
		},
		Viewer: ViewerConfig{
			MetadataDBType:      MetadataDBType(getEnv("METADATA_DATABASE_TYPE", "postgres")),
			MetadataSchema:      MetadataSchema(getEnv("METADATA_DATABASE_SCHEMA", "core")),
			NonIntegratedViewer: getEnvBool("NON_INTEGRATED_VIEWER", false),
			Timezone:            getEnv("DISPLAY_TIMEZONE", "America/New_York"),
		},
	}

	switch cfg.Viewer.MetadataDBType {
	case MetadataDBPostgres, MetadataDBSQLServer:
	default:
		return nil, fmt.Errorf("unsupported METADATA_DATABASE_TYPE %q", cfg.Viewer.MetadataDBType)
	}
	switch cfg.Viewer.MetadataSchema {
	case SchemaCore, SchemaExtended:
	default:
		return nil, fmt.Errorf("unsupported METADATA_DATABASE_SCHEMA %q", cfg.Viewer.MetadataSchema)
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.PublicKey) == "" {
		return nil, fmt.Errorf("NBS_AUTH is enabled but NBS_PUB_KEY is empty")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
