// Package config loads SCPConfig/SCUConfig from environment variables (with
// .env support via godotenv), matching the teacher's config.Load() ->
// cfg.Validate() sequence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LogConfig controls pkg/logger.Init, shared by both SCP and SCU.
type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig is the Postgres connection, shared by both SCP and SCU.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

// CacheConfig controls which internal/cache.Cache implementation backs the
// storage front-cache.
type CacheConfig struct {
	Enabled bool
	Type    string // "redis" or "memory"
}

// RedisConfig is used when CacheConfig.Type == "redis".
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// OpsConfig controls the ambient HTTP surface (/health, /ready, /metrics,
// /api/v1/...).
type OpsConfig struct {
	Host         string
	Port         int
	MetricsEnabled bool
}

// ObjectStoreConfig is used when StorageBackend == "object-store".
type ObjectStoreConfig struct {
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
}

// SCPConfig enumerates spec.md §6's SCP configuration surface.
type SCPConfig struct {
	Port              int
	CallingAETitle    string
	Strict            bool
	UncompressedOnly  bool
	Promiscuous       bool
	MaxPDULength      uint32
	OutDir            string
	StorageBackend    string // "filesystem" | "object-store"
	ObjectStore       ObjectStoreConfig
	ExtractTags       []string
	GroupingStrategy  string // "by-scope" | "flat" | "study-level"
	StudyTimeoutSecs  int

	Log      LogConfig
	Database DatabaseConfig
	Cache    CacheConfig
	Redis    RedisConfig
	Ops      OpsConfig
}

// SCUConfig enumerates spec.md §6's SCU configuration surface.
type SCUConfig struct {
	Addr              string
	CallingAETitle    string
	CalledAETitle     string
	MaxPDULength      uint32
	MessageIDStart    int
	FailFirst         bool
	NeverTranscode    bool
	Concurrency       int

	Username              string
	Password              string
	KerberosServiceTicket string
	SAMLAssertion         string
	JWT                   string

	Log      LogConfig
	Database DatabaseConfig
}

// LoadSCP reads an SCPConfig from the environment, applying spec.md §6's
// documented defaults.
func LoadSCP() (*SCPConfig, error) {
	_ = godotenv.Load()

	cfg := &SCPConfig{
		Port:             envInt("SCP_PORT", 11112),
		CallingAETitle:   envString("SCP_AE_TITLE", "STORE-SCP"),
		Strict:           envBool("SCP_STRICT", false),
		UncompressedOnly: envBool("SCP_UNCOMPRESSED_ONLY", false),
		Promiscuous:      envBool("SCP_PROMISCUOUS", false),
		MaxPDULength:     uint32(envInt("SCP_MAX_PDU_LENGTH", 16384)),
		OutDir:           envString("SCP_OUT_DIR", "./data"),
		StorageBackend:   envString("SCP_STORAGE_BACKEND", "filesystem"),
		ObjectStore: ObjectStoreConfig{
			Bucket:    envString("SCP_OBJECT_STORE_BUCKET", ""),
			AccessKey: envString("SCP_OBJECT_STORE_ACCESS_KEY", ""),
			SecretKey: envString("SCP_OBJECT_STORE_SECRET_KEY", ""),
			Endpoint:  envString("SCP_OBJECT_STORE_ENDPOINT", ""),
		},
		ExtractTags:      envStringList("SCP_EXTRACT_TAGS", []string{"PatientID", "StudyInstanceUID", "SeriesInstanceUID", "SOPInstanceUID"}),
		GroupingStrategy: envString("SCP_GROUPING_STRATEGY", "by-scope"),
		StudyTimeoutSecs: envInt("SCP_STUDY_TIMEOUT_SECONDS", 30),

		Log:      loadLogConfig("LOG"),
		Database: loadDatabaseConfig("DB"),
		Cache:    loadCacheConfig(),
		Redis:    loadRedisConfig(),
		Ops: OpsConfig{
			Host:           envString("OPS_HOST", "0.0.0.0"),
			Port:           envInt("OPS_PORT", 8080),
			MetricsEnabled: envBool("METRICS_ENABLED", true),
		},
	}
	return cfg, nil
}

// Validate rejects configurations spec.md §6 cannot express.
func (c *SCPConfig) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid SCP_PORT: %d", c.Port)
	}
	if len(c.CallingAETitle) == 0 || len(c.CallingAETitle) > 16 {
		return fmt.Errorf("SCP_AE_TITLE must be 1..16 bytes, got %q", c.CallingAETitle)
	}
	switch c.StorageBackend {
	case "filesystem", "object-store":
	default:
		return fmt.Errorf("invalid SCP_STORAGE_BACKEND: %q", c.StorageBackend)
	}
	if c.StorageBackend == "object-store" && c.ObjectStore.Bucket == "" {
		return fmt.Errorf("SCP_OBJECT_STORE_BUCKET required when SCP_STORAGE_BACKEND=object-store")
	}
	switch c.GroupingStrategy {
	case "by-scope", "flat", "study-level":
	default:
		return fmt.Errorf("invalid SCP_GROUPING_STRATEGY: %q", c.GroupingStrategy)
	}
	return nil
}

// LoadSCU reads an SCUConfig from the environment, applying spec.md §6's
// documented defaults.
func LoadSCU() (*SCUConfig, error) {
	_ = godotenv.Load()

	cfg := &SCUConfig{
		Addr:           envString("SCU_ADDR", "127.0.0.1:11112"),
		CallingAETitle: envString("SCU_AE_TITLE", "STORE-SCU"),
		CalledAETitle:  envString("SCU_CALLED_AE_TITLE", "ANY-SCP"),
		MaxPDULength:   uint32(envInt("SCU_MAX_PDU_LENGTH", 16384)),
		MessageIDStart: envInt("SCU_MESSAGE_ID_START", 1),
		FailFirst:      envBool("SCU_FAIL_FIRST", false),
		NeverTranscode: envBool("SCU_NEVER_TRANSCODE", false),
		Concurrency:    envInt("SCU_CONCURRENCY", 1),

		Username:              envString("SCU_USERNAME", ""),
		Password:              envString("SCU_PASSWORD", ""),
		KerberosServiceTicket: envString("SCU_KERBEROS_SERVICE_TICKET", ""),
		SAMLAssertion:         envString("SCU_SAML_ASSERTION", ""),
		JWT:                   envString("SCU_JWT", ""),

		Log:      loadLogConfig("LOG"),
		Database: loadDatabaseConfig("DB"),
	}
	return cfg, nil
}

// Validate rejects configurations spec.md §6 cannot express.
func (c *SCUConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("SCU_ADDR is required")
	}
	if len(c.CallingAETitle) == 0 || len(c.CallingAETitle) > 16 {
		return fmt.Errorf("SCU_AE_TITLE must be 1..16 bytes, got %q", c.CallingAETitle)
	}
	if len(c.CalledAETitle) == 0 || len(c.CalledAETitle) > 16 {
		return fmt.Errorf("SCU_CALLED_AE_TITLE must be 1..16 bytes, got %q", c.CalledAETitle)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("SCU_CONCURRENCY must be positive, got %d", c.Concurrency)
	}
	return nil
}

func loadLogConfig(prefix string) LogConfig {
	return LogConfig{
		Level:  envString(prefix+"_LEVEL", "info"),
		Format: envString(prefix+"_FORMAT", "json"),
	}
}

func loadDatabaseConfig(prefix string) DatabaseConfig {
	return DatabaseConfig{
		Host:     envString(prefix+"_HOST", "localhost"),
		Port:     envInt(prefix+"_PORT", 5432),
		User:     envString(prefix+"_USER", "postgres"),
		Password: envString(prefix+"_PASSWORD", ""),
		DBName:   envString(prefix+"_NAME", "dicom_store_gateway"),
		SSLMode:  envString(prefix+"_SSLMODE", "disable"),
		LogLevel: envString(prefix+"_LOG_LEVEL", "warn"),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		Enabled: envBool("CACHE_ENABLED", true),
		Type:    envString("CACHE_TYPE", "memory"),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		Host:     envString("REDIS_HOST", "localhost"),
		Port:     envInt("REDIS_PORT", 6379),
		Password: envString("REDIS_PASSWORD", ""),
		DB:       envInt("REDIS_DB", 0),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envStringList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
