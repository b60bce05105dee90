package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	maxWalkDepth = 25
)

// Config represents the migsafe configuration from migsafe.yaml.
type Config struct {
	// MigrationsDir is the root of the migration directory tree.
	MigrationsDir string `mapstructure:"migrations_dir"`
	// RulesFile is the path to the JSON rules artifact.
	RulesFile string `mapstructure:"rules_file"`

	Database DatabaseConfig `mapstructure:"database"`
	Prisma   PrismaConfig   `mapstructure:"prisma"`

	// Per-command configuration
	Create CreateConfig `mapstructure:"create"`
	Scan   ScanConfig   `mapstructure:"scan"`
}

// DatabaseConfig holds ledger connection settings.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// PrismaConfig holds schema tool invocation settings.
type PrismaConfig struct {
	// Command is the argv prefix used to invoke the tool.
	Command []string `mapstructure:"command"`
	// Schema is the path to schema.prisma.
	Schema string `mapstructure:"schema"`
}

// CreateConfig holds create command settings.
type CreateConfig struct {
	Name string `mapstructure:"name"`
}

// ScanConfig holds scan command settings.
type ScanConfig struct {
	Path string `mapstructure:"path"`
}

// LoadConfig discovers and loads configuration with proper precedence:
// flags > env > config file > defaults.
//
// Returns the loaded config, the path to the config file (empty if none
// found), and any error encountered.
func LoadConfig(explicitConfigPath string) (*Config, string, error) {
	v := viper.New()

	// 1. Set defaults first (lowest precedence)
	setDefaults(v)

	// 2. Set up environment variable binding
	v.SetEnvPrefix("MIGSAFE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 3. Find and load config file
	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	// 4. Unmarshal into Config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, configPath, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("migrations_dir", "prisma/migrations")
	v.SetDefault("rules_file", "migration-rules.json")

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.sslmode", "prefer")

	// Prisma defaults
	v.SetDefault("prisma.command", []string{"npx", "prisma"})
	v.SetDefault("prisma.schema", "prisma/schema.prisma")

	// Per-command defaults
	v.SetDefault("create.name", "")
	v.SetDefault("scan.path", "")
}

// findConfigFile finds the config file to use.
// If explicitPath is provided, it validates the file exists.
// Otherwise, it walks up from cwd looking for migsafe.yaml or migsafe.yml,
// stopping at a .git directory or after maxWalkDepth levels.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}

	dir := cwd
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range []string{"migsafe.yaml", "migsafe.yml"} {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}

		// Check for repo boundary (.git file or directory)
		gitPath := filepath.Join(dir, ".git")
		if _, err := os.Stat(gitPath); err == nil {
			break // Stop at repo root
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break // Reached filesystem root
		}
		dir = parent
	}

	return "", nil // No config found, use defaults
}

// DSN returns the ledger connection string. Precedence: database.url,
// discrete fields, then the DATABASE_URL environment variable the schema
// tool itself uses.
func (c *Config) DSN() (string, error) {
	db := c.Database

	if db.URL != "" {
		return db.URL, nil
	}

	if db.Host == "" {
		if env := os.Getenv("DATABASE_URL"); env != "" {
			return env, nil
		}
		return "", fmt.Errorf("no ledger configured: set database.url, discrete database fields, or DATABASE_URL")
	}
	if db.Name == "" {
		return "", fmt.Errorf("database.name is required when database.url is not set")
	}
	if db.User == "" {
		return "", fmt.Errorf("database.user is required when database.url is not set")
	}

	u := &url.URL{
		Scheme: "postgres",
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   "/" + db.Name,
	}

	if db.Password != "" {
		u.User = url.UserPassword(db.User, db.Password)
	} else {
		u.User = url.User(db.User)
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// ScanPath returns the effective scan root, with the command-specific
// override taking precedence over the migrations dir.
func (c *Config) ScanPath() string {
	if c.Scan.Path != "" {
		return c.Scan.Path
	}
	return c.MigrationsDir
}
