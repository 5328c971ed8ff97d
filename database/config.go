/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package database

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tomoncle/anystore/repository"
	"github.com/tomoncle/anystore/utils"
)

// LoadConfig builds a Config from defaults, the yaml file at path (skipped
// when path is empty), the given .env files (".env" when none are named) and
// finally the process environment, then validates the result.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", file, err)
		}
	}

	if err := overrideFromEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overrideFromEnv applies DB_* and DOC_* variables on top of cfg.
func overrideFromEnv(cfg *Config) error {
	if v := os.Getenv("DB_BACKEND"); v != "" {
		kind, err := repository.ParseKind(v)
		if err != nil {
			return fmt.Errorf("DB_BACKEND: %w", err)
		}
		cfg.Backend = kind
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}

	c := &cfg.Connection
	c.Type = utils.EnvString("DB_TYPE", c.Type)
	c.Host = utils.EnvString("DB_HOST", c.Host)
	c.Port = utils.EnvInt("DB_PORT", c.Port)
	c.Username = utils.EnvString("DB_USERNAME", c.Username)
	c.Password = utils.EnvString("DB_PASSWORD", c.Password)
	c.DBName = utils.EnvString("DB_NAME", c.DBName)
	c.DSN = utils.EnvString("DB_DSN", c.DSN)
	c.SSLMode = utils.EnvString("DB_SSLMODE", c.SSLMode)
	c.MaxIdleConns = utils.EnvInt("DB_MAX_IDLE_CONNS", c.MaxIdleConns)
	c.MaxOpenConns = utils.EnvInt("DB_MAX_OPEN_CONNS", c.MaxOpenConns)
	c.ConnMaxLifetime = envSeconds("DB_CONN_MAX_LIFETIME", c.ConnMaxLifetime)
	c.EnableReconnect = utils.EnvBool("DB_ENABLE_RECONNECT", c.EnableReconnect)
	c.ReconnectInterval = envSeconds("DB_RECONNECT_INTERVAL", c.ReconnectInterval)
	c.EnableQueryLog = utils.EnvBool("DB_ENABLE_QUERY_LOG", c.EnableQueryLog)

	d := &cfg.Document
	d.URI = utils.EnvString("DOC_URI", d.URI)
	d.Database = utils.EnvString("DOC_DATABASE", d.Database)
	if n := utils.EnvInt("DOC_MAX_POOL_SIZE", -1); n >= 0 {
		d.MaxPoolSize = uint64(n)
	}
	d.ConnectTimeout = envSeconds("DOC_CONNECT_TIMEOUT", d.ConnectTimeout)
	return nil
}

// envSeconds reads key as a whole number of seconds.
func envSeconds(key string, def time.Duration) time.Duration {
	n := utils.EnvInt(key, -1)
	if n < 0 {
		return def
	}
	return time.Duration(n) * time.Second
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateBackend, Config{})
	return v
}

// validateBackend requires the settings of the selected backend only.
func validateBackend(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)
	switch cfg.Backend {
	case repository.Relational:
		if cfg.Connection.Type == "" {
			sl.ReportError(cfg.Connection.Type, "Connection.Type", "Type", "required", "")
		}
		if cfg.Connection.DBName == "" && cfg.Connection.DSN == "" {
			sl.ReportError(cfg.Connection.DBName, "Connection.DBName", "DBName", "required_without", "DSN")
		}
	case repository.Document:
		if cfg.Document.URI == "" {
			sl.ReportError(cfg.Document.URI, "Document.URI", "URI", "required", "")
		}
		if cfg.Document.Database == "" {
			sl.ReportError(cfg.Document.Database, "Document.Database", "Database", "required", "")
		}
	}
}

// Validate checks cfg against its struct tags and the selected backend.
func (cfg *Config) Validate() error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid database config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid database config: %w", err)
	}
	return nil
}
