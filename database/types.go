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
	"context"
	"time"

	"github.com/tomoncle/anystore/repository"
)

// Manager owns the connection to one backend and reports its health.
type Manager interface {
	Kind() repository.Kind
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context) error
	HealthCheck(ctx context.Context) *HealthStatus
	SetLogger(logger Logger)
}

// HealthStatus holds the result of a health check against the backend.
type HealthStatus struct {
	Backend       string        `json:"backend"`
	Healthy       bool          `json:"healthy"`
	Connected     bool          `json:"connected"`
	ResponseTime  time.Duration `json:"response_time"`
	ActiveConns   int           `json:"active_conns,omitempty"`
	IdleConns     int           `json:"idle_conns,omitempty"`
	MaxOpenConns  int           `json:"max_open_conns,omitempty"`
	LastError     string        `json:"last_error,omitempty"`
	LastCheckTime time.Time     `json:"last_check_time"`
}

// DBStats mirrors the database/sql pool statistics.
type DBStats struct {
	MaxOpenConns      int           `json:"max_open_conns"`
	OpenConns         int           `json:"open_conns"`
	InUse             int           `json:"in_use"`
	Idle              int           `json:"idle"`
	WaitCount         int64         `json:"wait_count"`
	WaitDuration      time.Duration `json:"wait_duration"`
	MaxIdleClosed     int64         `json:"max_idle_closed"`
	MaxIdleTimeClosed int64         `json:"max_idle_time_closed"`
	MaxLifetimeClosed int64         `json:"max_lifetime_closed"`
}

// ConnectionConfig describes a relational connection and its pool.
type ConnectionConfig struct {
	Type                string        `yaml:"type" json:"type" validate:"omitempty,oneof=postgres postgresql mysql sqlite sqlite3"`
	Host                string        `yaml:"host" json:"host"`
	Port                int           `yaml:"port" json:"port" validate:"gte=0,lte=65535"`
	Username            string        `yaml:"username" json:"username"`
	Password            string        `yaml:"password" json:"password"`
	DBName              string        `yaml:"dbname" json:"dbname"`
	DSN                 string        `yaml:"dsn" json:"dsn"`
	SSLMode             string        `yaml:"sslmode" json:"sslmode"`
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns" validate:"gte=0"`
	MaxOpenConns        int           `yaml:"max_open_conns" json:"max_open_conns" validate:"gte=0"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	ConnectTimeout      time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ReadTimeout         time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout        time.Duration `yaml:"write_timeout" json:"write_timeout"`
	EnableReconnect     bool          `yaml:"enable_reconnect" json:"enable_reconnect"`
	ReconnectInterval   time.Duration `yaml:"reconnect_interval" json:"reconnect_interval"`
	MaxReconnectTries   int           `yaml:"max_reconnect_tries" json:"max_reconnect_tries"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
	EnableQueryLog      bool          `yaml:"enable_query_log" json:"enable_query_log"`
	SlowQueryTime       time.Duration `yaml:"slow_query_time" json:"slow_query_time"`
}

// DocumentConfig describes a document store connection.
type DocumentConfig struct {
	URI            string        `yaml:"uri" json:"uri"`
	Database       string        `yaml:"database" json:"database"`
	AppName        string        `yaml:"app_name" json:"app_name"`
	MaxPoolSize    uint64        `yaml:"max_pool_size" json:"max_pool_size"`
	MinPoolSize    uint64        `yaml:"min_pool_size" json:"min_pool_size" validate:"ltefield=MaxPoolSize"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
	ServerTimeout  time.Duration `yaml:"server_selection_timeout" json:"server_selection_timeout"`
}

// Config selects a backend and carries the settings for each.
type Config struct {
	Backend    repository.Kind  `yaml:"backend" json:"backend" validate:"required"`
	Connection ConnectionConfig `yaml:"connection" json:"connection"`
	Document   DocumentConfig   `yaml:"document" json:"document"`
	LogLevel   LogLevel         `yaml:"log_level" json:"log_level"`
}

// DefaultConnectionConfig returns pool and timeout defaults for a relational backend.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxIdleConns:        10,
		MaxOpenConns:        100,
		ConnMaxLifetime:     time.Hour,
		ConnMaxIdleTime:     30 * time.Minute,
		ConnectTimeout:      10 * time.Second,
		ReadTimeout:         30 * time.Second,
		WriteTimeout:        30 * time.Second,
		EnableReconnect:     true,
		ReconnectInterval:   5 * time.Second,
		MaxReconnectTries:   3,
		HealthCheckInterval: 5 * time.Minute,
		SlowQueryTime:       2 * time.Second,
	}
}

// DefaultDocumentConfig returns defaults for a document backend.
func DefaultDocumentConfig() DocumentConfig {
	return DocumentConfig{
		URI:            "mongodb://localhost:27017",
		MaxPoolSize:    100,
		ConnectTimeout: 10 * time.Second,
		ServerTimeout:  5 * time.Second,
	}
}

// DefaultConfig returns a config with both backends' defaults filled in.
func DefaultConfig() *Config {
	return &Config{
		Connection: DefaultConnectionConfig(),
		Document:   DefaultDocumentConfig(),
		LogLevel:   LogLevelInfo,
	}
}
