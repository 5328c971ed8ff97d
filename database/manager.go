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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	"github.com/tomoncle/anystore/repository"
)

// ErrNotConnected is returned by operations that need an open connection.
var ErrNotConnected = errors.New("database not connected")

// SQLManager owns a bun connection to a postgres, mysql or sqlite database.
type SQLManager struct {
	config *ConnectionConfig
	logger Logger

	mu             sync.RWMutex
	db             *bun.DB
	sqlDB          *sql.DB
	connected      bool
	lastError      error
	reconnectTries int
	stop           chan struct{}
	watching       bool
}

var _ Manager = (*SQLManager)(nil)

// NewSQLManager returns an unconnected manager; a nil config uses DefaultConnectionConfig.
func NewSQLManager(config *ConnectionConfig) *SQLManager {
	if config == nil {
		def := DefaultConnectionConfig()
		config = &def
	}
	return &SQLManager{config: config, logger: GetLogger()}
}

func (m *SQLManager) Kind() repository.Kind { return repository.Relational }

func (m *SQLManager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.connected && m.db != nil {
		return nil
	}

	sqlDB, db, err := m.open()
	if err != nil {
		m.lastError = err
		return fmt.Errorf("failed to create database connection: %w", err)
	}
	m.configurePool(sqlDB)

	timeout := m.config.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		m.lastError = err
		return fmt.Errorf("database connection test failed: %w", err)
	}

	m.db, m.sqlDB = db, sqlDB
	m.connected = true
	m.lastError = nil
	m.reconnectTries = 0
	if m.config.HealthCheckInterval > 0 && !m.watching {
		m.watching = true
		m.stop = make(chan struct{})
		go m.watch(m.stop)
	}
	m.logger.Info("database connected", "type", m.config.Type, "host", m.config.Host, "name", m.config.DBName)
	return nil
}

// Attach wraps an already open bun database, for callers that manage the
// connection themselves and for tests.
func (m *SQLManager) Attach(db *bun.DB) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.db = db
	m.sqlDB = db.DB
	m.connected = true
}

func (m *SQLManager) open() (*sql.DB, *bun.DB, error) {
	var (
		sqlDB *sql.DB
		db    *bun.DB
		err   error
	)
	switch strings.ToLower(m.config.Type) {
	case "mysql":
		sqlDB, err = sql.Open("mysql", m.mysqlDSN())
		if err == nil {
			db = bun.NewDB(sqlDB, mysqldialect.New())
		}
	case "postgres", "postgresql":
		sqlDB, err = sql.Open("postgres", m.postgresDSN())
		if err == nil {
			db = bun.NewDB(sqlDB, pgdialect.New())
		}
	case "sqlite", "sqlite3":
		sqlDB, err = sql.Open(sqliteshim.ShimName, m.sqliteDSN())
		if err == nil {
			db = bun.NewDB(sqlDB, sqlitedialect.New())
		}
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %q", m.config.Type)
	}
	if err != nil {
		return nil, nil, err
	}

	if m.config.EnableQueryLog {
		db.AddQueryHook(bundebug.NewQueryHook(
			bundebug.WithVerbose(true),
			bundebug.FromEnv("BUNDEBUG"),
		))
	}
	db.AddQueryHook(&QueryHook{EnvName: "ANYSTORE_SQL_LOG", Writer: os.Stdout})
	if m.config.SlowQueryTime > 0 {
		db.AddQueryHook(NewSlowQueryHook(m.config.SlowQueryTime, os.Stdout))
	}
	return sqlDB, db, nil
}

func (m *SQLManager) mysqlDSN() string {
	if m.config.DSN != "" {
		return m.config.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%s&readTimeout=%s&writeTimeout=%s",
		m.config.Username, m.config.Password, m.config.Host, m.config.Port, m.config.DBName,
		m.config.ConnectTimeout, m.config.ReadTimeout, m.config.WriteTimeout)
}

func (m *SQLManager) postgresDSN() string {
	if m.config.DSN != "" {
		return m.config.DSN
	}
	sslMode := m.config.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&connect_timeout=%d",
		m.config.Username, m.config.Password, m.config.Host, m.config.Port, m.config.DBName,
		sslMode, int(m.config.ConnectTimeout.Seconds()))
}

func (m *SQLManager) sqliteDSN() string {
	if m.config.DSN != "" {
		return m.config.DSN
	}
	if m.config.DBName == ":memory:" {
		return "file::memory:?cache=shared"
	}
	return m.config.DBName + ".db"
}

func (m *SQLManager) configurePool(sqlDB *sql.DB) {
	if m.config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(m.config.MaxIdleConns)
	}
	if m.config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(m.config.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(m.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(m.config.ConnMaxIdleTime)
}

func (m *SQLManager) Disconnect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

func (m *SQLManager) closeLocked() error {
	if m.watching {
		close(m.stop)
		m.watching = false
	}
	if m.db == nil {
		return nil
	}
	err := m.db.Close()
	m.db, m.sqlDB = nil, nil
	m.connected = false
	if err != nil {
		m.logger.Error("failed to close database connection", "error", err)
		return err
	}
	m.logger.Info("database connection closed")
	return nil
}

// Reconnect closes the current connection, if any, and opens a new one.
func (m *SQLManager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	if err := m.closeLocked(); err != nil {
		m.logger.Warn("error closing previous connection", "error", err)
	}
	m.mu.Unlock()
	return m.Connect(ctx)
}

func (m *SQLManager) Ping(ctx context.Context) error {
	db := m.DB()
	if db == nil {
		return ErrNotConnected
	}
	return db.PingContext(ctx)
}

// DB returns the bun handle, nil before Connect.
func (m *SQLManager) DB() *bun.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.db
}

// SQLDB returns the underlying database/sql pool.
func (m *SQLManager) SQLDB() *sql.DB {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sqlDB
}

func (m *SQLManager) HealthCheck(ctx context.Context) *HealthStatus {
	m.mu.RLock()
	db, sqlDB, connected := m.db, m.sqlDB, m.connected
	m.mu.RUnlock()

	start := time.Now()
	status := &HealthStatus{Backend: m.Kind().Name(), LastCheckTime: start, Connected: connected}
	if db == nil {
		status.LastError = ErrNotConnected.Error()
		return status
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := db.PingContext(pingCtx)
	status.ResponseTime = time.Since(start)
	status.Healthy = err == nil
	status.Connected = err == nil
	if err != nil {
		status.LastError = err.Error()
	}
	if sqlDB != nil {
		stats := sqlDB.Stats()
		status.ActiveConns = stats.InUse
		status.IdleConns = stats.Idle
		status.MaxOpenConns = stats.MaxOpenConnections
	}

	m.mu.Lock()
	m.lastError = err
	m.mu.Unlock()
	return status
}

func (m *SQLManager) watch(stop <-chan struct{}) {
	ticker := time.NewTicker(m.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			status := m.HealthCheck(ctx)
			cancel()
			if !status.Healthy && m.config.EnableReconnect {
				go m.reconnect()
				return
			}
		case <-stop:
			return
		}
	}
}

func (m *SQLManager) reconnect() {
	m.mu.Lock()
	if m.reconnectTries >= m.config.MaxReconnectTries {
		tries := m.reconnectTries
		m.mu.Unlock()
		m.logger.Error("max reconnect attempts reached", "tries", tries)
		return
	}
	m.reconnectTries++
	try := m.reconnectTries
	m.mu.Unlock()

	m.logger.Info("reconnecting to database", "try", try)
	time.Sleep(m.config.ReconnectInterval)

	timeout := m.config.ConnectTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.Reconnect(ctx); err != nil {
		m.logger.Error("reconnect failed", "error", err, "try", try)
		go m.reconnect()
		return
	}
	m.logger.Info("reconnect succeeded")
}

// Stats returns the pool statistics; zero values before Connect.
func (m *SQLManager) Stats() *DBStats {
	sqlDB := m.SQLDB()
	if sqlDB == nil {
		return &DBStats{}
	}
	s := sqlDB.Stats()
	return &DBStats{
		MaxOpenConns:      s.MaxOpenConnections,
		OpenConns:         s.OpenConnections,
		InUse:             s.InUse,
		Idle:              s.Idle,
		WaitCount:         s.WaitCount,
		WaitDuration:      s.WaitDuration,
		MaxIdleClosed:     s.MaxIdleClosed,
		MaxIdleTimeClosed: s.MaxIdleTimeClosed,
		MaxLifetimeClosed: s.MaxLifetimeClosed,
	}
}

func (m *SQLManager) SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logger = logger
}
