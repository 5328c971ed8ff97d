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
	"fmt"

	"github.com/tomoncle/anystore/repository"
)

// NewManager returns the manager for cfg.Backend. The manager is not connected.
func NewManager(cfg *Config) (Manager, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database configuration cannot be empty")
	}
	logger := GetLogger()
	logger.SetLevel(cfg.LogLevel)

	var m Manager
	switch cfg.Backend {
	case repository.Relational:
		switch cfg.Connection.Type {
		case "mysql", "postgres", "postgresql", "sqlite", "sqlite3":
		default:
			return nil, fmt.Errorf("unsupported database type: %q, supported types: mysql, postgres, sqlite", cfg.Connection.Type)
		}
		m = NewSQLManager(&cfg.Connection)
	case repository.Document:
		m = NewDocumentManager(&cfg.Document)
	default:
		return nil, fmt.Errorf("unsupported backend: %q", cfg.Backend.Name())
	}
	m.SetLogger(logger)
	return m, nil
}
