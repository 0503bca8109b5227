// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import "fmt"

// DatabaseConfig configures the SQL store.
type DatabaseConfig struct {
	// Dialect selects the database driver.
	// Values: sqlite (default), postgres, mysql.
	Dialect string `yaml:"dialect,omitempty"`

	// DSN is the driver connection string. For sqlite it is the file
	// path; ":memory:" keeps everything in process.
	// Default: codegate.db
	DSN string `yaml:"dsn,omitempty"`
}

// SetDefaults applies default values to DatabaseConfig.
func (c *DatabaseConfig) SetDefaults() {
	if c.Dialect == "" {
		c.Dialect = "sqlite"
	}
	if c.DSN == "" && (c.Dialect == "sqlite" || c.Dialect == "sqlite3") {
		c.DSN = "codegate.db"
	}
}

// Validate checks the database configuration.
func (c *DatabaseConfig) Validate() error {
	switch c.Dialect {
	case "sqlite", "sqlite3", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported dialect: %s (supported: sqlite, postgres, mysql)", c.Dialect)
	}
	if c.DSN == "" {
		return fmt.Errorf("dsn is required for dialect %s", c.Dialect)
	}
	return nil
}
