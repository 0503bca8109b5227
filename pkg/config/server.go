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

// ServerConfig configures the HTTP listener. The gateway routes and the
// management API share one port.
type ServerConfig struct {
	// Host to bind to.
	// Default: localhost
	Host string `yaml:"host,omitempty"`

	// Port to listen on.
	// Default: 8989
	Port int `yaml:"port,omitempty"`

	// DashboardURL is the address advertised in redaction notices so a
	// client can link back to the alert detail.
	// Default: http://localhost:9090
	DashboardURL string `yaml:"dashboard_url,omitempty"`
}

// SetDefaults applies default values to ServerConfig.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 8989
	}
	if c.DashboardURL == "" {
		c.DashboardURL = "http://localhost:9090"
	}
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

// Address returns the host:port listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
