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

package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kadirpekel/codegate/pkg/config"
)

// ValidateCmd validates a configuration file without starting anything.
type ValidateCmd struct {
	Config string `arg:"" name:"config" help:"Configuration file path." type:"path"`

	// PrintConfig prints the expanded configuration with defaults
	// applied and env vars resolved.
	PrintConfig bool `short:"p" name:"print-config" help:"Print the expanded configuration."`
}

func (c *ValidateCmd) Run() error {
	cfg, err := config.LoadConfig(c.Config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %s: %v\n", c.Config, err)
		os.Exit(1)
	}

	fmt.Printf("✓ %s is valid\n", c.Config)

	if c.PrintConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render configuration: %w", err)
		}
		fmt.Println()
		os.Stdout.Write(out)
	}
	return nil
}
