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

// Command codegate runs the CodeGate gateway.
//
// Usage:
//
//	codegate serve --config config.yaml
//	codegate validate config.yaml
//	codegate schema > config-schema.json
package main

import (
	"fmt"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/codegate"
	"github.com/kadirpekel/codegate/pkg/config"
	"github.com/kadirpekel/codegate/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Version  VersionCmd  `cmd:"" help:"Show version information."`
	Serve    ServeCmd    `cmd:"" help:"Start the gateway."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Schema   SchemaCmd   `cmd:"" help:"Generate the configuration JSON Schema."`

	Config    string `short:"c" help:"Path to config file." type:"path" env:"CODEGATE_CONFIG"`
	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"info" env:"CODEGATE_LOG_LEVEL"`
	LogFile   string `help:"Log file path (empty = stderr)." env:"CODEGATE_LOG_FILE"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple" enum:"simple,verbose" env:"CODEGATE_LOG_FORMAT"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println(codegate.GetVersion())
	return nil
}

// buildVersion prefers the module version stamped at build time and falls
// back to the release constant.
func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return codegate.Version
}

// initLogger configures the process-wide logger from the global flags.
// The returned cleanup closes the log file, if any.
func initLogger(cli *CLI) (func(), error) {
	level, err := logger.ParseLevel(cli.LogLevel)
	if err != nil {
		return nil, err
	}

	output := os.Stderr
	cleanup := func() {}
	if cli.LogFile != "" {
		file, closeFile, err := logger.OpenLogFile(cli.LogFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", cli.LogFile, err)
		}
		output = file
		cleanup = closeFile
	}

	logger.Init(level, output, cli.LogFormat)
	return cleanup, nil
}

func main() {
	// .env and .env.local, when present, feed ${ENV_VAR} references in
	// the config file and the CODEGATE_* overrides.
	_ = config.LoadEnvFiles()

	cli := &CLI{}
	kctx := kong.Parse(cli,
		kong.Name("codegate"),
		kong.Description("Security- and policy-enforcing gateway between coding assistants and LLM providers."),
		kong.UsageOnError(),
	)

	cleanup, err := initLogger(cli)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	kctx.FatalIfErrorf(kctx.Run(cli))
}
