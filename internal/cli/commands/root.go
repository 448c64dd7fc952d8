// Copyright 2024 KernelFS Authors
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

package commands

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kernelfs/internal/config"
	"kernelfs/internal/storage"
	"kernelfs/internal/vfs"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, kernel %s, commit: %s)", version, buildDate, vfs.KernelVersion, commit)
	}
	return fmt.Sprintf("%s (%s, kernel %s)", version, buildDate, vfs.KernelVersion)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

// Global flags
var (
	stateDir     string
	stateBackend string
	uplinkDir    string
	logLevel     string
)

// settings is loaded once per invocation by PersistentPreRunE
var settings *config.Settings

var rootCmd = &cobra.Command{
	Use:   "kernelfs",
	Short: "Virtual file system with a persistent sandbox and optional host uplink",
	Long: `KernelFS serves a hierarchical file system from a persistent in-memory sandbox.
A host directory can be mounted as the hardware uplink; when it is unavailable
every operation falls back to the sandbox.

Each command loads the saved sandbox, runs, and saves it again.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" {
			return nil
		}
		if err := config.InitConfigDir(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		s, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load settings: %w", err)
		}
		settings = s
		storage.SetConfigBusyTimeout(s.BusyTimeout)

		level := s.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		setupLogging(level, cmd.ErrOrStderr())
		return nil
	},
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("kernelfs version {{.Version}}\n")
	rootCmd.Version = getVersionString()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&stateDir, "state", "", "State store directory (default: <config dir>/state)")
	flags.StringVar(&stateBackend, "state-backend", "", "State store backend: sqlite, file, memory (default from settings)")
	flags.StringVar(&uplinkDir, "uplink", "", "Host directory to mount as the hardware uplink for this invocation")
	flags.StringVar(&logLevel, "logging", "", "Log level: trace, debug, info, warn, off")
}

// setupLogging routes logrus to w at level; off, none or empty discards all output
func setupLogging(level string, w io.Writer) {
	switch strings.ToLower(level) {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn", "warning":
		log.SetLevel(log.WarnLevel)
	default:
		log.SetOutput(io.Discard)
		return
	}
	log.SetOutput(w)
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command with ctx, used by main for signal handling
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
