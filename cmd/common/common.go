// Package common provides shared utilities for command implementations.
package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/relister/internal/bootstrap"
)

// Viper keys bound by the root command.
const (
	KeyConfig = "config"
	KeyDebug  = "debug"
)

const defaultConfigFile = "config.yml"

// Version is set at build time with -ldflags "-X ...common.Version=...".
var Version = "dev"

// ConfigPath returns --config, RELISTER_CONFIG, or ./config.yml when it exists.
// An empty path runs on defaults and environment variables.
func ConfigPath() string {
	if path := viper.GetString(KeyConfig); path != "" {
		return path
	}
	if _, err := os.Stat(defaultConfigFile); err == nil {
		return defaultConfigFile
	}
	return ""
}

// Options returns bootstrap options from the bound flags.
func Options() bootstrap.Options {
	return bootstrap.Options{
		ConfigPath: ConfigPath(),
		Debug:      viper.GetBool(KeyDebug),
		Version:    Version,
	}
}

// NewApp wires the application for a one-shot command. Callers must
// Close it.
func NewApp(cmd *cobra.Command) (*bootstrap.App, error) {
	app, err := bootstrap.New(cmd.Context(), Options())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	return app, nil
}

// WithApp runs fn against a freshly wired app and closes it afterwards.
func WithApp(cmd *cobra.Command, fn func(app *bootstrap.App) error) (err error) {
	app, err := NewApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, app.Close())
	}()
	return fn(app)
}

// NewTable returns a table writer mirrored to the command output.
func NewTable(cmd *cobra.Command) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(cmd.OutOrStdout())
	t.SetStyle(table.StyleLight)
	return t
}

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// FormatTime renders an optional timestamp.
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
