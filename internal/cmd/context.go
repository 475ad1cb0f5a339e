package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/autoheal/internal/ux"
)

// CommandContext holds the persistent flags shared by every command.
type CommandContext struct {
	ConfigPath string
	Format     string
	NoColor    bool
	LogLevel   string
}

// NewCommandContext extracts the persistent flags from cmd.
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return nil, err
	}

	noColor, err := cmd.Flags().GetBool("no-color")
	if err != nil {
		return nil, err
	}

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		ConfigPath: configPath,
		Format:     format,
		NoColor:    noColor,
		LogLevel:   logLevel,
	}, nil
}

// Output writes v to the command's stdout in the selected format.
func (c *CommandContext) Output(cmd *cobra.Command, v any) error {
	f, err := ux.NewFormatter(c.Format, &ux.FormatterOptions{
		Writer:  cmd.OutOrStdout(),
		NoColor: c.NoColor,
	})
	if err != nil {
		return err
	}
	return f.Format(v)
}
