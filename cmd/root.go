package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oncoderma/oncoderma-go/cmd/classify"
	"github.com/oncoderma/oncoderma-go/cmd/createuser"
	"github.com/oncoderma/oncoderma-go/cmd/serve"
	"github.com/oncoderma/oncoderma-go/internal/buildinfo"
	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// RootCommand creates and returns the root command. Settings are loaded
// before any sub-command runs and copied into settings, which the
// sub-commands share.
func RootCommand(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var (
		configFile string
		central    *logger.CentralLogger
	)

	rootCmd := &cobra.Command{
		Use:           "oncoderma",
		Short:         "OncoDerma skin lesion screening server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, &configFile)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "oncoderma %s (built %s)\n", build.GetVersion(), build.GetBuildDate())
			return err
		},
	}

	rootCmd.AddCommand(
		serve.Command(settings, build),
		classify.Command(settings),
		createuser.Command(settings),
		versionCmd,
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == versionCmd.Name() {
			return nil
		}

		loaded, err := conf.Load(configFile)
		if err != nil {
			return err
		}
		*settings = *loaded

		central, err = initLogging(settings)
		return err
	}

	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		if central == nil {
			return nil
		}
		return central.Close()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, configFile *string) {
	rootCmd.PersistentFlags().StringVarP(configFile, "config", "c", "", "Path to config file (default searches ~/.config/oncoderma and /etc/oncoderma)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")

	// --debug overrides the debug key of the config file
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding debug flag: %v", err))
	}
}

// initLogging installs the central logger built from the logging settings.
func initLogging(settings *conf.Settings) (*logger.CentralLogger, error) {
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.SetGlobal(central)
	return central, nil
}
