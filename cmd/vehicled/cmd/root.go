package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "VEHICLED"

var (
	cfgFile string
	opts    = NewServerOptions()
)

var rootCmd = &cobra.Command{
	Use:   "vehicled",
	Short: "Vehicle polling daemon",
	Long: `vehicled runs one vehicle profile against up to three CAN buses,
polls its ECUs on a one second heartbeat and exposes the decoded state.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./vehicled.yaml, then $HOME/.config/vehicled/vehicled.yaml)")
	opts.AddFlags(pf)
}

// initConfig reads the config file and environment, flags set on the command
// line take precedence.
func initConfig(cmd *cobra.Command) error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("vehicled")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "vehicled"))
		}
		viper.AddConfigPath("/etc/vehicled")
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || cfgFile != "" {
			return err
		}
	}
	return opts.Load(viper.GetViper())
}
