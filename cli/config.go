package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/soden46/hyperlux-balance/execution"
	"github.com/soden46/hyperlux-balance/ledger"
)

const (
	envPrefix      = "HYPERLUX"
	defaultHomeDir = ".hyperlux-balance"
	configFileName = "config.yaml"

	keyHome          = "home"
	keyConfig        = "config"
	keyLogLevel      = "log-level"
	keyComputeBudget = "compute-budget"
	keyFee           = "fee"
	keyCPUProfile    = "cpuprofile"
)

type baseConfiguration struct {
	HomeDir       string
	CfgFile       string
	LogLevel      string
	ComputeBudget uint64
	Fee           uint64
	CPUProfile    string

	log *zap.Logger
}

func (c *baseConfiguration) addConfigurationFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&c.HomeDir, keyHome, "", fmt.Sprintf("set the HOME directory (default: $HOME/%s)", defaultHomeDir))
	cmd.PersistentFlags().StringVar(&c.CfgFile, keyConfig, "", fmt.Sprintf("config file location (default: $HYPERLUX_HOME/%s)", configFileName))
	cmd.PersistentFlags().StringVar(&c.LogLevel, keyLogLevel, "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().Uint64Var(&c.ComputeBudget, keyComputeBudget, execution.DefaultComputeBudget, "compute units available to one invocation")
	cmd.PersistentFlags().Uint64Var(&c.Fee, keyFee, ledger.LamportsPerSignature, "lamports charged to the fee payer per transaction")
	cmd.PersistentFlags().StringVar(&c.CPUProfile, keyCPUProfile, "", "write a CPU profile to this file")
}

func (c *baseConfiguration) initConfigFileLocation() {
	if c.HomeDir == "" {
		if home := os.Getenv(envPrefix + "_HOME"); home != "" {
			c.HomeDir = home
		} else if dir, err := os.UserHomeDir(); err == nil {
			c.HomeDir = filepath.Join(dir, defaultHomeDir)
		} else {
			c.HomeDir = defaultHomeDir
		}
	}
	if c.CfgFile == "" {
		c.CfgFile = filepath.Join(c.HomeDir, configFileName)
	}
}

func (c *baseConfiguration) configFileExists() bool {
	_, err := os.Stat(c.CfgFile)
	return err == nil
}

// initializeConfig reads in config file and ENV variables if set. Flags given
// on the command line win over both.
func (c *baseConfiguration) initializeConfig(cmd *cobra.Command) error {
	v := viper.New()
	c.initConfigFileLocation()

	if c.configFileExists() {
		v.SetConfigFile(c.CfgFile)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return err
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return bindFlags(cmd, v)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	var errs []error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && v.IsSet(f.Name) {
			if err := cmd.Flags().Set(f.Name, fmt.Sprint(v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("flag %q: %w", f.Name, err))
			}
		}
	})
	return errors.Join(errs...)
}

func (c *baseConfiguration) initLogger() error {
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return err
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	log, err := cfg.Build()
	if err != nil {
		return err
	}
	c.log = log
	return nil
}

func (c *baseConfiguration) ledgerDir() string   { return filepath.Join(c.HomeDir, "ledger") }
func (c *baseConfiguration) receiptsDir() string { return filepath.Join(c.HomeDir, "receipts") }
func (c *baseConfiguration) walletFile() string  { return filepath.Join(c.HomeDir, "id.json") }
