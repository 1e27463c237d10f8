package main

import (
	"github.com/notargets/aderseis/config"
	"github.com/notargets/aderseis/utils"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	envFile string
	logLvl  string

	cfg    *config.Config
	logger *logrus.Logger
	runID  string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aderseis",
	Short: "ADER time prediction and LTS neighbour exchange for seismic meshes.",
	Long: `aderseis benchmarks the ADER Cauchy-Kowalevski time prediction, ` +
		`runs the local time stepping face exchange of a partitioned mesh and ` +
		`annotates meshes with velocity model data.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if envFile != "" {
			err = config.LoadEnv(envFile)
		} else {
			err = config.LoadEnv()
		}
		if err != nil {
			return err
		}
		if cfg, err = config.Load(cfgFile); err != nil {
			return err
		}
		if logLvl != "" {
			cfg.Log.Level = logLvl
		}
		logger = utils.NewLogger(cfg.Log)
		runID = xid.New().String()
		logger.WithFields(logrus.Fields{
			"run":    runID,
			"cmd":    cmd.Name(),
			"config": cfgFile,
		}).Debug("configuration loaded")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "yaml configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", ".env file with ADERSEIS_* overrides (default ./.env)")
	rootCmd.PersistentFlags().StringVar(&logLvl, "log-level", "", "debug, info, warn or error")
}
