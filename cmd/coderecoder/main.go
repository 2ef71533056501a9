package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/coderecoder/coderecoder/internal/config"
	"github.com/coderecoder/coderecoder/pkg/logging"
)

var (
	cliCfg config.CLIConfig
	log    *logging.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		var err error
		cliCfg, err = config.LoadCLIConfig(configPath)
		if err != nil {
			return err
		}
		if cacheDirNameFlag != "" {
			cliCfg.DefaultCacheDirName = cacheDirNameFlag
		}
		log = logging.New(cliCfg.Logging)
		return nil
	}
}
