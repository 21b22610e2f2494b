package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jakiepham/chain/lib"
	"github.com/Jakiepham/chain/lib/crypto"
	"github.com/Jakiepham/chain/node"
)

var dataDir string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chain",
	Short: "a proof-of-stake consensus node",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", lib.DefaultDataDirPath(), "path of the node data directory")
	rootCmd.AddCommand(initCmd, startCmd, versionCmd)
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "create a data directory with a fresh key, config and single-validator genesis",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.MkdirAll(dataDir, os.ModePerm); err != nil {
			return err
		}
		key, err := crypto.NewBLSPrivateKey()
		if err != nil {
			return err
		}
		if err = crypto.WriteValidatorKeyFile(filepath.Join(dataDir, lib.ValKeyPath), key); err != nil {
			return err
		}
		config := lib.DefaultConfig()
		config.DataDirPath = dataDir
		if err = config.WriteToFile(filepath.Join(dataDir, lib.ConfigFilePath)); err != nil {
			return err
		}
		genesis := &lib.Genesis{
			GenesisTimeUnixMilli: time.Now().UnixMilli(),
			Seed:                 crypto.HashString([]byte(key.PublicKey().String())),
			Validators: []lib.GenesisValidator{{
				PublicKey:   key.PublicKey().String(),
				VotingPower: 1,
			}},
		}
		if e := genesis.WriteToFile(filepath.Join(dataDir, lib.GenesisFilePath)); e != nil {
			return e
		}
		cmd.Printf("initialized data directory at %s for validator %s\n", dataDir, key.PublicKey().String())
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "run the node",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := lib.NewConfigFromFile(filepath.Join(dataDir, lib.ConfigFilePath))
		if err != nil {
			return err
		}
		config.DataDirPath = dataDir
		log := lib.NewLogger(lib.LoggerConfig{Level: config.GetLogLevel()}, dataDir)
		key, err := crypto.ValidatorKeyFromFile(filepath.Join(dataDir, lib.ValKeyPath))
		if err != nil {
			return err
		}
		genesis, e := lib.NewGenesisFromFile(filepath.Join(dataDir, lib.GenesisFilePath))
		if e != nil {
			return e
		}
		n, e := node.New(config, key, genesis, nil, log)
		if e != nil {
			return e
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return n.Start(ctx)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print the software version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(softwareVersion)
	},
}

const softwareVersion = "0.1.0"
