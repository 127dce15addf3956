/*
Copyright 2025 PayGrid Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/paygrid/disburse"
	"github.com/paygrid/disburse/config"
	"github.com/paygrid/disburse/database"
	"github.com/paygrid/disburse/internal/notification"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Disburse represents the CLI application, encapsulating the root Cobra command.
type Disburse struct {
	cmd *cobra.Command
}

// disburseInstance holds the engine instance and its configuration, shared by
// every subcommand.
type disburseInstance struct {
	disburse *disburse.Disburse
	cnf      *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun sets up the configuration and initializes the engine before running
// any command.
func preRun(app *disburseInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("disburse.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newDisburse, err := setupDisburse(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.disburse = newDisburse
		app.cnf = cnf

		return nil
	}
}

// setupDisburse creates and initializes an engine instance from the provided
// configuration.
func setupDisburse(cfg *config.Configuration) (*disburse.Disburse, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newDisburse, err := disburse.NewDisburse(db)
	if err != nil {
		return nil, fmt.Errorf("error creating disburse: %v", err)
	}
	return newDisburse, nil
}

// NewCLI creates the command-line interface for the disbursement engine.
func NewCLI() *Disburse {
	var configFile string
	d := &disburseInstance{}

	var rootCmd = &cobra.Command{
		Use:   "disburse",
		Short: "Affiliate commission disbursement engine",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./disburse.json", "Configuration file for the engine")

	rootCmd.PersistentPreRunE = preRun(d)

	rootCmd.AddCommand(serverCommands(d))
	rootCmd.AddCommand(workerCommands(d))
	rootCmd.AddCommand(runCommands(d))
	rootCmd.AddCommand(migrateCommands(d))
	rootCmd.AddCommand(auditExportCommands(d))
	rootCmd.AddCommand(configCommands())

	return &Disburse{cmd: rootCmd}
}

// executeCLI runs the root command, handling any errors that occur.
func (w Disburse) executeCLI() {
	if err := w.cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	defer recoverPanic()

	cli := NewCLI()
	cli.executeCLI()
}
