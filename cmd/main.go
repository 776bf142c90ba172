/*
Copyright 2024 Paycore Authors.

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

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/bgaipov/paycore"
	"github.com/bgaipov/paycore/config"
	"github.com/bgaipov/paycore/database"
	"github.com/bgaipov/paycore/internal/notification"
)

// Paycore represents the CLI application, encapsulating the root Cobra command.
type Paycore struct {
	cmd *cobra.Command
}

// paycoreInstance holds the runtime service instance and its configuration.
type paycoreInstance struct {
	paycore *paycore.Paycore
	cnf     *config.Configuration
}

// recoverPanic handles any panics during program execution and logs the error.
func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads configuration and initializes the service before any command
// runs.
func preRun(app *paycoreInstance) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig("paycore.json")
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		newPaycore, err := setupPaycore(cnf)
		if err != nil {
			notification.NotifyError(err)
			log.Fatal(err)
		}

		app.paycore = newPaycore
		app.cnf = cnf

		return nil
	}
}

// setupPaycore creates the service instance and connects it to the database.
func setupPaycore(cfg *config.Configuration) (*paycore.Paycore, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	newPaycore, err := paycore.NewPaycore(db)
	if err != nil {
		return nil, fmt.Errorf("error creating paycore: %v", err)
	}
	return newPaycore, nil
}

// NewCLI creates the command-line interface for the payment service.
func NewCLI() *Paycore {
	var configFile string
	p := &paycoreInstance{}

	var rootCmd = &cobra.Command{
		Use:   "paycore",
		Short: "payment signing and settlement service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./paycore.json", "Configuration file for paycore")

	rootCmd.PersistentPreRunE = preRun(p)

	rootCmd.AddCommand(serverCommands(p))
	rootCmd.AddCommand(workerCommands(p))
	rootCmd.AddCommand(reconcileCommands(p))

	return &Paycore{cmd: rootCmd}
}

func (w Paycore) executeCLI() {
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
