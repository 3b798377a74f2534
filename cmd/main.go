/*
Copyright 2024 Blnk Finance Authors.

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
	"time"

	"github.com/blnkfinance/regpay"
	"github.com/blnkfinance/regpay/config"
	"github.com/blnkfinance/regpay/database"
	"github.com/blnkfinance/regpay/internal/cache"
	redlock "github.com/blnkfinance/regpay/internal/lock"
	"github.com/blnkfinance/regpay/internal/metrics"
	"github.com/blnkfinance/regpay/internal/notification"
	"github.com/blnkfinance/regpay/internal/payment"
	redis_db "github.com/blnkfinance/regpay/internal/redis-db"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Regpay represents the CLI application, encapsulating the root Cobra command.
type Regpay struct {
	cmd *cobra.Command
}

// entries kept in process in front of the Redis registration cache
const registrationCacheSize = 10000

// regpayInstance holds the service and its configuration for the subcommands.
type regpayInstance struct {
	regpay *regpay.Regpay
	cnf    *config.Configuration
}

func recoverPanic() {
	if rec := recover(); rec != nil {
		logrus.Error(rec)
		os.Exit(1)
	}
}

// preRun loads the configuration and wires the service before any command runs.
func preRun(app *regpayInstance, configFile *string) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		err := config.InitConfig(*configFile)
		if err != nil {
			log.Fatal("error loading config", err)
		}

		cnf, err := config.Fetch()
		if err != nil {
			return err
		}

		// migrations and config output only need the configuration
		if !needsService(cmd) {
			app.cnf = cnf
			return nil
		}

		notifier := notification.New(cnf)
		newRegpay, err := setupRegpay(cnf, notifier)
		if err != nil {
			notifier.NotifyError(err)
			log.Fatal(err)
		}

		app.regpay = newRegpay
		app.cnf = cnf
		return nil
	}
}

func needsService(cmd *cobra.Command) bool {
	if cmd.Name() == "config" {
		return false
	}
	return cmd.Parent() == nil || cmd.Parent().Name() != "migrate"
}

// setupRegpay connects the datasource, payment provider, queue and callback
// locks described by the configuration.
func setupRegpay(cfg *config.Configuration, notifier *notification.Notifier) (*regpay.Regpay, error) {
	db, err := database.NewDataSource(cfg)
	if err != nil {
		return nil, fmt.Errorf("error getting datasource: %v", err)
	}

	queue, err := regpay.NewQueue(cfg)
	if err != nil {
		return nil, fmt.Errorf("error connecting queue: %v", err)
	}

	opts := []regpay.Option{
		regpay.WithNotifier(notifier),
		regpay.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
		regpay.WithStaleAfter(time.Duration(cfg.Payment.StaleAfterMinutes) * time.Minute),
	}

	if cfg.Redis.CallbackLockTTL > 0 || cfg.Redis.RegistrationCacheTTL > 0 {
		client, err := redis_db.NewRedisClient(cfg.Redis.Dns, cfg.Redis.SkipTLSVerify)
		if err != nil {
			return nil, fmt.Errorf("error connecting redis: %v", err)
		}
		if cfg.Redis.CallbackLockTTL > 0 {
			ttl := time.Duration(cfg.Redis.CallbackLockTTL) * time.Second
			opts = append(opts, regpay.WithCallbackLocks(redlock.NewInvoiceLocks(client, ttl)))
		}
		if cfg.Redis.RegistrationCacheTTL > 0 {
			ttl := time.Duration(cfg.Redis.RegistrationCacheTTL) * time.Second
			opts = append(opts, regpay.WithRegistrationCache(cache.New(client, registrationCacheSize, time.Minute), ttl))
		}
	}

	return regpay.NewRegpay(db, payment.NewClient(cfg.Payment), queue, opts...), nil
}

// NewCLI builds the root command with the start, workers, migrate and config subcommands.
func NewCLI() *Regpay {
	var configFile string
	r := &regpayInstance{}

	var rootCmd = &cobra.Command{
		Use:   "regpay",
		Short: "Payment-deferred registration service",
		Run:   func(cmd *cobra.Command, args []string) {},
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "./regpay.json", "Configuration file for regpay")
	rootCmd.PersistentPreRunE = preRun(r, &configFile)

	rootCmd.AddCommand(serverCommands(r))
	rootCmd.AddCommand(workerCommands(r))
	rootCmd.AddCommand(migrateCommands(r))
	rootCmd.AddCommand(configCommands(r))

	return &Regpay{cmd: rootCmd}
}

func (w Regpay) executeCLI() {
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
