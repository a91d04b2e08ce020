/*
Copyright 2023 Alibaba Group Holding Limited.

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


package cli

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/alibaba/polardbx-cpuidle/pkg/cpuidle/config"
)

var rootCmd = &cobra.Command{
	Use:   "cpuidle-sim",
	Short: "Drive cpuidle drivers through the registry on simulated units.",
	Long:  "Register the configured cpuidle drivers, run an idle loop on every unit and export what happens.",
}

var (
	configPath string
	debug      bool
	verbosity  int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.ConfigFilepath, "Config file in yaml or json format.")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Log in development mode.")
	rootCmd.PersistentFlags().IntVarP(&verbosity, "verbose", "v", 0, "Log verbosity.")
}

func newLogger() logr.Logger {
	return zap.New(zap.UseDevMode(debug), zap.Level(zapcore.Level(-verbosity)))
}

func loadConfig() (*config.Config, error) {
	if err := config.InitConfig(configPath); err != nil {
		return nil, err
	}
	c := config.GetConfig()
	return &c, nil
}

func Run() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "ERROR: "+err.Error())
		os.Exit(1)
	}
}

func wrap(runE func(cmd *cobra.Command, args []string) error) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		if err := runE(cmd, args); err != nil {
			_, _ = fmt.Fprintln(os.Stderr, "ERROR: "+err.Error())
			os.Exit(1)
		}
	}
}
