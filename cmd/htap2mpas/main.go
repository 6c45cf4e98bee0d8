/*
Copyright (C) 2025-2026 the htap2mpas authors.
This file is part of htap2mpas.

htap2mpas is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

htap2mpas is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with htap2mpas.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command htap2mpas converts monthly gridded HTAP emission fluxes to
// hourly speciated emission files on an MPAS mesh.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/jlbeidler/htap2mpas"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configFile string
	verbose    bool
)

var log = logrus.New()

var root = &cobra.Command{
	Use:   "htap2mpas",
	Short: "Convert gridded HTAP emissions to hourly speciated MPAS emissions.",
	Long: `htap2mpas remaps monthly gridded HTAP emission fluxes onto an MPAS
unstructured mesh, expands the monthly totals to hourly values using
SMOKE-style temporal profiles, and splits the bulk pollutants into
chemical mechanism species. One NetCDF file is written per
representative date.

Refer to the subcommand documentation for configuration options.`,
	PersistentPreRun: func(*cobra.Command, []string) {
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("htap2mpas v%s (%s)\n", htap2mpas.Version, htap2mpas.Website)
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the emissions conversion.",
	Long: `run executes a conversion as described by the JSON configuration
file given with --config.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		c, err := htap2mpas.ReadConfigFile(configFile)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		return htap2mpas.Run(ctx, c, log)
	},
}

func init() {
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")
	runCmd.Flags().StringVar(&configFile, "config", "",
		"path to the JSON run configuration file")
	runCmd.MarkFlagRequired("config")
	root.AddCommand(runCmd, versionCmd)
}

func main() {
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}
