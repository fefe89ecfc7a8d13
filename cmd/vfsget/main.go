// Copyright (C) 2021-2025 Chronicle Labs, Inc.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command vfsget reads resources through the IO facade and writes them to
// standard output.
//
// Usage:
//
//	vfsget [--config vfs.hcl] [--assign res:=file:///srv/] URL...
package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

var (
	configFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "path to the HCL configuration file",
		EnvVars: []string{"VFS_CONFIG"},
	}
	assignFlag = &cli.StringSliceFlag{
		Name:  "assign",
		Usage: "additional assign in the form alias=prefix, e.g. res:=file:///srv/",
	}
	offsetFlag = &cli.Int64Flag{
		Name:  "offset",
		Usage: "first byte to read",
	}
	lengthFlag = &cli.Int64Flag{
		Name:  "length",
		Usage: "number of bytes to read, zero reads to the end",
	}
	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Value: 30 * time.Second,
		Usage: "time limit for each request",
	}
	logJSONFlag = &cli.BoolFlag{
		Name:  "log-json",
		Usage: "log in JSON format",
	}
	logDebugFlag = &cli.BoolFlag{
		Name:  "log-debug",
		Usage: "log debug messages",
	}
)

func main() {
	app := &cli.App{
		Name:      "vfsget",
		Usage:     "read resources through the virtual file system",
		ArgsUsage: "URL...",
		Flags: []cli.Flag{
			configFlag,
			assignFlag,
			offsetFlag,
			lengthFlag,
			timeoutFlag,
			logJSONFlag,
			logDebugFlag,
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
