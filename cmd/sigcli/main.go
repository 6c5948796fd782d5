// sigcli - A command-line client for the Signal secure-messaging service.
// Copyright (C) 2026 sigcli contributors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "maunium.net/go/mauflag"

	"go.sigcli.dev/sigcli/internal/signalerr"
)

var wantHelp, _ = flag.MakeHelpFlag()
var configPath = flag.MakeFull("c", "config", "Path to the sigcli config file.", "config.yaml").String()
var captcha = flag.MakeFull("", "captcha", "Captcha token for the register command.", "").String()
var voice = flag.MakeFull("", "voice", "Request a voice call instead of an SMS for the register command.", "false").Bool()
var pin = flag.MakeFull("", "pin", "Registration lock PIN for the verify command.", "").String()

func main() {
	flag.SetHelpTitles(
		"sigcli - A command-line client for the Signal secure-messaging service.",
		"sigcli [-h] [-c <path>] <register|verify|whoami> [args]",
	)

	if len(os.Args) < 2 {
		flag.PrintHelp()
		os.Exit(signalerr.ExitUserError)
	}
	subcommand := os.Args[1]
	os.Args = append([]string{os.Args[0]}, os.Args[2:]...)

	if err := flag.Parse(); err != nil {
		fmt.Println(err)
		flag.PrintHelp()
		os.Exit(signalerr.ExitUserError)
	} else if *wantHelp {
		flag.PrintHelp()
		os.Exit(signalerr.ExitSuccess)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(signalerr.ExitIOError)
	}
	log, err := cfg.buildLogger()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(signalerr.ExitIOError)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = log.WithContext(ctx)

	a, err := newApp(ctx, cfg, *log)
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize sigcli")
		os.Exit(signalerr.ExitIOError)
	}

	var cmdErr error
	switch subcommand {
	case "register":
		cmdErr = runRegister(ctx, a, flag.Args())
	case "verify":
		cmdErr = runVerify(ctx, a, flag.Args())
	case "whoami":
		cmdErr = runWhoami(ctx, a)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", subcommand)
		flag.PrintHelp()
		os.Exit(signalerr.ExitUserError)
	}

	if cmdErr != nil {
		log.Error().Err(cmdErr).Msg("command failed")
	}
	os.Exit(signalerr.ExitCode(cmdErr))
}
