package main

import (
	"fmt"
	"os"

	"github.com/TheCacophonyProject/tc2-rate-controller/internal/logging"
	ratecontroller "github.com/TheCacophonyProject/tc2-rate-controller/internal/rate-controller"
	"github.com/TheCacophonyProject/tc2-rate-controller/internal/simulate"
)

var log *logging.Logger

func main() {
	err := runMain()
	if err != nil {
		log.Fatal(err)
	}
}

var version = "<not set>"

func runMain() error {
	log = logging.NewLogger("info")
	if len(os.Args) < 2 {
		log.Info("Usage: tool <subcommand> [args]")
		return fmt.Errorf("no subcommand given")
	}

	subcommand := os.Args[1]
	args := os.Args[2:]

	var err error
	switch subcommand {
	case "rate-controller":
		err = ratecontroller.Run(args, version)
	case "simulate":
		err = simulate.Run(args, version)
	default:
		err = fmt.Errorf("unknown subcommand: %s", subcommand)
	}

	return err
}
