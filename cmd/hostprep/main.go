package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/eniac111/hostprep/internal/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
