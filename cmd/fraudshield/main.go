// Command fraudshield scores credit card transactions with a supervised
// classifier and an unsupervised anomaly model.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

var (
	version = "v0.0.1-default"
	commit  = ""
)

func main() {
	initLogging()

	if err := newRootCmd().Execute(); err != nil {
		log.Errorf("fatal error: %v", err)
		os.Exit(1)
	}
}
