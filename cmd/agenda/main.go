package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := NewRoot().Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}
