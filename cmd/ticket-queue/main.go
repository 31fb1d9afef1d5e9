package main

import (
	"log"

	"github.com/psds-microservice/ticket-queue/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
