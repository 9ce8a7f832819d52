package main

import (
	"log"

	"gitbounty/services/verifierd"
)

func main() {
	if err := verifierd.Main(); err != nil {
		log.Fatalf("verifierd: %v", err)
	}
}
