package main

import (
	"log"

	"gitbounty/services/bountyd"
)

func main() {
	if err := bountyd.Main(); err != nil {
		log.Fatalf("bountyd: %v", err)
	}
}
