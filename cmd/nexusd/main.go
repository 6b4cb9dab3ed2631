package main

import (
	"log"

	"github.com/MrSnakeDoc/nexus/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ nexusd failed to start: %v", err)
	}
}
