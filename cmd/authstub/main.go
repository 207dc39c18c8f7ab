package main

import (
	"log"
	"os"

	"github.com/aussiebroadwan/authclient/internal/authstub"
)

func main() {
	cfg := authstub.LoadConfig()

	application, err := authstub.NewApplication(cfg, os.Getenv("AUTHSTUB_SEED_EMAIL"), os.Getenv("AUTHSTUB_SEED_PASSWORD"))
	if err != nil {
		log.Fatalf("failed to initialize application: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
