// Package main is the entry point of the alternatives server.
//
// The main package stays minimal. Its job is to:
//  1. Read configuration (.env, config file, environment)
//  2. Create the logger
//  3. Hand over to internal/server (serve) or run a one-off command
//
// COMMANDS:
//
//	alternatives [serve]       run the HTTP API (default)
//	alternatives ingest        run one trend ingestion pass and print the summary
//	alternatives migrate       create or upgrade the database schema and exit
//	alternatives hash-secret   print the bcrypt hash of a cron secret for CRON_SECRET_HASH
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// cobra has already printed the error.
		os.Exit(1)
	}
}
