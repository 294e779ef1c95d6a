// Mockapi serves a fake session and heartbeat service for running the
// keeper locally.
//
// Usage:
//
//	go run ./scripts/mockapi -addr :8081 -ping-code 0
//
// Point api.session_url at http://localhost:8081/session and api.ping_urls
// at http://localhost:8081/ping.
package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/angeloszaimis/heartbeat-keeper/internal/handler"
	"github.com/angeloszaimis/heartbeat-keeper/internal/mockapi"
	"github.com/angeloszaimis/heartbeat-keeper/pkg/logger"
)

func main() {
	addr := flag.String("addr", ":8081", "address to listen on")
	uid := flag.String("uid", uuid.NewString(), "user id returned by /session")
	pingCode := flag.Int("ping-code", 0, "payload code returned by /ping")
	level := flag.String("log-level", "debug", "log level")
	flag.Parse()

	log := logger.New(*level, false, "dev")

	api := mockapi.New(*uid, log)
	api.SetPing(http.StatusOK, *pingCode)

	log.Info("Starting mock API", slog.String("addr", *addr), slog.String("uid", *uid))
	if err := http.ListenAndServe(*addr, handler.Logging(api, log)); err != nil {
		log.Error("Mock API failed", slog.Any("err", err))
		os.Exit(1)
	}
}
