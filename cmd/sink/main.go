package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"

	"github.com/paycrypt-tech/webhook-dispatch/internal/logging"
	"github.com/paycrypt-tech/webhook-dispatch/internal/service"
	"github.com/paycrypt-tech/webhook-dispatch/internal/signing"
)

// A local webhook receiver for exercising the dispatcher end to end. It
// verifies signatures when SINK_SECRET is set, and SINK_FAIL_STATUS makes it
// answer with a fixed error status to drive the retry path.
func main() {
	logging.Init("webhook-sink", "info", os.Getenv("APP_ENV"))

	secret := os.Getenv("SINK_SECRET")
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}
	failStatus, _ := strconv.Atoi(os.Getenv("SINK_FAIL_STATUS"))

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "read error", http.StatusBadRequest)
			return
		}

		if secret != "" {
			timestamp := r.Header.Get(service.HeaderTimestamp)
			sig := r.Header.Get(service.HeaderSignature)
			if !signing.Verify(secret, timestamp, body, sig) {
				slog.Warn("webhook signature verification failed",
					"event_id", r.Header.Get(service.HeaderEventID))
				http.Error(w, "invalid signature", http.StatusUnauthorized)
				return
			}
		}

		slog.Info("webhook received",
			"event_id", r.Header.Get(service.HeaderEventID),
			"event_type", r.Header.Get(service.HeaderEvent),
			"bytes", len(body),
		)

		if failStatus > 0 {
			http.Error(w, "simulated failure", failStatus)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "received"}); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	slog.Info("webhook sink started", "addr", ":"+port)
	if err := http.ListenAndServe(":"+port, mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}
