package app

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/balance_robot/internal/calibration"
	"github.com/relabs-tech/balance_robot/internal/config"
	"github.com/relabs-tech/balance_robot/internal/control"
	"github.com/relabs-tech/balance_robot/internal/orientation"
	"github.com/relabs-tech/balance_robot/internal/telemetry"
	"github.com/relabs-tech/balance_robot/internal/tuning"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

type statusResponse struct {
	Status  string `json:"status"`
	Warning string `json:"warning,omitempty"`
	Error   string `json:"error,omitempty"`
}

// newMux builds the dashboard API. All endpoints only touch snapshot
// copies, so a slow or hostile client can never stall the control loop.
func newMux(loop *control.Loop, ring *telemetry.Ring, params *tuning.Store,
	offsets *calibration.Store, estimator *orientation.Estimator, cfg config.Config) *http.ServeMux {

	mux := http.NewServeMux()

	// Latest telemetry, oldest first. ?n= caps the count; the default
	// covers the whole buffered window.
	mux.HandleFunc("GET /api/telemetry", func(w http.ResponseWriter, r *http.Request) {
		n := 0
		if q := r.URL.Query().Get("n"); q != "" {
			v, err := strconv.Atoi(q)
			if err != nil || v < 0 {
				http.Error(w, "invalid n", http.StatusBadRequest)
				return
			}
			n = v
		}
		writeJSON(w, ring.Latest(n))
	})

	mux.HandleFunc("GET /api/params", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, params.Get())
	})

	mux.HandleFunc("POST /api/params", func(w http.ResponseWriter, r *http.Request) {
		var u tuning.Update
		if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
			writeJSONStatus(w, http.StatusBadRequest, statusResponse{Status: "error", Error: "invalid JSON body"})
			return
		}

		err := params.Set(u)
		var vErr *tuning.ValidationError
		var pErr *tuning.PersistError
		switch {
		case errors.As(err, &vErr):
			writeJSONStatus(w, http.StatusBadRequest, statusResponse{Status: "error", Error: vErr.Error()})
		case errors.As(err, &pErr):
			// The update is live; the operator just needs to know it
			// will not survive a restart.
			log.Printf("web: %v", pErr)
			writeJSON(w, statusResponse{Status: "ok", Warning: pErr.Error()})
		case err != nil:
			writeJSONStatus(w, http.StatusInternalServerError, statusResponse{Status: "error", Error: err.Error()})
		default:
			writeJSON(w, statusResponse{Status: "ok"})
		}
	})

	mux.HandleFunc("POST /api/gain", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Gain float64 `json:"gain"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeJSONStatus(w, http.StatusBadRequest, statusResponse{Status: "error", Error: "invalid JSON body"})
			return
		}
		if err := estimator.SetGain(body.Gain); err != nil {
			writeJSONStatus(w, http.StatusBadRequest, statusResponse{Status: "error", Error: err.Error()})
			return
		}
		if err := offsets.SetGain(body.Gain); err != nil {
			log.Printf("web: persisting filter gain: %v", err)
			writeJSON(w, statusResponse{Status: "ok", Warning: err.Error()})
			return
		}
		writeJSON(w, statusResponse{Status: "ok"})
	})

	mux.HandleFunc("POST /api/restart", func(w http.ResponseWriter, r *http.Request) {
		loop.Restart()
		writeJSON(w, statusResponse{Status: "ok"})
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, loop.Status())
	})

	// Live telemetry stream: pushes the newest sample at the configured
	// interval until the client goes away.
	mux.HandleFunc("GET /ws/telemetry", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("web: websocket upgrade error: %v", err)
			return
		}
		defer conn.Close()

		interval := time.Duration(cfg.WSPushInterval) * time.Millisecond
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			latest := ring.Latest(1)
			if len(latest) == 0 {
				continue
			}
			if err := conn.WriteJSON(latest[0]); err != nil {
				return
			}
		}
	})

	// Static dashboard files
	mux.Handle("/", http.FileServer(http.Dir(cfg.WebStaticDir)))

	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}
