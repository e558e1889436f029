package queue

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

type statusResp struct {
	Pending      int64  `json:"pending"`
	Processing   int64  `json:"processing"`
	Completed    int64  `json:"completed"`
	Failed       int64  `json:"failed"`
	WorkerStatus string `json:"worker_status"`
	Timestamp    string `json:"timestamp"`
}

// StatusHandler reports the counters of the named queues summed together.
// A backend error is reported as worker_status "error" with zero counts.
func StatusHandler(log *slog.Logger, q Queue, names ...Name) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out := statusResp{
			WorkerStatus: "running",
			Timestamp:    time.Now().UTC().Format(time.RFC3339Nano),
		}
		s, err := Aggregate(r.Context(), q, names...)
		if err != nil {
			log.Error("queue stats failed", "err", err)
			out.WorkerStatus = "error"
		} else {
			out.Pending = s.Pending()
			out.Processing = s.Active
			out.Completed = s.Completed
			out.Failed = s.Failed
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(out)
	}
}
