// internal/control/server.go
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/tamzrod/cgm-collector/internal/logging"
	"github.com/tamzrod/cgm-collector/internal/poller"
)

// maxPages matches the one-byte page count of the read command.
const maxPages = 255

// Submitter accepts triggers without blocking.
type Submitter interface {
	Submit(t poller.Trigger) bool
}

// PollView is the read/cancel side of the scheduler.
type PollView interface {
	State() *poller.PollState
	RemainingUntilNext() (time.Duration, bool)
	Cancel()
}

// PollResponse is the body of GET /poll.
type PollResponse struct {
	Scheduled    bool       `json:"scheduled"`
	NextPoll     *time.Time `json:"next_poll,omitempty"`
	RemainingSec int64      `json:"remaining_sec"`
}

// SyncResponse is the body of POST /sync.
type SyncResponse struct {
	Queued    bool `json:"queued"`
	Coalesced bool `json:"coalesced"`
	Pages     int  `json:"pages"`
}

// NewHandler routes the control endpoints. gatherer may be nil (no /metrics).
func NewHandler(sub Submitter, view PollView, gatherer prometheus.Gatherer, log logging.Logger) http.Handler {
	if log == nil {
		log = logging.Nop{}
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /sync", func(w http.ResponseWriter, r *http.Request) {
		pages := 0
		if raw := r.URL.Query().Get("pages"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 || n > maxPages {
				http.Error(w, fmt.Sprintf("pages must be an integer in 0..%d", maxPages), http.StatusBadRequest)
				return
			}
			pages = n
		}

		queued := sub.Submit(poller.Trigger{Kind: poller.TriggerManual, Pages: pages})
		log.Info("manual sync requested (pages=%d queued=%v)", pages, queued)
		writeJSON(w, http.StatusAccepted, SyncResponse{Queued: queued, Coalesced: !queued, Pages: pages}, log)
	})

	mux.HandleFunc("GET /poll", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, pollResponse(view), log)
	})

	mux.HandleFunc("DELETE /poll", func(w http.ResponseWriter, r *http.Request) {
		view.Cancel()
		log.Info("scheduled poll cancelled via control")
		w.WriteHeader(http.StatusNoContent)
	})

	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return mux
}

func pollResponse(view PollView) PollResponse {
	next, ok := view.State().Next()
	if !ok {
		return PollResponse{}
	}
	remaining, _ := view.RemainingUntilNext()
	return PollResponse{
		Scheduled:    true,
		NextPoll:     &next,
		RemainingSec: int64(remaining / time.Second),
	}
}

func writeJSON(w http.ResponseWriter, code int, v any, log logging.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("control: encode response: %v", err)
	}
}

// Server serves the control handler over HTTP/1.1 and cleartext HTTP/2.
type Server struct {
	srv *http.Server
	log logging.Logger
}

func NewServer(addr string, h http.Handler, log logging.Logger) *Server {
	if log == nil {
		log = logging.Nop{}
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h2c.NewHandler(h, &http2.Server{}),
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: log,
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("control listening on %s", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control: shutdown: %w", err)
	}
	return nil
}
