package metrics

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Scan metrics
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_scans_total",
			Help: "Total page scans, by platform and the strategy that produced candidates",
		},
		[]string{"platform", "strategy"},
	)

	ScanDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rollcall_scan_duration_seconds",
			Help:    "Time spent scanning a page snapshot",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"platform"},
	)

	SelectorFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_selector_failures_total",
			Help: "Selectors that failed to compile or panicked during a query",
		},
		[]string{"platform"},
	)

	SnapshotErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_snapshot_errors_total",
			Help: "Failed attempts to read a page snapshot from the source",
		},
	)

	// Roster metrics
	ParticipantsPresent = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollcall_participants_present",
			Help: "Participants currently present in the tracked session",
		},
	)

	ParticipantsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rollcall_participants_total",
			Help: "Participants seen during the tracked session",
		},
	)

	RosterTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_roster_transitions_total",
			Help: "Roster transitions by kind (joined, rejoined, left)",
		},
		[]string{"transition"},
	)

	SessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_sessions_started_total",
			Help: "Tracking sessions started",
		},
		[]string{"platform"},
	)

	// Persistence metrics
	PersistWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_persist_writes_total",
			Help: "Roster snapshots written, by store role",
		},
		[]string{"store"},
	)

	PersistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_persist_failures_total",
			Help: "Roster snapshot writes that failed, by store role",
		},
		[]string{"store"},
	)

	PersistDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_persist_dropped_total",
			Help: "Roster snapshots dropped after every store failed",
		},
	)

	SessionsPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rollcall_sessions_pruned_total",
			Help: "Stored sessions removed by retention",
		},
	)

	// API metrics
	MessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rollcall_messages_total",
			Help: "Messages received on the API, by action and outcome",
		},
		[]string{"action", "outcome"},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(
		ScansTotal,
		ScanDuration,
		SelectorFailures,
		SnapshotErrors,
		ParticipantsPresent,
		ParticipantsTotal,
		RosterTransitions,
		SessionsStarted,
		PersistWrites,
		PersistFailures,
		PersistDropped,
		SessionsPruned,
		MessagesTotal,
	)
}

// Server is the metrics HTTP server
type Server struct {
	server   *http.Server
	logger   zerolog.Logger
	listener net.Listener // Optional pre-created listener (for systemd socket activation)
}

// NewServer creates a new metrics server
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	return &Server{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Handler exposes the server's handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// SetListener sets a pre-created listener for systemd socket activation
func (s *Server) SetListener(ln net.Listener) {
	s.listener = ln
}

// Start starts the metrics server
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting metrics server")
	go func() {
		var err error
		if s.listener != nil {
			s.logger.Debug().Msg("Using systemd socket-activated metrics listener")
			err = s.server.Serve(s.listener)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Metrics server error")
		}
	}()
	return nil
}

// Stop stops the metrics server
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping metrics server")
	return s.server.Close()
}
