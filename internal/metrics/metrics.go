package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_proxy_connections_active",
		Help: "Number of active client connections",
	})

	TotalConnections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_proxy_connections_total",
		Help: "Total number of client connections by detected kind",
	}, []string{"kind"})

	// Connection rejection metrics
	ConnectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_proxy_connection_rejected_total",
		Help: "Total number of connections rejected",
	}, []string{"reason"})

	// Players in play state across both backends
	PlayersOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "game_proxy_players_online",
		Help: "Number of players online through the proxy",
	})

	PlayersPerBackend = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "game_proxy_backend_players",
		Help: "Number of players connected to each backend",
	}, []string{"backend"})

	// Packet flow
	Packets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_proxy_packets_total",
		Help: "Total number of packets relayed",
	}, []string{"direction", "state"})

	// Authentication outcomes
	Auth = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_proxy_auth_total",
		Help: "Total number of online-mode authentication attempts",
	}, []string{"result"})

	SessionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "game_proxy_session_check_seconds",
		Help:    "Latency of session service checks",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~5s
	})

	// Backend metrics
	BackendDialErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_proxy_backend_dial_errors_total",
		Help: "Total number of failed backend dials",
	}, []string{"backend"})

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "game_proxy_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"backend"})

	// Switching
	Switches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_proxy_switch_total",
		Help: "Total number of backend switches by outcome",
	}, []string{"result"})

	SwitchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "game_proxy_switch_duration_seconds",
		Help:    "Time from switch request to join game on the new backend",
		Buckets: prometheus.LinearBuckets(0.5, 0.5, 12), // 0.5s to 6s
	})

	// Collaborator failures
	HandlerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_proxy_handler_errors_total",
		Help: "Total number of recovered handler, transform and hook failures",
	}, []string{"kind"})

	// Player data sync
	PlayerDataSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_proxy_playerdata_sync_total",
		Help: "Total number of player data syncs by outcome",
	}, []string{"result"})

	// Configuration reload metrics
	ConfigReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "game_proxy_config_reload_total",
		Help: "Total number of configuration reloads by outcome",
	}, []string{"result"})
)

// IncConnectionRejected increments the connection rejected counter
func IncConnectionRejected(reason string) {
	ConnectionRejected.WithLabelValues(reason).Inc()
}

// IncHandlerError increments the handler error counter
func IncHandlerError(kind string) {
	HandlerErrors.WithLabelValues(kind).Inc()
}
