package transport

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/graphling/graphling/internal/jobregistry"
	"github.com/graphling/graphling/internal/observability"
)

var _ Conn = (*websocket.Conn)(nil)

// Server upgrades incoming HTTP requests to websocket connections and
// hands each one to its own Session, bound to the shared Job Registry.
type Server struct {
	registry *jobregistry.Registry
	projects ProjectResolver
	logger   *slog.Logger
	upgrader websocket.Upgrader
	metrics  *observability.REDMetrics
}

// NewServer returns a Server ready to be mounted as an http.Handler.
// logger may be nil, in which case slog.Default() is used.
func NewServer(registry *jobregistry.Registry, projects ProjectResolver, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		registry: registry,
		projects: projects,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
}

// WithMetrics attaches RED metrics to srv; every Session it creates records
// through the same instruments. metrics may be nil to disable recording.
func (srv *Server) WithMetrics(metrics *observability.REDMetrics) *Server {
	srv.metrics = metrics

	return srv
}

// ServeHTTP upgrades the connection and runs its Session until the client
// disconnects.
func (srv *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)

		return
	}

	session := NewSession(conn, srv.registry, srv.projects, srv.logger).WithMetrics(srv.metrics)

	if err := session.Serve(r.Context()); err != nil {
		srv.logger.Debug("session ended", "remote_addr", r.RemoteAddr, "error", err)
	}
}

// MapResolver is a fixed, in-memory ProjectResolver, suitable for the
// reference serve command and for tests: project ids are assigned up
// front rather than discovered dynamically.
type MapResolver struct {
	mu    sync.RWMutex
	roots map[string]string
}

// NewMapResolver returns a MapResolver seeded with roots, a project_id ->
// root_path mapping.
func NewMapResolver(roots map[string]string) *MapResolver {
	m := &MapResolver{roots: make(map[string]string, len(roots))}

	for id, path := range roots {
		m.roots[id] = path
	}

	return m
}

// Resolve implements ProjectResolver.
func (m *MapResolver) Resolve(projectID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	root, ok := m.roots[projectID]

	return root, ok
}

// Register adds or replaces project_id's root path, for a serve command
// that discovers projects after startup (e.g. via a CLI flag per
// invocation).
func (m *MapResolver) Register(projectID, rootPath string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.roots[projectID] = rootPath
}
