// Package service wires the platform client, caches, stores and workers
// into the operations the HTTP API exposes.
package service

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/okian/connect-extensions/internal/adapters/connect"
	"github.com/okian/connect-extensions/internal/adapters/mcpserver"
	killqueue "github.com/okian/connect-extensions/internal/adapters/mq/queue"
	killworker "github.com/okian/connect-extensions/internal/adapters/mq/worker"
	"github.com/okian/connect-extensions/internal/adapters/repository"
	"github.com/okian/connect-extensions/internal/domain/chat"
	"github.com/okian/connect-extensions/internal/domain/dedupe"
	"github.com/okian/connect-extensions/internal/domain/health"
	"github.com/okian/connect-extensions/internal/domain/ttlcache"
	"github.com/okian/connect-extensions/pkg/logger"
)

const artifactDBFile = "dags.db"

// Service implements the API dependencies for every extension.
type Service struct {
	mu sync.RWMutex

	// Core components
	platform *connect.Client
	visitors *ttlcache.Cache[*connect.Client]
	sessions *ttlcache.Cache[*chat.Session]
	store    repository.Store
	kills    killqueue.Queue
	inflight dedupe.Tracker
	pool     *killworker.Pool
	checker  *health.Checker
	chat     *chat.Service
	mcp      *mcpserver.Server
	mcpHTTP  http.Handler
	streamer chat.Streamer

	// Configuration
	dataDir            string
	visitorTTL         time.Duration
	visitorMaxEntries  int
	cleanupInterval    time.Duration
	chatSessionTTL     time.Duration
	chatModel          string
	chatMaxTokens      int
	killPollAttempts   int
	killPollInterval   time.Duration
	deployPollAttempts int
	deployPollInterval time.Duration
	killQueueSize      int
	killWorkerCount    int
	listConcurrency    int
	monitoredContent   string
	healthTimeout      time.Duration

	// State
	started bool
	cancel  context.CancelFunc
	now     func() time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithPlatform sets the client authenticated as the service identity.
func WithPlatform(c *connect.Client) Option {
	return func(s *Service) {
		s.platform = c
	}
}

// WithStore replaces the sqlite artifact store opened on Start.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithDataDir sets the directory holding the artifact database.
func WithDataDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.dataDir = dir
		}
	}
}

// WithStreamer enables chat through the given LLM streamer.
func WithStreamer(st chat.Streamer) Option {
	return func(s *Service) {
		s.streamer = st
	}
}

// WithChat sets the chat model and reply token limit.
func WithChat(model string, maxTokens int) Option {
	return func(s *Service) {
		s.chatModel = model
		if maxTokens > 0 {
			s.chatMaxTokens = maxTokens
		}
	}
}

// WithVisitorCache sets how long visitor clients stay cached and the cache
// bound; maxEntries 0 means unbounded.
func WithVisitorCache(ttl time.Duration, maxEntries int) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.visitorTTL = ttl
		}
		if maxEntries >= 0 {
			s.visitorMaxEntries = maxEntries
		}
	}
}

// WithChatSessionTTL sets how long an idle chat transcript survives.
func WithChatSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.chatSessionTTL = ttl
		}
	}
}

// WithCleanupInterval sets the janitor period of the TTL caches.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// WithKillPolling bounds the wait for a destroyed job to exit.
func WithKillPolling(attempts int, interval time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.killPollAttempts = attempts
		}
		if interval >= 0 {
			s.killPollInterval = interval
		}
	}
}

// WithDeployPolling bounds the wait for a publish task.
func WithDeployPolling(attempts int, interval time.Duration) Option {
	return func(s *Service) {
		if attempts > 0 {
			s.deployPollAttempts = attempts
		}
		if interval >= 0 {
			s.deployPollInterval = interval
		}
	}
}

// WithKillWorkers sizes the asynchronous kill queue and its worker pool.
func WithKillWorkers(queueSize, workers int) Option {
	return func(s *Service) {
		if queueSize > 0 {
			s.killQueueSize = queueSize
		}
		if workers > 0 {
			s.killWorkerCount = workers
		}
	}
}

// WithListConcurrency bounds parallel per-content job listing.
func WithListConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.listConcurrency = n
		}
	}
}

// WithHealthCheck sets the monitored content (GUID or URL) and probe timeout.
func WithHealthCheck(content string, timeout time.Duration) Option {
	return func(s *Service) {
		s.monitoredContent = content
		if timeout > 0 {
			s.healthTimeout = timeout
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dataDir:            "data",
		visitorTTL:         time.Hour,
		cleanupInterval:    time.Minute,
		chatSessionTTL:     time.Hour,
		chatMaxTokens:      4096,
		killPollAttempts:   30,
		killPollInterval:   time.Second,
		deployPollAttempts: 120,
		deployPollInterval: time.Second,
		killQueueSize:      1024,
		killWorkerCount:    runtime.NumCPU(),
		listConcurrency:    8,
		healthTimeout:      60 * time.Second,
		now:                time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}
	s.logger.Info(ctx, "starting extension host service...")

	if s.store == nil {
		store, err := s.openStore()
		if err != nil {
			return err
		}
		s.store = store
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	s.visitors = ttlcache.New[*connect.Client](
		ttlcache.WithName("visitor_clients"),
		ttlcache.WithTTL(s.visitorTTL),
		ttlcache.WithCleanupInterval(s.cleanupInterval),
		ttlcache.WithMaxSize(s.visitorMaxEntries),
		ttlcache.WithClock(s.now),
	)
	s.visitors.Start(runCtx)

	s.sessions = ttlcache.New[*chat.Session](
		ttlcache.WithName("chat_sessions"),
		ttlcache.WithTTL(s.chatSessionTTL),
		ttlcache.WithCleanupInterval(s.cleanupInterval),
		ttlcache.WithClock(s.now),
	)
	s.sessions.Start(runCtx)
	s.chat = chat.NewService(s.streamer, s.sessions,
		chat.WithModel(s.chatModel),
		chat.WithMaxTokens(s.chatMaxTokens),
	)

	s.kills = killqueue.NewInMemoryQueue(killqueue.WithCapacity(s.killQueueSize))
	s.inflight = dedupe.NewInMemoryTracker(dedupe.WithMaxSize(s.killQueueSize + s.killWorkerCount))
	s.pool = killworker.NewPool(s.killWorkerCount, s.kills, killworker.KillerFunc(s.killQueued))
	s.pool.Start(runCtx)

	if s.platform != nil {
		s.checker = health.NewChecker(s.platform, health.WithTimeout(s.healthTimeout))
	}

	mcpSrv, err := mcpserver.NewServer(s.whoAmI)
	if err != nil {
		cancel()
		return fmt.Errorf("start mcp server: %w", err)
	}
	s.mcp = mcpSrv
	s.mcpHTTP = mcpSrv.Handler()

	s.started = true
	s.logger.Info(ctx, "extension host service started",
		logger.Bool("platform", s.platform != nil),
		logger.Bool("chat", s.chat.Enabled()),
		logger.Int("kill_workers", s.pool.Size()),
		logger.Int("kill_queue_size", s.killQueueSize),
		logger.Int("list_concurrency", s.listConcurrency),
	)
	return nil
}

func (s *Service) openStore() (repository.Store, error) {
	if err := os.MkdirAll(s.dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", s.dataDir, err)
	}
	store, err := repository.Open(filepath.Join(s.dataDir, artifactDBFile))
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	return store, nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping extension host service...")

	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "kill workers did not stop cleanly", logger.Error(err))
	}
	s.cancel()
	s.visitors.Stop()
	s.sessions.Stop()
	if err := s.store.Close(); err != nil {
		s.logger.Warn(ctx, "error closing artifact store", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "extension host service stopped")
}

// Stats is a snapshot of the host's in-memory state.
type Stats struct {
	Platform       bool `json:"platform"`
	ChatEnabled    bool `json:"chat_enabled"`
	VisitorClients int  `json:"visitor_clients"`
	ChatSessions   int  `json:"chat_sessions"`
	KillQueueDepth int  `json:"kill_queue_depth"`
	KillWorkers    int  `json:"kill_workers"`
}

// GetStats returns current service statistics.
func (s *Service) GetStats(_ context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return Stats{Platform: s.platform != nil}
	}
	return Stats{
		Platform:       s.platform != nil,
		ChatEnabled:    s.chat.Enabled(),
		VisitorClients: s.visitors.Len(),
		ChatSessions:   s.sessions.Len(),
		KillQueueDepth: s.kills.Len(),
		KillWorkers:    s.pool.Size(),
	}
}

// Platform returns the service identity client, or nil when the host runs
// without platform credentials.
func (s *Service) Platform() *connect.Client { return s.platform }

// visitor returns a client acting as the owner of sessionToken. An empty
// token yields the service client and is never cached.
func (s *Service) visitor(ctx context.Context, sessionToken string) (*connect.Client, error) {
	if s.platform == nil {
		return nil, ErrNoPlatform
	}
	if sessionToken == "" {
		return s.platform, nil
	}
	c, err := s.visitors.GetOrCreate(sessionToken, func() (*connect.Client, error) {
		return s.platform.WithUserSessionToken(ctx, sessionToken)
	})
	if err != nil {
		if connect.IsCode(err, connect.CodeNoVisitorIntegration) {
			return nil, fmt.Errorf("%w: %w", ErrNoVisitorIntegration, err)
		}
		return nil, fmt.Errorf("resolve visitor: %w", err)
	}
	return c, nil
}

// Caller identifies who an API request acts as: an explicit API key wins
// over the visitor session token.
type Caller struct {
	APIKey       string
	SessionToken string
}

func (s *Service) client(ctx context.Context, c Caller) (*connect.Client, error) {
	if c.APIKey != "" {
		if s.platform == nil {
			return nil, ErrNoPlatform
		}
		return s.platform.WithAPIKey(c.APIKey), nil
	}
	return s.visitor(ctx, c.SessionToken)
}

// Me returns the user the caller acts as.
func (s *Service) Me(ctx context.Context, c Caller) (connect.User, error) {
	cl, err := s.client(ctx, c)
	if err != nil {
		return connect.User{}, err
	}
	return cl.Me(ctx)
}

func (s *Service) whoAmI(ctx context.Context, sessionToken string) (connect.User, error) {
	c, err := s.visitor(ctx, sessionToken)
	if err != nil {
		return connect.User{}, err
	}
	return c.Me(ctx)
}
