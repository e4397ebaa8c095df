package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/platinummonkey/subscriptions/pkg/async"
	"github.com/platinummonkey/subscriptions/pkg/observability"
)

const defaultPingTimeout = 5 * time.Second

// ConnectionManager owns the primary pool, which takes every write, and an
// optional set of read replicas that catalogue reads rotate through.
type ConnectionManager struct {
	primary *sql.DB

	mu       sync.RWMutex
	replicas []*sql.DB
	next     atomic.Uint32

	config ConnectionConfig
	logger *observability.Logger
}

var _ Connections = (*ConnectionManager)(nil)

// ConnectionConfig sizes the pools. Replicas get half of MaxConns, at least 2.
type ConnectionConfig struct {
	PrimaryURL  string
	ReplicaURLs []string
	MaxConns    int
	MinConns    int
	Timeout     time.Duration
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

// NewConnectionManager fails when the primary is unreachable. A replica that
// does not answer its first ping is logged and left out.
func NewConnectionManager(config ConnectionConfig, logger *observability.Logger) (*ConnectionManager, error) {
	cm := &ConnectionManager{config: config, logger: logger}

	primary, err := cm.dial(config.PrimaryURL, config.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to primary: %w", err)
	}
	cm.primary = primary

	replicaConns := max(config.MaxConns/2, 2)
	for i, url := range config.ReplicaURLs {
		db, err := cm.dial(url, replicaConns)
		if err != nil {
			logger.WithError(err).WithField("replica", i).Warn("Skipping unavailable replica")
			continue
		}
		cm.replicas = append(cm.replicas, db)
	}

	logger.WithField("replicas", len(cm.replicas)).Info("Database connections ready")
	return cm, nil
}

func (cm *ConnectionManager) dial(url string, maxConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(cm.config.MinConns)
	db.SetConnMaxLifetime(cm.config.MaxLifetime)
	db.SetConnMaxIdleTime(cm.config.MaxIdleTime)

	timeout := cm.config.Timeout
	if timeout <= 0 {
		timeout = defaultPingTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping: %w", err)
	}
	return db, nil
}

func (cm *ConnectionManager) Primary() *sql.DB {
	return cm.primary
}

// Replica rotates through the live replicas, or returns the primary when
// there are none
func (cm *ConnectionManager) Replica() *sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	if n := len(cm.replicas); n > 0 {
		return cm.replicas[cm.next.Add(1)%uint32(n)]
	}
	return cm.primary
}

func (cm *ConnectionManager) snapshot() []*sql.DB {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return append([]*sql.DB(nil), cm.replicas...)
}

// HealthCheck fails when the primary is down, or when replicas are
// configured and none of them answers. Some replicas down is still healthy.
func (cm *ConnectionManager) HealthCheck(ctx context.Context) error {
	if err := cm.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	replicas := cm.snapshot()
	var down []string
	for i, db := range replicas {
		if db.PingContext(ctx) != nil {
			down = append(down, fmt.Sprintf("replica-%d", i))
		}
	}
	if len(replicas) > 0 && len(down) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(down, ", "))
	}
	return nil
}

// RemoveUnhealthyReplicas closes replicas that fail a ping and reports how
// many were dropped. Dropped replicas are not reconnected.
func (cm *ConnectionManager) RemoveUnhealthyReplicas(ctx context.Context) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	kept := cm.replicas[:0]
	for _, db := range cm.replicas {
		if db.PingContext(ctx) != nil {
			_ = db.Close()
			continue
		}
		kept = append(kept, db)
	}
	removed := len(cm.replicas) - len(kept)
	cm.replicas = kept
	return removed
}

func (cm *ConnectionManager) Close() error {
	cm.mu.Lock()
	replicas := cm.replicas
	cm.replicas = nil
	cm.mu.Unlock()

	var errs []error
	if err := cm.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close primary: %w", err))
	}
	for i, db := range replicas {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close replica-%d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// StartHealthCheckRoutine prunes dead replicas every interval until ctx is done
func (cm *ConnectionManager) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}

	async.SafeGo(ctx, cm.logger, 0, "replica health check", func(ctx context.Context) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
				if n := cm.RemoveUnhealthyReplicas(pingCtx); n > 0 {
					cm.logger.WithField("removed", n).Warn("Removed unhealthy replicas")
				}
				cancel()
			}
		}
	})
}

// ParseReplicaURLs splits POSTGRES_REPLICA_URLS, dropping blank entries
func ParseReplicaURLs(s string) []string {
	if s == "" {
		return nil
	}
	urls := []string{}
	for _, u := range strings.Split(s, ",") {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}
