package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/wannabeayours/demirens-auth/internal/config"
	"github.com/wannabeayours/demirens-auth/internal/models"
	"github.com/wannabeayours/demirens-auth/internal/util"
)

const attemptHistoryTable = "login_attempt_history"

// ClickHouseClient records login-attempt history for the back-office audit
// screens. Like the event producer it is optional: inserts are best-effort
// and a nil client is a no-op.
type ClickHouseClient struct {
	conn   driver.Conn
	config *config.ClickHouseConfig
	mu     sync.RWMutex
}

func NewClickHouseClient(cfg *config.Config, logger *zap.Logger) (*ClickHouseClient, error) {
	chConfig := cfg.ClickHouse

	opts := &ch.Options{
		Addr: []string{chConfig.URL},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     20,
		MaxIdleConns:     10,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	util.Info("ClickHouse client initialized",
		zap.String("url", chConfig.URL),
		zap.String("database", chConfig.Database),
	)

	return &ClickHouseClient{
		conn:   conn,
		config: &chConfig,
	}, nil
}

// RecordAttempt inserts one audit row. Safe to call on a nil client.
func (c *ClickHouseClient) RecordAttempt(ctx context.Context, event models.SecurityEvent) error {
	if c == nil {
		return nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	query := fmt.Sprintf(
		"INSERT INTO %s (event_id, event_type, principal, user_id, detail, occurred_at) VALUES (?, ?, ?, ?, ?, ?)",
		attemptHistoryTable,
	)
	return c.conn.Exec(ctx, query,
		event.EventID,
		event.EventType,
		event.Principal,
		event.UserID,
		event.Detail,
		event.Timestamp,
	)
}

// QueryRows executes a read query against the history table.
func (c *ClickHouseClient) QueryRows(ctx context.Context, query string, args ...interface{}) (driver.Rows, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn.Query(ctx, query, args...)
}

func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	if c == nil {
		return fmt.Errorf("clickhouse client not initialized")
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn.Ping(ctx)
}

func (c *ClickHouseClient) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
