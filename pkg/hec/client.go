package hec

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mosajjal/Go-Splunk-HTTP/splunk/v2"
	"github.com/mosajjal/logrelay/pkg/models"
	"github.com/mosajjal/logrelay/pkg/storage"
	log "github.com/sirupsen/logrus"
)

// Config holds HEC client configuration
type Config struct {
	Endpoints       []string
	TLSSkipVerify   bool
	Proxy           string
	Token           string
	ChannelID       string
	Index           string
	Source          string
	SourceType      string
	Host            string
	Timeout         time.Duration
	BalanceStrategy string // first_available, sticky, random, roundrobin
	StickyTTL       time.Duration
	HealthInterval  time.Duration
	MaxEntrySize    int
}

const (
	FirstAvailable = 1
	Sticky         = 2
	Random         = 3
	RoundRobin     = 4
)

const (
	DefaultMaxEntrySize   = 250000
	DefaultHealthInterval = 10 * time.Second
	DefaultStickyTTL      = 5 * time.Minute
)

// ErrNoHealthyConnection is returned when every endpoint failed its health
// check and no failure storage is configured
var ErrNoHealthyConnection = errors.New("no healthy connections and no failure storage configured")

// sender is the part of *splunk.Client the client depends on
type sender interface {
	LogEvents(events []*splunk.Event) error
	CheckHealth() error
}

type connection struct {
	endpoint string
	client   sender

	mu        sync.RWMutex
	isHealthy bool
}

// Client manages HEC connections and entry delivery. It is a sink.AsyncSink.
type Client struct {
	config          Config
	connections     []*connection
	failureStorage  storage.Backend
	coldStorage     storage.Backend
	balanceStrategy uint8

	mu          sync.Mutex
	count       int
	stickySince time.Time
	rnd         *rand.Rand
	now         func() time.Time

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// ParseBalanceStrategy maps a strategy name to its constant. Unknown names
// fall back to FirstAvailable.
func ParseBalanceStrategy(name string) (uint8, bool) {
	switch name {
	case "first_available":
		return FirstAvailable, true
	case "sticky":
		return Sticky, true
	case "random":
		return Random, true
	case "roundrobin":
		return RoundRobin, true
	}
	return FirstAvailable, false
}

// NewClient creates a new HEC client
func NewClient(cfg Config, failureStorage, coldStorage storage.Backend) (*Client, error) {
	var conns []*connection
	for _, endpoint := range cfg.Endpoints {
		conn, err := newConnection(endpoint, cfg)
		if err != nil {
			log.WithError(err).WithField("endpoint", endpoint).Warn("Failed to create HEC connection")
			continue
		}
		conns = append(conns, conn)
	}
	if len(conns) == 0 {
		return nil, fmt.Errorf("no valid HEC endpoints configured")
	}

	c := newClient(cfg, conns, failureStorage, coldStorage)
	for _, conn := range c.connections {
		conn.updateHealth()
		c.wg.Add(1)
		go c.healthCheck(conn)
	}
	return c, nil
}

func newClient(cfg Config, conns []*connection, failureStorage, coldStorage storage.Backend) *Client {
	strategy, ok := ParseBalanceStrategy(cfg.BalanceStrategy)
	if !ok {
		log.Warnf("Unknown load balance strategy: %v. Using first_available", cfg.BalanceStrategy)
	}
	if cfg.MaxEntrySize <= 0 {
		cfg.MaxEntrySize = DefaultMaxEntrySize
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = DefaultHealthInterval
	}
	if cfg.StickyTTL <= 0 {
		cfg.StickyTTL = DefaultStickyTTL
	}
	return &Client{
		config:          cfg,
		connections:     conns,
		failureStorage:  failureStorage,
		coldStorage:     coldStorage,
		balanceStrategy: strategy,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
		now:             time.Now,
		done:            make(chan struct{}),
	}
}

func newConnection(endpoint string, cfg Config) (*connection, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.TLSSkipVerify}
	transport := &http.Transport{TLSClientConfig: tlsConfig}

	if cfg.Proxy != "" {
		proxyURL, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
	}

	endpoint = CollectorURL(endpoint)

	channelID := cfg.ChannelID
	if _, err := uuid.Parse(channelID); err != nil {
		channelID = uuid.New().String()
	}

	splunkClient := splunk.NewClient(
		httpClient,
		endpoint,
		cfg.Token,
		channelID,
		cfg.Source,
		cfg.SourceType,
		cfg.Index,
	)

	return &connection{
		endpoint: endpoint,
		client:   splunkClient,
	}, nil
}

// CollectorURL appends the collector path when it is missing
func CollectorURL(endpoint string) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if !strings.HasSuffix(endpoint, "/services/collector") {
		endpoint = fmt.Sprintf("%s/services/collector", endpoint)
	}
	return endpoint
}

func (c *connection) updateHealth() {
	healthy := c.client.CheckHealth() == nil
	c.mu.Lock()
	c.isHealthy = healthy
	c.mu.Unlock()
}

func (c *connection) healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isHealthy
}

func (c *Client) healthCheck(conn *connection) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.config.HealthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			conn.updateHealth()
		}
	}
}

// Write sends entries to HEC. A copy goes to cold storage first when one is
// configured; entries that cannot be delivered go to failure storage.
func (c *Client) Write(ctx context.Context, entries []*models.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if c.coldStorage != nil {
		if err := c.coldStorage.Store(ctx, entries); err != nil {
			log.WithError(err).Warn("Failed to send entries to cold storage")
		}
	}

	events := make([]*splunk.Event, 0, len(entries))
	for _, e := range entries {
		events = append(events, c.event(e))
	}

	conn := c.getConnection()
	if conn == nil {
		log.Warn("No healthy HEC connection available, sending to failure storage")
		return c.fallback(ctx, entries, ErrNoHealthyConnection)
	}

	if err := conn.client.LogEvents(events); err != nil {
		log.WithError(err).WithField("endpoint", conn.endpoint).Error("Couldn't send events to HEC")
		return c.fallback(ctx, entries, fmt.Errorf("send to %s: %w", conn.endpoint, err))
	}
	return nil
}

func (c *Client) fallback(ctx context.Context, entries []*models.Entry, cause error) error {
	if c.failureStorage == nil {
		return cause
	}
	if err := c.failureStorage.Store(ctx, entries); err != nil {
		return fmt.Errorf("%v; failure storage: %w", cause, err)
	}
	return nil
}

func (c *Client) event(e *models.Entry) *splunk.Event {
	ts := e.Metadata.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	source := c.config.Source
	if source == "" {
		source = e.Metadata.LogName
	}
	return &splunk.Event{
		Time:       splunk.EventTime{Time: ts},
		Host:       c.config.Host,
		Source:     source,
		SourceType: c.config.SourceType,
		Index:      c.config.Index,
		Event:      Truncate(EventBody(e), c.config.MaxEntrySize),
	}
}

func (c *Client) getConnection() *connection {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.balanceStrategy {
	case Sticky:
		return c.getSticky()
	case Random:
		return c.getRandom()
	case RoundRobin:
		return c.getRoundRobin()
	default:
		return c.getFirstAvailable()
	}
}

func (c *Client) getFirstAvailable() *connection {
	for _, conn := range c.connections {
		if conn.healthy() {
			return conn
		}
	}
	return nil
}

// getSticky keeps using one endpoint until it turns unhealthy or StickyTTL
// elapses, then moves on to the next healthy one
func (c *Client) getSticky() *connection {
	now := c.now()
	if c.count >= len(c.connections) {
		c.count = 0
	}
	if c.stickySince.IsZero() {
		c.stickySince = now
	}
	if conn := c.connections[c.count]; conn.healthy() && now.Sub(c.stickySince) < c.config.StickyTTL {
		return conn
	}
	for i := 1; i <= len(c.connections); i++ {
		idx := (c.count + i) % len(c.connections)
		if c.connections[idx].healthy() {
			c.count = idx
			c.stickySince = now
			return c.connections[idx]
		}
	}
	return nil
}

func (c *Client) getRandom() *connection {
	healthy := make([]*connection, 0, len(c.connections))
	for _, conn := range c.connections {
		if conn.healthy() {
			healthy = append(healthy, conn)
		}
	}
	if len(healthy) == 0 {
		return nil
	}
	return healthy[c.rnd.Intn(len(healthy))]
}

func (c *Client) getRoundRobin() *connection {
	for i := 0; i < len(c.connections); i++ {
		idx := (c.count + i) % len(c.connections)
		if c.connections[idx].healthy() {
			c.count = idx + 1
			return c.connections[idx]
		}
	}
	return nil
}

// Close stops health checks and closes the storage backends
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		close(c.done)
		c.wg.Wait()
		for _, s := range []storage.Backend{c.coldStorage, c.failureStorage} {
			if s == nil {
				continue
			}
			if err := s.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}
