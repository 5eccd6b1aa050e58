package connector

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MathewBravo/realtime-db/internal/configs"
	"github.com/MathewBravo/realtime-db/internal/events"
	"github.com/MathewBravo/realtime-db/pkg/listener"
	"github.com/MathewBravo/realtime-db/pkg/poller"
	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

var (
	ErrAlreadyStarted = errors.New("connector already started")
	ErrNotRunning     = errors.New("connector not running")
)

// TableStatus describes one polled table.
type TableStatus struct {
	Table    string        `json:"table"`
	Interval time.Duration `json:"interval"`
	Ticks    uint64        `json:"ticks"`
}

// PollingConnector polls the configured tables with an Engine and turns every
// listener callback into a ChangeEvent.
type PollingConnector struct {
	engine *poller.Engine
	config configs.ListenConfig

	mu        sync.Mutex
	tables    map[string]struct{}
	eventChan chan events.ChangeEvent
	stopChan  chan struct{}
	running   bool
	stopped   bool
}

func NewPollingConnector(engine *poller.Engine, cfg configs.ListenConfig) *PollingConnector {
	return &PollingConnector{
		engine: engine,
		config: cfg,
		tables: make(map[string]struct{}),
	}
}

func (c *PollingConnector) Start() (<-chan events.ChangeEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running || c.stopped {
		return nil, ErrAlreadyStarted
	}

	c.eventChan = make(chan events.ChangeEvent, 100)
	c.stopChan = make(chan struct{})
	c.running = true

	tables := make([]string, 0, len(c.config.Tables))
	for table := range c.config.Tables {
		tables = append(tables, table)
	}
	slices.Sort(tables)

	for _, table := range tables {
		if err := c.listen(table, c.config.IntervalFor(table)); err != nil {
			c.shutdown()
			return nil, err
		}
	}
	log.Info().Strs("tables", tables).Msg("Polling connector started")
	return c.eventChan, nil
}

// Listen starts, or restarts with a new interval, polling of table.
func (c *PollingConnector) Listen(table string, interval time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return ErrNotRunning
	}
	return c.listen(table, interval)
}

func (c *PollingConnector) listen(table string, interval time.Duration) error {
	for _, kind := range listener.Kinds {
		c.engine.On(table, kind, c.emitter(table, kind))
	}
	if _, err := c.engine.StartListening(table, interval); err != nil {
		c.unregister(table)
		return fmt.Errorf("CONN ERR: failed to listen on %s: %w", table, err)
	}
	c.tables[table] = struct{}{}
	return nil
}

// Unlisten stops polling table.
func (c *PollingConnector) Unlisten(table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return ErrNotRunning
	}
	if _, ok := c.tables[table]; !ok {
		return fmt.Errorf("%s: %w", table, poller.ErrNotListening)
	}
	c.unlisten(table)
	return nil
}

func (c *PollingConnector) unlisten(table string) {
	if err := c.engine.StopListening(table); err != nil && !errors.Is(err, poller.ErrNotListening) {
		log.Warn().Err(err).Str("table", table).Msg("Failed to stop table")
	}
	c.unregister(table)
	delete(c.tables, table)
}

func (c *PollingConnector) unregister(table string) {
	for _, kind := range listener.Kinds {
		c.engine.On(table, kind, nil)
	}
}

func (c *PollingConnector) emitter(table string, kind listener.Kind) listener.Func {
	stopChan := c.stopChan
	eventChan := c.eventChan
	return func(snap rowset.Snapshot) {
		ev := events.NewChangeEvent(kind, table, snap, time.Now())
		select {
		case eventChan <- ev:
		case <-stopChan:
		}
	}
}

// Tables lists the polled tables in name order.
func (c *PollingConnector) Tables() []TableStatus {
	c.mu.Lock()
	names := make([]string, 0, len(c.tables))
	for table := range c.tables {
		names = append(names, table)
	}
	c.mu.Unlock()
	slices.Sort(names)

	out := make([]TableStatus, 0, len(names))
	for _, table := range names {
		sub, ok := c.engine.Subscription(table)
		if !ok {
			continue
		}
		out = append(out, TableStatus{Table: table, Interval: sub.Interval(), Ticks: sub.Ticks()})
	}
	return out
}

// Snapshot returns the last rows seen for table, and false when the table is
// not polled.
func (c *PollingConnector) Snapshot(table string) (rowset.Snapshot, bool) {
	if !c.engine.Listening(table) {
		return nil, false
	}
	return c.engine.Snapshot(table), true
}

// Stop stops every table and closes the event channel. It is safe to call
// before Start and more than once.
func (c *PollingConnector) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		c.stopped = true
		return nil
	}
	c.shutdown()
	log.Info().Msg("Polling connector stopped")
	return nil
}

func (c *PollingConnector) shutdown() {
	close(c.stopChan)
	for table := range c.tables {
		c.unlisten(table)
	}
	close(c.eventChan)
	c.running = false
	c.stopped = true
}
