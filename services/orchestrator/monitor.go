package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"smartshop/crawler/logger"
)

// TrackedProduct is one product under price watch
type TrackedProduct struct {
	ProductID string  `json:"product_id"`
	Platform  string  `json:"platform"`
	LastPrice float64 `json:"last_price"`
}

// PriceChange is emitted exactly once per detected change
type PriceChange struct {
	ProductID string    `json:"product_id"`
	Platform  string    `json:"platform"`
	Title     string    `json:"title,omitempty"`
	OldPrice  float64   `json:"old_price"`
	NewPrice  float64   `json:"new_price"`
	At        time.Time `json:"at"`
}

// ChangeFunc is the notification callback
type ChangeFunc func(PriceChange)

// Monitor periodically re-fetches tracked products and fires the callback
// on price changes. One product failing never stops the loop.
type Monitor struct {
	svc      *Service
	interval time.Duration
	onChange ChangeFunc
	log      *logger.Logger

	mu        sync.Mutex
	tracked   []TrackedProduct
	lastPrice map[string]float64
	cancel    context.CancelFunc
	done      chan struct{}
	running   bool
}

// NewMonitor creates a monitor over the given tracked products
func NewMonitor(svc *Service, tracked []TrackedProduct, interval time.Duration, onChange ChangeFunc) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	lastPrice := make(map[string]float64, len(tracked))
	for _, t := range tracked {
		lastPrice[trackKey(t.Platform, t.ProductID)] = t.LastPrice
	}
	return &Monitor{
		svc:       svc,
		interval:  interval,
		onChange:  onChange,
		log:       logger.ForMonitor(),
		tracked:   append([]TrackedProduct(nil), tracked...),
		lastPrice: lastPrice,
	}
}

// Track adds a product to the watch list; safe while running
func (m *Monitor) Track(t TrackedProduct) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked = append(m.tracked, t)
	m.lastPrice[trackKey(t.Platform, t.ProductID)] = t.LastPrice
}

// Start launches the polling loop. It returns immediately; Stop (or the
// parent context) halts the loop within one interval.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true
	m.mu.Unlock()

	go m.loop(ctx)
	return nil
}

// Stop halts the loop and waits for it to exit
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()
	<-done

	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.runCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			m.log.Info().Msg("Price monitor stopped")
			return
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

func (m *Monitor) runCycle(ctx context.Context) {
	cycleID := uuid.NewString()

	m.mu.Lock()
	tracked := append([]TrackedProduct(nil), m.tracked...)
	m.mu.Unlock()

	for _, t := range tracked {
		if ctx.Err() != nil {
			return
		}

		// Bypass the detail cache: a cached price would mask the change
		product, err := m.svc.GetDetails(ctx, t.ProductID, t.Platform, true)
		if err != nil {
			m.log.Error().
				Str("cycle", cycleID).
				Str("platform", t.Platform).
				Str("product_id", t.ProductID).
				Err(err).
				Msg("Tracked product lookup rejected")
			continue
		}
		if product == nil || product.Price <= 0 {
			m.log.Debug().
				Str("cycle", cycleID).
				Str("platform", t.Platform).
				Str("product_id", t.ProductID).
				Msg("Tracked product unavailable this cycle")
			continue
		}

		key := trackKey(t.Platform, t.ProductID)
		m.mu.Lock()
		old := m.lastPrice[key]
		changed := product.Price != old
		if changed {
			m.lastPrice[key] = product.Price
		}
		m.mu.Unlock()

		if !changed {
			continue
		}

		change := PriceChange{
			ProductID: t.ProductID,
			Platform:  t.Platform,
			Title:     product.Title,
			OldPrice:  old,
			NewPrice:  product.Price,
			At:        time.Now(),
		}
		m.log.Info().
			Str("cycle", cycleID).
			Str("platform", change.Platform).
			Str("product_id", change.ProductID).
			Float64("old_price", change.OldPrice).
			Float64("new_price", change.NewPrice).
			Msg("Price change detected")

		if m.onChange != nil {
			m.onChange(change)
		}
		if data, err := json.Marshal(change); err == nil {
			m.svc.publishPriceChange(data)
		}
	}
}

func trackKey(platform, productID string) string {
	return normalizePlatform(platform) + ":" + productID
}
