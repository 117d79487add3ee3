package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"smartshop/crawler/internal/extractor"
)

// priceFeed is an extractor whose detail price can be changed between cycles
type priceFeed struct {
	platform string
	mu       sync.Mutex
	price    float64
	missing  bool
}

func (f *priceFeed) Platform() string { return f.platform }

func (f *priceFeed) Search(ctx context.Context, keyword string, maxPages int) ([]extractor.Product, error) {
	return nil, nil
}

func (f *priceFeed) GetDetails(ctx context.Context, productID string) (*extractor.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.missing {
		return nil, nil
	}
	return &extractor.Product{
		Platform:  f.platform,
		ProductID: productID,
		Title:     "Watched Item",
		Price:     f.price,
		CrawlTime: time.Now(),
	}, nil
}

func (f *priceFeed) setPrice(p float64) {
	f.mu.Lock()
	f.price = p
	f.mu.Unlock()
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []PriceChange
}

func (r *changeRecorder) record(c PriceChange) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *changeRecorder) snapshot() []PriceChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]PriceChange(nil), r.changes...)
}

func TestMonitor_FiresExactlyOncePerChange(t *testing.T) {
	feed := &priceFeed{platform: "jd", price: 100}
	svc, _ := newTestService(t, feed)

	recorder := &changeRecorder{}
	monitor := NewMonitor(svc, []TrackedProduct{
		{ProductID: "1", Platform: "jd", LastPrice: 100},
	}, 30*time.Millisecond, recorder.record)

	assert.NoError(t, monitor.Start(context.Background()))
	defer monitor.Stop()

	// The price has not moved: no event
	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, recorder.snapshot())

	// Drop the price once: exactly one event, then silence
	feed.setPrice(80)
	time.Sleep(150 * time.Millisecond)

	changes := recorder.snapshot()
	assert.Len(t, changes, 1, "an unchanged price must not re-fire")
	assert.Equal(t, "1", changes[0].ProductID)
	assert.Equal(t, "jd", changes[0].Platform)
	assert.Equal(t, 100.0, changes[0].OldPrice)
	assert.Equal(t, 80.0, changes[0].NewPrice)
	assert.Equal(t, "Watched Item", changes[0].Title)
}

func TestMonitor_FiresAgainOnNextChange(t *testing.T) {
	feed := &priceFeed{platform: "jd", price: 100}
	svc, _ := newTestService(t, feed)

	recorder := &changeRecorder{}
	monitor := NewMonitor(svc, []TrackedProduct{
		{ProductID: "1", Platform: "jd", LastPrice: 100},
	}, 25*time.Millisecond, recorder.record)

	assert.NoError(t, monitor.Start(context.Background()))
	defer monitor.Stop()

	feed.setPrice(80)
	time.Sleep(80 * time.Millisecond)
	feed.setPrice(90)
	time.Sleep(80 * time.Millisecond)

	changes := recorder.snapshot()
	assert.Len(t, changes, 2)
	assert.Equal(t, 80.0, changes[1].OldPrice)
	assert.Equal(t, 90.0, changes[1].NewPrice)
}

func TestMonitor_UnavailableProductSkipsCycle(t *testing.T) {
	feed := &priceFeed{platform: "jd", price: 100, missing: true}
	svc, _ := newTestService(t, feed)

	recorder := &changeRecorder{}
	monitor := NewMonitor(svc, []TrackedProduct{
		{ProductID: "1", Platform: "jd", LastPrice: 100},
	}, 20*time.Millisecond, recorder.record)

	assert.NoError(t, monitor.Start(context.Background()))
	time.Sleep(70 * time.Millisecond)
	monitor.Stop()

	assert.Empty(t, recorder.snapshot(), "an unavailable product never counts as a change")
}

func TestMonitor_StopHaltsPromptly(t *testing.T) {
	feed := &priceFeed{platform: "jd", price: 100}
	svc, _ := newTestService(t, feed)

	monitor := NewMonitor(svc, []TrackedProduct{
		{ProductID: "1", Platform: "jd", LastPrice: 100},
	}, time.Hour, nil)

	assert.NoError(t, monitor.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		monitor.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return promptly")
	}

	// A stopped monitor can be restarted
	assert.NoError(t, monitor.Start(context.Background()))
	monitor.Stop()
}

func TestMonitor_StartTwiceFails(t *testing.T) {
	feed := &priceFeed{platform: "jd", price: 100}
	svc, _ := newTestService(t, feed)

	monitor := NewMonitor(svc, nil, time.Hour, nil)
	assert.NoError(t, monitor.Start(context.Background()))
	defer monitor.Stop()

	assert.Error(t, monitor.Start(context.Background()))
}

func TestMonitor_TrackWhileRunning(t *testing.T) {
	feed := &priceFeed{platform: "jd", price: 50}
	svc, _ := newTestService(t, feed)

	recorder := &changeRecorder{}
	monitor := NewMonitor(svc, nil, 25*time.Millisecond, recorder.record)
	assert.NoError(t, monitor.Start(context.Background()))
	defer monitor.Stop()

	monitor.Track(TrackedProduct{ProductID: "2", Platform: "jd", LastPrice: 60})
	time.Sleep(80 * time.Millisecond)

	changes := recorder.snapshot()
	assert.NotEmpty(t, changes)
	assert.Equal(t, 60.0, changes[0].OldPrice)
	assert.Equal(t, 50.0, changes[0].NewPrice)
}
