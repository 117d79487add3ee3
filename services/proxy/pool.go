package proxy

import (
	"fmt"
	"math/rand"
	"net/url"
	"sort"
	"sync"
	"time"

	"smartshop/crawler/logger"
)

const (
	// banThreshold is the consecutive-failure count at which a proxy is banned
	banThreshold = 5
	// banDuration is how long a banned proxy stays unselectable
	banDuration = 30 * time.Minute
)

// Record holds one proxy with its observed health
type Record struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Username     string        `json:"username,omitempty"`
	Password     string        `json:"password,omitempty"`
	Protocol     string        `json:"protocol"`
	Weight       int           `json:"weight"`
	Region       string        `json:"region,omitempty"`
	LastUsed     time.Time     `json:"last_used,omitempty"`
	FailureCount int           `json:"failure_count"`
	ResponseTime time.Duration `json:"response_time,omitempty"`
}

// Key returns the host:port identity of the record
func (r *Record) Key() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// URL builds the proxy URL including credentials
func (r *Record) URL() *url.URL {
	u := &url.URL{
		Scheme: r.Protocol,
		Host:   r.Key(),
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	if r.Username != "" {
		if r.Password != "" {
			u.User = url.UserPassword(r.Username, r.Password)
		} else {
			u.User = url.User(r.Username)
		}
	}
	return u
}

// Stats is a read-only snapshot of pool health
type Stats struct {
	Total           int            `json:"total"`
	Banned          int            `json:"banned"`
	AvgResponseTime time.Duration  `json:"avg_response_time"`
	ByRegion        map[string]int `json:"by_region"`
	TopFailures     []Record       `json:"top_failures"`
}

// Pool manages proxy records, selection and temporary bans.
// All mutation goes through Add/Remove and the success/failure reports.
type Pool struct {
	mu      sync.Mutex
	records map[string]*Record
	bans    map[string]time.Time
	timers  map[string]*time.Timer
	rnd     *rand.Rand
	closed  bool
	log     *logger.Logger
}

// NewPool creates an empty pool
func NewPool() *Pool {
	return &Pool{
		records: make(map[string]*Record),
		bans:    make(map[string]time.Time),
		timers:  make(map[string]*time.Timer),
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		log:     logger.ForPool(),
	}
}

// Add inserts a record, merging weight and region into an existing (host,port) entry
func (p *Pool) Add(rec Record) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if rec.Protocol == "" {
		rec.Protocol = "http"
	}
	key := rec.Key()
	if existing, ok := p.records[key]; ok {
		if rec.Weight > 0 {
			existing.Weight = rec.Weight
		}
		if rec.Region != "" {
			existing.Region = rec.Region
		}
		return
	}
	if rec.Weight <= 0 {
		rec.Weight = 1
	}
	copied := rec
	p.records[key] = &copied

	p.log.Debug().
		Str("proxy", key).
		Str("region", rec.Region).
		Int("weight", rec.Weight).
		Msg("Proxy added to pool")
}

// Remove deletes a record; unknown keys are a no-op
func (p *Pool) Remove(host string, port int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := fmt.Sprintf("%s:%d", host, port)
	delete(p.records, key)
	delete(p.bans, key)
	if t, ok := p.timers[key]; ok {
		t.Stop()
		delete(p.timers, key)
	}
}

// Select picks a proxy for the next request. Banned proxies are filtered out,
// the survivors are ranked by (response time, failure count), and a
// weighted-random choice is made over the best half. A nil result means the
// pool has nothing selectable and the caller should proceed without a proxy.
func (p *Pool) Select() *Record {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	candidates := make([]*Record, 0, len(p.records))
	for key, rec := range p.records {
		if expiry, banned := p.bans[key]; banned && now.Before(expiry) {
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ResponseTime != candidates[j].ResponseTime {
			return candidates[i].ResponseTime < candidates[j].ResponseTime
		}
		return candidates[i].FailureCount < candidates[j].FailureCount
	})

	half := (len(candidates) + 1) / 2
	best := candidates[:half]

	total := 0
	for _, rec := range best {
		if rec.Weight > 0 {
			total += rec.Weight
		}
	}

	var chosen *Record
	if total == 0 {
		chosen = best[p.rnd.Intn(len(best))]
	} else {
		n := p.rnd.Intn(total)
		for _, rec := range best {
			if rec.Weight <= 0 {
				continue
			}
			n -= rec.Weight
			if n < 0 {
				chosen = rec
				break
			}
		}
	}

	snapshot := *chosen
	return &snapshot
}

// ReportSuccess records a successful request through the proxy
func (p *Pool) ReportSuccess(key string, responseTime time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		return
	}
	if rec.FailureCount > 0 {
		rec.FailureCount--
	}
	rec.ResponseTime = responseTime
	rec.LastUsed = time.Now()
}

// ReportFailure records a failed request; the fifth consecutive failure bans
// the proxy for banDuration with a cancellable unban timer.
func (p *Pool) ReportFailure(key string, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[key]
	if !ok {
		return
	}
	rec.FailureCount++
	rec.LastUsed = time.Now()

	p.log.Debug().
		Str("proxy", key).
		Int("failures", rec.FailureCount).
		Str("reason", reason).
		Msg("Proxy failure reported")

	if rec.FailureCount >= banThreshold {
		p.banLocked(key)
	}
}

// banLocked bans a proxy and schedules its unban. Caller must hold p.mu.
func (p *Pool) banLocked(key string) {
	if p.closed {
		return
	}
	expiry := time.Now().Add(banDuration)
	p.bans[key] = expiry

	if t, ok := p.timers[key]; ok {
		t.Stop()
	}
	p.timers[key] = time.AfterFunc(banDuration, func() {
		p.unban(key)
	})

	p.log.Warn().
		Str("proxy", key).
		Time("until", expiry).
		Msg("Proxy banned")
}

func (p *Pool) unban(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.bans, key)
	delete(p.timers, key)
	if rec, ok := p.records[key]; ok {
		rec.FailureCount = 0
	}
	p.log.Info().Str("proxy", key).Msg("Proxy ban expired")
}

// IsBanned reports whether the proxy currently has a live ban entry
func (p *Pool) IsBanned(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	expiry, ok := p.bans[key]
	return ok && time.Now().Before(expiry)
}

// CleanupExpired removes proxies unused for longer than maxAge and returns
// the number removed
func (p *Pool) CleanupExpired(maxAge time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for key, rec := range p.records {
		if rec.LastUsed.IsZero() || rec.LastUsed.After(cutoff) {
			continue
		}
		delete(p.records, key)
		delete(p.bans, key)
		if t, ok := p.timers[key]; ok {
			t.Stop()
			delete(p.timers, key)
		}
		removed++
	}
	if removed > 0 {
		p.log.Info().Int("removed", removed).Msg("Cleaned up stale proxies")
	}
	return removed
}

// Len returns the number of records in the pool
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.records)
}

// Get returns a snapshot of one record
func (p *Pool) Get(host string, port int) (Record, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, ok := p.records[fmt.Sprintf("%s:%d", host, port)]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Statistics returns a read-only health snapshot
func (p *Pool) Statistics() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := Stats{
		Total:    len(p.records),
		ByRegion: make(map[string]int),
	}

	now := time.Now()
	var totalRT time.Duration
	measured := 0
	all := make([]Record, 0, len(p.records))
	for key, rec := range p.records {
		if expiry, banned := p.bans[key]; banned && now.Before(expiry) {
			stats.Banned++
		}
		region := rec.Region
		if region == "" {
			region = "unknown"
		}
		stats.ByRegion[region]++
		if rec.ResponseTime > 0 {
			totalRT += rec.ResponseTime
			measured++
		}
		all = append(all, *rec)
	}
	if measured > 0 {
		stats.AvgResponseTime = totalRT / time.Duration(measured)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].FailureCount > all[j].FailureCount
	})
	topN := 5
	if topN > len(all) {
		topN = len(all)
	}
	stats.TopFailures = all[:topN]

	return stats
}

// Close cancels all pending unban timers. The pool stays readable but no new
// bans are scheduled, so shutdown never waits on a timer.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	for key, t := range p.timers {
		t.Stop()
		delete(p.timers, key)
	}
}
