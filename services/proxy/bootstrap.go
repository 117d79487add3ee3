package proxy

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// LoadFile seeds the pool from a JSON bootstrap list of records.
// The file is an ordered array of Record objects.
func (p *Pool) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read proxy bootstrap file: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse proxy bootstrap file: %w", err)
	}

	for _, rec := range records {
		if rec.Host == "" || rec.Port <= 0 || rec.Port > 65535 {
			continue
		}
		p.Add(rec)
	}

	p.log.Info().
		Int("loaded", len(records)).
		Str("path", path).
		Msg("Proxy pool bootstrapped")
	return nil
}

// SaveFile persists the current records back to the bootstrap file so
// observed health survives restarts. Records are written in key order.
func (p *Pool) SaveFile(path string) error {
	p.mu.Lock()
	records := make([]Record, 0, len(p.records))
	for _, rec := range p.records {
		records = append(records, *rec)
	}
	p.mu.Unlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].Key() < records[j].Key()
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal proxy records: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write proxy bootstrap file: %w", err)
	}
	return nil
}
