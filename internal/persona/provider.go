package persona

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
)

// Provider hands out the current persona snapshot. Caching and refresh policy
// live behind this interface; the relay only ever calls GetCurrent.
type Provider interface {
	GetCurrent() Snapshot
}

// FileProvider loads personas from a JSON file and caches the parsed snapshot
// until Reload is called (typically from the /update-config route).
type FileProvider struct {
	path string

	mu   sync.RWMutex
	snap Snapshot
}

// NewFileProvider reads the personas file once up front. A missing or broken
// file is logged and leaves an empty snapshot; Default() still yields a
// usable persona.
func NewFileProvider(path string) *FileProvider {
	p := &FileProvider{path: path}
	if err := p.Reload(); err != nil {
		log.Printf("personas: %v (using built-in default)", err)
	}
	return p
}

// GetCurrent returns the cached snapshot.
func (p *FileProvider) GetCurrent() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Reload re-reads the personas file and swaps the cached snapshot.
func (p *FileProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return fmt.Errorf("read personas file: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("parse personas file: %w", err)
	}
	p.mu.Lock()
	p.snap = snap
	p.mu.Unlock()
	log.Printf("personas: loaded %d personas from %s", len(snap.Personas), p.path)
	return nil
}

// Update merges partial settings for one persona into the file and swaps in
// a fresh snapshot. Snapshots already handed out are never mutated: calls in
// flight keep the persona they resolved.
func (p *FileProvider) Update(id string, update Persona) error {
	if id == "" {
		return fmt.Errorf("missing persona id")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	next := Snapshot{DefaultID: p.snap.DefaultID}
	next.Personas = make([]Persona, len(p.snap.Personas))
	copy(next.Personas, p.snap.Personas)

	found := false
	for i := range next.Personas {
		if next.Personas[i].ID != id {
			continue
		}
		found = true
		if update.Name != "" {
			next.Personas[i].Name = update.Name
		}
		if update.Model != "" {
			next.Personas[i].Model = update.Model
		}
		if update.Voice != "" {
			next.Personas[i].Voice = update.Voice
		}
		if update.Temperature != 0 {
			next.Personas[i].Temperature = update.Temperature
		}
		if update.Speed != 0 {
			next.Personas[i].Speed = update.Speed
		}
		if update.Instructions != "" {
			next.Personas[i].Instructions = update.Instructions
		}
		if update.Callers != nil {
			next.Personas[i].Callers = append([]string(nil), update.Callers...)
		}
	}
	if !found {
		return fmt.Errorf("unknown persona id %q", id)
	}

	data, err := json.MarshalIndent(next, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(p.path, data, 0o644); err != nil {
		return fmt.Errorf("write personas file: %w", err)
	}
	p.snap = next
	return nil
}

// StaticProvider wraps a fixed snapshot; handy for tests and single-persona
// deployments that configure everything via env.
type StaticProvider struct{ Snap Snapshot }

func (s StaticProvider) GetCurrent() Snapshot { return s.Snap }
