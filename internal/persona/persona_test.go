package persona

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		DefaultID: "billy",
		Personas: []Persona{
			{ID: "billy", Name: "Billy's Steakhouse", Model: "gpt-realtime", Voice: "cedar", Temperature: 0.8, Callers: []string{"+15550001111"}},
			{ID: "ryan", Name: "Ryan's Steakhouse", Model: "gpt-realtime", Voice: "marin", Temperature: 0.7, Callers: []string{"+15550002222", "+15550003333"}},
		},
	}
}

func TestResolve_MatchesCallerNumber(t *testing.T) {
	snap := sampleSnapshot()
	got := Resolve("+15550002222", snap)
	if got.ID != "ryan" {
		t.Fatalf("expected ryan, got %s", got.ID)
	}
}

func TestResolve_UnknownCallerGetsDefault(t *testing.T) {
	snap := sampleSnapshot()
	got := Resolve("+19998887777", snap)
	if got.ID != "billy" {
		t.Fatalf("expected default billy, got %s", got.ID)
	}
	if got = Resolve("", snap); got.ID != "billy" {
		t.Fatalf("expected default billy for empty caller, got %s", got.ID)
	}
}

func TestDefault_FallsBackWhenEmpty(t *testing.T) {
	var snap Snapshot
	p := snap.Default()
	if p.Model == "" || p.Voice == "" {
		t.Fatalf("built-in fallback persona must be usable: %+v", p)
	}
}

func TestFileProvider_LoadAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.json")
	content := `{"default":"billy","personas":[{"id":"billy","name":"Billy","model":"gpt-realtime","voice":"cedar","temperature":0.8}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewFileProvider(path)
	if got := p.GetCurrent().Default(); got.ID != "billy" {
		t.Fatalf("expected billy, got %s", got.ID)
	}

	updated := `{"default":"ryan","personas":[{"id":"ryan","name":"Ryan","model":"gpt-realtime","voice":"marin","temperature":0.7}]}`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := p.GetCurrent().Default(); got.ID != "ryan" {
		t.Fatalf("expected ryan after reload, got %s", got.ID)
	}
}

func TestFileProvider_UpdatePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.json")
	content := `{"default":"billy","personas":[{"id":"billy","name":"Billy","model":"gpt-realtime","voice":"cedar","temperature":0.8}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	p := NewFileProvider(path)
	if err := p.Update("billy", Persona{Voice: "alloy"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := p.GetCurrent().Default(); got.Voice != "alloy" {
		t.Fatalf("expected voice alloy, got %s", got.Voice)
	}
	if got := p.GetCurrent().Default(); got.Name != "Billy" {
		t.Fatalf("untouched field changed: %s", got.Name)
	}

	// A fresh provider must see the persisted change.
	p2 := NewFileProvider(path)
	if got := p2.GetCurrent().Default(); got.Voice != "alloy" {
		t.Fatalf("expected persisted voice alloy, got %s", got.Voice)
	}
}

func TestFileProvider_UpdateUnknownID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.json")
	if err := os.WriteFile(path, []byte(`{"default":"billy","personas":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewFileProvider(path)
	if err := p.Update("nope", Persona{Voice: "alloy"}); err == nil {
		t.Fatalf("expected error for unknown persona id")
	}
}

func TestFileProvider_UpdateDoesNotMutatePublishedSnapshots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.json")
	content := `{"default":"billy","personas":[{"id":"billy","name":"Billy","model":"gpt-realtime","voice":"cedar","temperature":0.8,"callers":["+15550001111"]}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewFileProvider(path)

	before := p.GetCurrent()
	if err := p.Update("billy", Persona{Voice: "marin", Callers: []string{"+15550009999"}}); err != nil {
		t.Fatalf("update: %v", err)
	}

	if got := before.Personas[0].Voice; got != "cedar" {
		t.Fatalf("published snapshot mutated: voice = %q", got)
	}
	if got := before.Personas[0].Callers[0]; got != "+15550001111" {
		t.Fatalf("published snapshot mutated: callers = %v", before.Personas[0].Callers)
	}
	if got := p.GetCurrent().Personas[0].Voice; got != "marin" {
		t.Fatalf("new snapshot missing update: voice = %q", got)
	}
}

func TestFileProvider_ConcurrentUpdateAndResolve(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "personas.json")
	content := `{"default":"billy","personas":[{"id":"billy","name":"Billy","model":"gpt-realtime","voice":"cedar","temperature":0.8,"callers":["+15550001111"]}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewFileProvider(path)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			got := Resolve("+15550001111", p.GetCurrent())
			if got.ID != "billy" {
				t.Errorf("resolve returned %q", got.ID)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			voice := "cedar"
			if i%2 == 1 {
				voice = "marin"
			}
			if err := p.Update("billy", Persona{Voice: voice, Instructions: "updated"}); err != nil {
				t.Errorf("update: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}
