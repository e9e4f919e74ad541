package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"flock-sentinel/internal/engine"
	"flock-sentinel/internal/matcher"
	"flock-sentinel/internal/rules"
	"flock-sentinel/internal/vocab"
)

var created = time.Date(2024, 3, 9, 8, 30, 0, 0, time.UTC)

func sampleRuleSet() *rules.RuleSet {
	return &rules.RuleSet{
		Version: rules.RuleSetVersion,
		Literal: []rules.LiteralRule{
			{
				ID:             "patrol",
				Name:           "Patrol hotspot",
				Description:    "Vehicle hotspot",
				Domain:         vocab.DomainWiFi,
				Kind:           matcher.KindRegex,
				Pattern:        "(?i)^patrol.*",
				Field:          "ssid",
				Classification: "Police vehicle",
				ThreatScore:    75,
				Manufacturer:   "Unknown",
				Specific:       true,
				Enabled:        false,
				CreatedAt:      created,
				Source:         rules.SourceCustom,
			},
		},
		Heuristic: []rules.HeuristicRule{
			{
				ID:     "imsi",
				Name:   "IMSI catcher",
				Domain: vocab.DomainCellular,
				Conditions: []rules.Condition{
					{Field: "signal_strength", Operator: rules.OpGreaterThan, Value: "80"},
					{Field: "timing_advance", Operator: rules.OpBetween, Value: "0", Secondary: rules.StringPtr("2")},
					{Field: "cell_id_changed", Operator: rules.OpEquals, Value: "true"},
				},
				Mode:           rules.ModeAny,
				Classification: "Cell-site simulator",
				ThreatScore:    90,
				CooldownMs:     60000,
				Enabled:        true,
				CreatedAt:      created,
			},
		},
		Categories: map[string]bool{"tracking-beacons": false, "flock-alpr": true},
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "rules.yaml")
	s := NewFileStore(path)
	ctx := context.Background()

	if _, err := s.Load(ctx); !IsNotFound(err) {
		t.Fatalf("Load() on missing file error = %v, want not found", err)
	}

	want := sampleRuleSet()
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the rule file, found %d entries", len(entries))
	}
}

func TestFileStore_InvalidData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	data := []byte("version: 1\nheuristic:\n  - id: empty\n    name: Empty\n    domain: wifi\n    mode: all\n    classification: x\n")
	if err := os.WriteFile(path, data, 0600); err != nil {
		t.Fatal(err)
	}

	_, err := NewFileStore(path).Load(context.Background())
	if !errors.Is(err, ErrInvalidData) {
		t.Fatalf("Load() error = %v, want ErrInvalidData", err)
	}
	if !errors.Is(err, rules.ErrNoConditions) {
		t.Errorf("Load() error = %v, want to wrap ErrNoConditions", err)
	}
	var se *StorageError
	if !errors.As(err, &se) || se.Op != "Load" {
		t.Errorf("expected StorageError with Op=Load, got %v", err)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	literal := `
- id: dir-token
  name: Directory token
  domain: rf
  kind: token
  pattern: DMR
  field: protocol
  classification: Radio
  threat_score: 20
  enabled: true
`
	heuristic := `
id: dir-jam
name: Jamming
domain: gnss
conditions:
  - field: agc_level
    operator: less_than
    value: "10"
mode: all
classification: GNSS jamming
threat_score: 70
cooldown_ms: 1000
enabled: true
`
	files := map[string]string{
		"10-literal.yaml":  literal,
		"20-heuristic.yml": heuristic,
		"30-broken.yaml":   "- id: [",
		"notes.txt":        "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0600); err != nil {
			t.Fatal(err)
		}
	}

	rs, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	if len(rs.Literal) != 1 || rs.Literal[0].ID != "dir-token" || rs.Literal[0].Source != rules.SourceCustom {
		t.Errorf("literal rules = %+v", rs.Literal)
	}
	if len(rs.Heuristic) != 1 || rs.Heuristic[0].ID != "dir-jam" {
		t.Errorf("heuristic rules = %+v", rs.Heuristic)
	}

	missing, err := LoadDir(filepath.Join(dir, "missing"))
	if err != nil || len(missing.Literal)+len(missing.Heuristic) != 0 {
		t.Errorf("LoadDir(missing) = %+v, %v", missing, err)
	}
}

type memStore struct {
	saved []*rules.RuleSet
	err   error
}

func (m *memStore) Load(context.Context) (*rules.RuleSet, error) {
	if len(m.saved) == 0 {
		return nil, WrapNotFoundError("Load", "")
	}
	return m.saved[len(m.saved)-1], nil
}

func (m *memStore) Save(_ context.Context, rs *rules.RuleSet) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, rs)
	return nil
}

type staticSource struct{ rs *rules.RuleSet }

func (s staticSource) Snapshot() *rules.RuleSet { return s.rs }

func TestSyncer_FlushOnShutdown(t *testing.T) {
	ms := &memStore{}
	s := NewSyncer(ms, staticSource{rs: sampleRuleSet()}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	s.Trigger()
	s.Trigger()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	saves, err := s.Stats()
	if err != nil {
		t.Fatalf("last error = %v", err)
	}
	if saves != 1 || len(ms.saved) != 1 {
		t.Errorf("saves = %d, stored = %d, want 1", saves, len(ms.saved))
	}
}

func TestSyncer_FlushError(t *testing.T) {
	ms := &memStore{err: errors.New("disk full")}
	s := NewSyncer(ms, staticSource{rs: sampleRuleSet()}, 0)

	if err := s.Flush(context.Background()); err == nil {
		t.Fatal("Flush() expected error")
	}
	if _, err := s.Stats(); err == nil {
		t.Error("Stats() should report the last error")
	}
}

func TestSyncer_PersistsImportNotReload(t *testing.T) {
	tests := []struct {
		name      string
		apply     func(*engine.Engine, *rules.RuleSet) error
		wantSaves int
	}{
		{"reload from store", (*engine.Engine).LoadRuleSet, 0},
		{"import", (*engine.Engine).ImportRuleSet, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, err := engine.New(engine.DefaultConfig())
			if err != nil {
				t.Fatal(err)
			}
			fs := NewFileStore(filepath.Join(t.TempDir(), "rules.yaml"))
			s := NewSyncer(fs, eng, time.Hour)
			eng.OnChange(s.Listener())

			if err := tt.apply(eng, sampleRuleSet()); err != nil {
				t.Fatalf("apply error = %v", err)
			}

			// A cancelled Run only writes when a save is pending.
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			s.Run(ctx)

			saves, lastErr := s.Stats()
			if lastErr != nil {
				t.Fatalf("last error = %v", lastErr)
			}
			if saves != tt.wantSaves {
				t.Fatalf("saves = %d, want %d", saves, tt.wantSaves)
			}

			stored, err := fs.Load(context.Background())
			if tt.wantSaves == 0 {
				if !IsNotFound(err) {
					t.Errorf("Load() error = %v, want not found", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if len(stored.Literal) != 1 || stored.Literal[0].ID != "patrol" || len(stored.Heuristic) != 1 {
				t.Errorf("stored = %+v", stored)
			}
			if stored.Categories["tracking-beacons"] {
				t.Error("imported category toggle was not stored")
			}
		})
	}
}

func TestLoadDir_SeedRules(t *testing.T) {
	const seedDir = "../../rules"

	files, err := filepath.Glob(filepath.Join(seedDir, "*.yaml"))
	if err != nil || len(files) == 0 {
		t.Fatalf("no seed files found: %v", err)
	}
	// LoadDir skips broken files, so parse each one directly first.
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if strings.Contains(filepath.Base(path), "heuristic") {
			_, err = rules.ParseHeuristicRules(data)
		} else {
			_, err = rules.ParseLiteralRules(data)
		}
		if err != nil {
			t.Errorf("%s: %v", path, err)
		}
	}

	rs, err := LoadDir(seedDir)
	if err != nil {
		t.Fatalf("LoadDir() error = %v", err)
	}
	eng, err := engine.New(engine.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.LoadRuleSet(rs); err != nil {
		t.Fatalf("seed rules rejected by the engine: %v", err)
	}

	tests := []struct {
		name   string
		fields map[string]any
		want   string
	}{
		{"strong hidden network", map[string]any{"ssid": "", "hidden": true, "rssi": -40}, "heur-wifi-hidden-strong"},
		{"weak encryption", map[string]any{"ssid": "attic", "encryption": "WEP", "rssi": -80}, "heur-wifi-weak-encryption"},
		{"karma", map[string]any{"ssid": "attic", "probe_ssids_answered": 3}, "heur-wifi-karma"},
		{"honeypot name", map[string]any{"ssid": "Airport_Free_WiFi", "encryption": "open"}, "custom-wips-honeypot-name"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &engine.Observation{
				Domain:    vocab.DomainWiFi,
				Fields:    tt.fields,
				Timestamp: created.Add(time.Duration(i) * time.Hour),
			}
			var ids []string
			for _, a := range eng.Submit(context.Background(), obs) {
				ids = append(ids, a.RuleID)
			}
			if len(ids) != 1 || ids[0] != tt.want {
				t.Errorf("anomalies = %v, want [%s]", ids, tt.want)
			}
		})
	}

	quiet := &engine.Observation{
		Domain:    vocab.DomainWiFi,
		Fields:    map[string]any{"ssid": "", "hidden": true, "rssi": -70, "encryption": "WPA2"},
		Timestamp: created.Add(10 * time.Hour),
	}
	if got := eng.Submit(context.Background(), quiet); len(got) != 0 {
		t.Errorf("weak hidden WPA2 network produced %d anomalies", len(got))
	}
}
