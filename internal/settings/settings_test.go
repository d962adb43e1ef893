package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fieldcrew/crewclock/internal/kv"
)

// failingKV fails every write.
type failingKV struct {
	kv.Store
}

func (failingKV) Set(context.Context, string, []byte) error {
	return errors.New("disk full")
}

func fp(v float64) *float64 { return &v }
func bp(v bool) *bool       { return &v }
func ip(v int) *int         { return &v }

func TestDefaultsAreValid(t *testing.T) {
	d := Defaults()
	if err := d.Validate(); err != nil {
		t.Fatalf("Defaults().Validate() = %v", err)
	}
	if d.DoubleTimeEnabled {
		t.Error("double time should be off by default")
	}
	if d.RoundingIntervalMinutes != 0 {
		t.Errorf("RoundingIntervalMinutes = %d, want 0", d.RoundingIntervalMinutes)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr error
	}{
		{"defaults", func(s *Settings) {}, nil},
		{"negative overtime threshold", func(s *Settings) { s.OvertimeThresholdHours = -1 }, ErrNegativeValue},
		{"negative overhead", func(s *Settings) { s.OverheadMultiplier = -0.1 }, ErrNegativeValue},
		{"negative benefits", func(s *Settings) { s.BenefitsPercentage = -0.1 }, ErrNegativeValue},
		{"overtime multiplier below one", func(s *Settings) { s.OvertimeMultiplier = 0.9 }, ErrMultiplierTooLow},
		{"unknown policy", func(s *Settings) { s.BreakDeductionPolicy = "auto_45min" }, ErrUnknownBreakPolicy},
		{"double time below overtime", func(s *Settings) {
			s.DoubleTimeEnabled = true
			s.DoubleTimeThresholdHours = 8
		}, ErrDoubleTimeThreshold},
		{"double time multiplier below one", func(s *Settings) {
			s.DoubleTimeEnabled = true
			s.DoubleTimeMultiplier = 0.5
		}, ErrMultiplierTooLow},
		{"double time disabled ignores threshold", func(s *Settings) {
			s.DoubleTimeThresholdHours = 1
		}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Defaults()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
			var fe *FieldError
			if !errors.As(err, &fe) || fe.Field == "" {
				t.Errorf("Validate() = %v, want a FieldError naming the field", err)
			}
		})
	}
}

func TestStoreGetDefaultsWhenEmpty(t *testing.T) {
	s := NewStore(StoreConfig{KV: kv.NewMemory()})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got := s.Get()
	if got.OvertimeThresholdHours != 8 || got.OvertimeMultiplier != 1.5 {
		t.Errorf("Get() = %+v, want defaults", got)
	}
}

func TestStoreCorruptFallsBackToDefaults(t *testing.T) {
	mem := kv.NewMemory()
	if err := mem.Set(context.Background(), Key, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	var warned bool
	s := NewStore(StoreConfig{
		KV: mem,
		LogFn: func(level, msg string) {
			if level == "warn" {
				warned = true
			}
		},
	})
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := s.Get().OvertimeMultiplier; got != 1.5 {
		t.Errorf("OvertimeMultiplier = %v, want 1.5", got)
	}
	if !warned {
		t.Error("expected a warning for corrupt settings")
	}
}

func TestStoreUpdatePersists(t *testing.T) {
	mem := kv.NewMemory()
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s := NewStore(StoreConfig{KV: mem, Now: func() time.Time { return fixed }})
	ctx := context.Background()

	got, err := s.Update(ctx, Patch{OvertimeThresholdHours: fp(10), OverheadMultiplier: fp(0.2)}, "admin-1")
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.OvertimeThresholdHours != 10 || got.OverheadMultiplier != 0.2 {
		t.Errorf("Update result = %+v", got)
	}
	if got.UpdatedBy != "admin-1" || !got.UpdatedAt.Equal(fixed) {
		t.Errorf("audit = %s @ %v, want admin-1 @ %v", got.UpdatedBy, got.UpdatedAt, fixed)
	}
	if got.OvertimeMultiplier != 1.5 {
		t.Errorf("untouched field changed: OvertimeMultiplier = %v", got.OvertimeMultiplier)
	}

	// A fresh store over the same KV sees the update.
	s2 := NewStore(StoreConfig{KV: mem})
	if err := s2.Load(ctx); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if v := s2.Get().OvertimeThresholdHours; v != 10 {
		t.Errorf("reloaded OvertimeThresholdHours = %v, want 10", v)
	}
}

func TestStoreUpdateRejectsInvalid(t *testing.T) {
	s := NewStore(StoreConfig{KV: kv.NewMemory()})
	before := s.Get()

	_, err := s.Update(context.Background(), Patch{OvertimeMultiplier: fp(0.5)}, "admin")
	if !errors.Is(err, ErrMultiplierTooLow) {
		t.Fatalf("Update = %v, want ErrMultiplierTooLow", err)
	}
	if s.Get() != before {
		t.Error("invalid update must not change the snapshot")
	}
}

func TestStoreUpdateStorageFailureKeepsSnapshot(t *testing.T) {
	s := NewStore(StoreConfig{KV: failingKV{kv.NewMemory()}})
	before := s.Get()

	if _, err := s.Update(context.Background(), Patch{OvertimeThresholdHours: fp(9)}, "admin"); err == nil {
		t.Fatal("Update should fail when the store fails")
	}
	if s.Get() != before {
		t.Error("failed persist must not change the snapshot")
	}
}

func TestStoreAutoPolicyNormalizesDuration(t *testing.T) {
	tests := []struct {
		policy BreakDeductionPolicy
		want   int
	}{
		{BreakPolicyAuto30, 30},
		{BreakPolicyAuto60, 60},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			s := NewStore(StoreConfig{KV: kv.NewMemory()})
			p := tt.policy
			got, err := s.Update(context.Background(), Patch{
				BreakDeductionPolicy:     &p,
				AutoBreakDurationMinutes: ip(45),
			}, "admin")
			if err != nil {
				t.Fatalf("Update: %v", err)
			}
			if got.AutoBreakDurationMinutes != tt.want {
				t.Errorf("AutoBreakDurationMinutes = %d, want %d", got.AutoBreakDurationMinutes, tt.want)
			}
		})
	}
}

func TestStoreConcurrentPartialUpdates(t *testing.T) {
	s := NewStore(StoreConfig{KV: kv.NewMemory()})
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := s.Update(ctx, Patch{OvertimeThresholdHours: fp(9)}, "a"); err != nil {
			t.Errorf("Update a: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := s.Update(ctx, Patch{RequireGPSForClockOut: bp(false)}, "b"); err != nil {
			t.Errorf("Update b: %v", err)
		}
	}()
	wg.Wait()

	got := s.Get()
	if got.OvertimeThresholdHours != 9 {
		t.Errorf("OvertimeThresholdHours = %v, want 9", got.OvertimeThresholdHours)
	}
	if got.RequireGPSForClockOut {
		t.Error("RequireGPSForClockOut should be false")
	}
}

func TestPatchIsEmpty(t *testing.T) {
	if !(Patch{}).IsEmpty() {
		t.Error("zero Patch should be empty")
	}
	if (Patch{AllowGPSlessExceptions: bp(false)}).IsEmpty() {
		t.Error("Patch with a field should not be empty")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `overtime_threshold_hours: 10
overtime_multiplier: 2
break_deduction_policy: auto_60min
require_gps_for_clock_out: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if s.OvertimeThresholdHours != 10 || s.OvertimeMultiplier != 2 {
		t.Errorf("overtime = %v x%v, want 10 x2", s.OvertimeThresholdHours, s.OvertimeMultiplier)
	}
	if s.AutoBreakDurationMinutes != 60 {
		t.Errorf("AutoBreakDurationMinutes = %d, want 60", s.AutoBreakDurationMinutes)
	}
	if s.RequireGPSForClockOut {
		t.Error("RequireGPSForClockOut should be false")
	}
	if !s.RequireGPSForClockIn {
		t.Error("RequireGPSForClockIn should keep its default")
	}
}

func TestLoadFileInvalid(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("overtime_multiplier: 0.5\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(bad); !errors.Is(err, ErrMultiplierTooLow) {
		t.Errorf("LoadFile(bad) = %v, want ErrMultiplierTooLow", err)
	}
	if _, err := LoadFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("LoadFile(missing) should fail")
	}
}
