package fan

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// fakeChip creates a sysfs-like PWM chip directory with the channel
// already exported, the way the kernel presents a configured pwmchip.
func fakeChip(t *testing.T, channel int) string {
	t.Helper()
	chip := t.TempDir()
	for _, name := range []string{"export", "unexport"} {
		if err := os.WriteFile(filepath.Join(chip, name), nil, 0o644); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	dir := filepath.Join(chip, "pwm"+strconv.Itoa(channel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir channel: %v", err)
	}
	return chip
}

func readAttr(t *testing.T, chip string, channel int, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(chip, "pwm"+strconv.Itoa(channel), name))
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(data)
}

func TestNewPWMConfiguresChannel(t *testing.T) {
	chip := fakeChip(t, 2)

	p, err := NewPWM(chip, 2, 40000, 20000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := readAttr(t, chip, 2, "period"); got != "40000" {
		t.Errorf("period: got %q", got)
	}
	if got := readAttr(t, chip, 2, "enable"); got != "1" {
		t.Errorf("enable: got %q", got)
	}
	if p.Duty() != -1 {
		t.Errorf("duty before first write: got %d", p.Duty())
	}
}

func TestSetDutyClamps(t *testing.T) {
	chip := fakeChip(t, 2)
	p, err := NewPWM(chip, 2, 40000, 20000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.SetDuty(50000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readAttr(t, chip, 2, "duty_cycle"); got != "40000" {
		t.Errorf("duty above period must clamp, got %q", got)
	}

	if err := p.SetDuty(-5); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readAttr(t, chip, 2, "duty_cycle"); got != "0" {
		t.Errorf("negative duty must clamp to zero, got %q", got)
	}
	if p.Duty() != 0 {
		t.Errorf("tracked duty: got %d", p.Duty())
	}
}

func TestCloseParksFan(t *testing.T) {
	chip := fakeChip(t, 2)
	p, err := NewPWM(chip, 2, 40000, 20000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.SetDuty(30000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := p.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := readAttr(t, chip, 2, "duty_cycle"); got != "20000" {
		t.Errorf("shutdown duty: got %q", got)
	}
	if got := readAttr(t, chip, 2, "enable"); got != "0" {
		t.Errorf("channel must be disabled on close, got %q", got)
	}
	// The channel was already exported, so Close must not unexport it.
	if got, _ := os.ReadFile(filepath.Join(chip, "unexport")); len(got) != 0 {
		t.Errorf("unexpected unexport write: %q", got)
	}
}

func TestNewPWMMissingChip(t *testing.T) {
	if _, err := NewPWM(filepath.Join(t.TempDir(), "nope"), 2, 40000, 20000); err == nil {
		t.Error("expected error for missing chip directory")
	}
}
