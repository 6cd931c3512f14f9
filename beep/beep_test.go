package beep

import (
	"testing"
)

func TestGenerateTickLength(t *testing.T) {
	s := generateTick(1000, 100, 0.05, 0.5, 10)
	if len(s) != 50 {
		t.Fatalf("len = %d, want 50", len(s))
	}
	if s[0] != 0 {
		t.Errorf("first sample = %d, want 0 at phase zero", s[0])
	}
}

func TestGenerateTickDecays(t *testing.T) {
	s := generateTick(sampleRate, 440, 0.5, 1, 20)
	peak := func(from, to int) int {
		m := 0
		for _, v := range s[from:to] {
			a := int(v)
			if a < 0 {
				a = -a
			}
			m = max(m, a)
		}
		return m
	}
	early := peak(0, 2000)
	late := peak(len(s)-2000, len(s))
	if late >= early {
		t.Fatalf("envelope did not decay: early peak %d, late peak %d", early, late)
	}
}

func TestGenerateDoubleBeep(t *testing.T) {
	tick := generateTick(1000, 100, 0.02, 0.5, 10)
	s := generateDoubleBeep(1000, 100, 0.02, 0.01, 0.5, 10)
	if len(s) != 2*len(tick)+10 {
		t.Fatalf("len = %d, want %d", len(s), 2*len(tick)+10)
	}
	for i, v := range s[len(tick) : len(tick)+10] {
		if v != 0 {
			t.Fatalf("gap sample %d = %d, want silence", i, v)
		}
	}
}

func TestDisabledSkipsInit(t *testing.T) {
	Disable()
	PlayStart()
	PlayLimit()
	if startSamples != nil {
		t.Fatal("disabled cue rendered samples")
	}
}
