package logging

import "testing"

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("not-a-level", false); err == nil {
		t.Fatal("expected error for unknown level")
	}
}

func TestNewBuildsJSONAndConsoleEncoders(t *testing.T) {
	for _, verbose := range []bool{false, true} {
		logger, err := New("info", verbose)
		if err != nil {
			t.Fatalf("New(verbose=%v): %v", verbose, err)
		}
		defer logger.Sync()
		logger.Info("smoke test")
	}
}

func TestMustPanicsOnBadLevel(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected Must to panic on bad level")
		}
	}()
	Must("bogus", false)
}
