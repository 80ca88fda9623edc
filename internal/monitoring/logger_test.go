package monitoring

import "testing"

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) { called = true })
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	// Setting nil installs a no-op; logging must not panic.
	SetLogger(nil)
	Logf("test message")
}

func TestSetDebug(t *testing.T) {
	original := Logf
	defer func() {
		Logf = original
		SetDebug(false)
	}()

	var got string
	SetLogger(func(format string, v ...interface{}) { got = format })

	Debugf("dropped frame")
	if got != "" {
		t.Error("Debugf logged while debug disabled")
	}

	SetDebug(true)
	Debugf("dropped frame")
	if got != "dropped frame" {
		t.Errorf("Debugf logged %q, want %q", got, "dropped frame")
	}

	SetDebug(false)
	got = ""
	Debugf("dropped frame")
	if got != "" {
		t.Error("Debugf logged after debug disabled")
	}
}
