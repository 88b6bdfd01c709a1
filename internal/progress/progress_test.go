package progress

import "testing"

func TestCLIProgressBeforeStart(t *testing.T) {
	// Update and Finish before Start must be safe no-ops.
	p := NewCLIProgress()
	p.Update(3, "/tmp/x")
	p.Finish()
}

func TestCLIProgressCycle(t *testing.T) {
	p := NewCLIProgress()
	p.Start(2, "Scanning")
	p.Update(1, "/a")
	p.Update(2, "/b")
	p.Finish()
}

func TestNoOpProgress(t *testing.T) {
	var r Reporter = NoOpProgress{}
	r.Start(10, "Scanning")
	r.Update(5, "/a")
	r.Finish()
}
