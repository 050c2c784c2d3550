package stale

import "testing"

type target struct {
	zoom     int
	rotation int
}

func TestBeginRefusesWhileBusy(t *testing.T) {
	var g Guard[target]

	if !g.Begin(target{96, 0}) {
		t.Fatal("first Begin should start")
	}
	if g.Begin(target{108, 0}) {
		t.Error("Begin while busy should not start")
	}
	if !g.Busy() {
		t.Error("Busy() = false while job in flight")
	}
}

func TestFinishCommitsWhenTargetStillLive(t *testing.T) {
	var g Guard[target]
	live := target{96, 90}

	g.Begin(live)
	if !g.Finish(live) {
		t.Fatal("Finish should commit when target == live")
	}
	if !g.Fresh(live) {
		t.Error("Fresh(live) = false after commit")
	}
	if g.Begin(live) {
		t.Error("Begin for an already fresh target should not start")
	}
	if tag, ok := g.Tag(); !ok || tag != live {
		t.Errorf("Tag() = %v, %v; want %v, true", tag, ok, live)
	}
}

func TestFinishDiscardsStaleResult(t *testing.T) {
	var g Guard[target]

	g.Begin(target{96, 0})
	// Live target moved on while the job was in flight.
	if g.Finish(target{120, 0}) {
		t.Fatal("Finish should discard when live target changed")
	}
	if g.Busy() {
		t.Error("guard should be idle after Finish")
	}
	if _, ok := g.Tag(); ok {
		t.Error("stale result must not become the committed tag")
	}
	if !g.Begin(target{120, 0}) {
		t.Error("Begin for the live target should start after a stale finish")
	}
}

func TestAbortKeepsLastFreshResult(t *testing.T) {
	var g Guard[target]
	first := target{96, 0}

	g.Begin(first)
	g.Finish(first)

	g.Begin(target{108, 0})
	g.Abort()

	if tag, ok := g.Tag(); !ok || tag != first {
		t.Errorf("Tag() after Abort = %v, %v; want %v", tag, ok, first)
	}
	if g.Busy() {
		t.Error("Abort should leave the guard idle")
	}
}

func TestWaitClosesOnSettle(t *testing.T) {
	var g Guard[string]

	if g.Wait() != nil {
		t.Error("Wait() on idle guard should be nil")
	}

	g.Begin("foo")
	ch := g.Wait()
	select {
	case <-ch:
		t.Fatal("Wait channel closed before settle")
	default:
	}

	g.Finish("foo")
	select {
	case <-ch:
	default:
		t.Fatal("Wait channel not closed after Finish")
	}
}

func TestInvalidateAndReset(t *testing.T) {
	var g Guard[string]
	g.Begin("a")
	g.Finish("a")

	g.Invalidate()
	if g.Fresh("a") {
		t.Error("Fresh after Invalidate")
	}
	if !g.Begin("a") {
		t.Error("Begin after Invalidate should start")
	}

	ch := g.Wait()
	g.Reset()
	select {
	case <-ch:
	default:
		t.Error("Reset should settle the in-flight job")
	}
	if g.Busy() {
		t.Error("Busy after Reset")
	}
}

// However many times the live target moves, the last Finish for the final
// target leaves the guard fresh for it.
func TestConvergesAfterRapidChanges(t *testing.T) {
	var g Guard[target]
	live := target{96, 0}
	zooms := []int{108, 120, 132, 120, 384, 48}

	g.Begin(live)
	for _, z := range zooms {
		live = target{z, 0}
		if g.Finish(live) {
			t.Fatalf("Finish committed a job issued for an older target")
		}
		g.Begin(live)
	}
	if !g.Finish(live) {
		t.Fatal("job for final target should commit")
	}
	if !g.Fresh(target{48, 0}) {
		t.Error("guard not fresh for final target")
	}
}
