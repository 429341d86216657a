package shutdown

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/runbeat/runbeat/pkg/logging"
)

func testManager() *Manager {
	log := logging.NewLogger(logging.ERROR, false)
	log.SetOutput(io.Discard)
	return New(time.Second, log)
}

func TestShutdownRunsInReverseOrder(t *testing.T) {
	m := testManager()

	var order []int
	for i := 0; i < 3; i++ {
		i := i
		m.Register(func(ctx context.Context) error {
			order = append(order, i)
			return nil
		})
	}

	m.Shutdown()

	if len(order) != 3 || order[0] != 2 || order[1] != 1 || order[2] != 0 {
		t.Errorf("shutdown order = %v, want [2 1 0]", order)
	}
}

func TestShutdownContinuesAfterError(t *testing.T) {
	m := testManager()

	ran := false
	m.Register(func(ctx context.Context) error {
		ran = true
		return nil
	})
	m.Register(func(ctx context.Context) error {
		return errors.New("boom")
	})

	m.Shutdown()

	if !ran {
		t.Error("later shutdown steps must still run after an earlier failure")
	}
}

type fakeCloser struct {
	closed bool
	err    error
}

func (f *fakeCloser) Close() error {
	f.closed = true
	return f.err
}

func TestCloseResource(t *testing.T) {
	c := &fakeCloser{}
	fn := CloseResource(c, "store")

	if err := fn(context.Background()); err != nil {
		t.Fatalf("CloseResource failed: %v", err)
	}
	if !c.closed {
		t.Error("resource was not closed")
	}

	c = &fakeCloser{err: errors.New("busy")}
	if err := CloseResource(c, "store")(context.Background()); err == nil {
		t.Error("expected wrapped close error")
	}
}
