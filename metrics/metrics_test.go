package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	LockAcquired.Inc()
	QueuePublished.WithLabelValues("tasks").Inc()
	QueueConsumers.WithLabelValues("tasks").Set(4)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) < 3 {
		t.Fatalf("expected metrics registered, got %d", len(mfs))
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	Register(reg)
}
