package broker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dshills/databroker/internal/data"
)

type delivery struct {
	info  data.Info
	pkg   data.Package
	param int
}

// recorder is a Receiver that keeps every delivery.
type recorder struct {
	mu  sync.Mutex
	got []delivery
}

func (r *recorder) Receive(info data.Info, pkg data.Package, param int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, delivery{info: info, pkg: pkg, param: param})
}

func (r *recorder) all() []delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]delivery(nil), r.got...)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

func (r *recorder) last() delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.got) == 0 {
		return delivery{}
	}
	return r.got[len(r.got)-1]
}

func pkgOf(name string, v float64) data.Package {
	var p data.Package
	data.Add(&p, name, v)
	return p
}

func startedBroker(t *testing.T, opts ...Option) *Broker {
	t.Helper()
	opts = append([]Option{WithDispatchIdle(5 * time.Millisecond)}, opts...)
	b := New(opts...)
	require.NoError(t, b.Start())
	t.Cleanup(func() {
		if b.Running() {
			_ = b.Stop()
		}
	})
	return b
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
