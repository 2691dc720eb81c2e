package group

import (
	"context"
	"time"

	"github.com/tao-jia/collgroup/internal/xerrors"
	"github.com/tao-jia/collgroup/rendezvous"
	"github.com/tao-jia/collgroup/transport"
)

// contextSet owns one connected transport context per configured
// device, established by fullmesh rendezvous at construction time.
// Collective dispatch in this package always uses index 0; the remaining
// entries exist so a caller can configure more than one transport
// device without the group needing to change shape later.
type contextSet struct {
	contexts []*transport.Context
}

func newContextSet(ctx context.Context, store rendezvous.Store, devices []transport.Device, rank, size int, timeout time.Duration) (*contextSet, error) {
	if len(devices) == 0 {
		return nil, xerrors.Fatalf("contextset", "devices must be non-empty")
	}
	contexts := make([]*transport.Context, 0, len(devices))
	for _, dev := range devices {
		c, err := transport.Connect(ctx, store, dev, rank, size, timeout)
		if err != nil {
			for _, opened := range contexts {
				opened.Close()
			}
			return nil, xerrors.Fatal("contextset", err)
		}
		contexts = append(contexts, c)
	}
	return &contextSet{contexts: contexts}, nil
}

// primary is the context every collective in this package dispatches
// through.
func (s *contextSet) primary() *transport.Context {
	return s.contexts[0]
}

func (s *contextSet) closeAll() {
	for _, c := range s.contexts {
		c.Close()
	}
}
