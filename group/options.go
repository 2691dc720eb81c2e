package group

import (
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/tao-jia/collgroup/internal/xerrors"
	"github.com/tao-jia/collgroup/transport"
)

// Options configures group construction.
type Options struct {
	// Devices must be non-empty; context 0 is used for every
	// collective dispatch in this package.
	Devices []transport.Device
	// TimeoutMS bounds both rendezvous waits and collective calls.
	TimeoutMS int `envconfig:"TIMEOUT_MS" default:"10000"`
	// Threads sizes the worker pool. 1 gives strict global FIFO
	// ordering across submissions; >1 allows the engine to reorder
	// between submissions.
	Threads int `envconfig:"THREADS" default:"2"`
	// CacheNumAlgorithmEntries is plumbed through for interface parity
	// with the external transport library but unused by this package;
	// treated as reserved for a future algorithm cache.
	CacheNumAlgorithmEntries int `envconfig:"CACHE_NUM_ALGORITHM_ENTRIES" default:"1"`
}

func (o Options) timeout() time.Duration {
	return time.Duration(o.TimeoutMS) * time.Millisecond
}

func (o Options) validate() error {
	if len(o.Devices) == 0 {
		return xerrors.Fatalf("options", "devices must be non-empty")
	}
	if o.Threads <= 0 {
		return xerrors.Fatalf("options", "threads must be positive, got %d", o.Threads)
	}
	return nil
}

// DefaultOptions returns the documented defaults with a single
// loopback device, suitable for single-host testing.
func DefaultOptions() Options {
	return Options{
		Devices:   []transport.Device{{ListenHost: "127.0.0.1"}},
		TimeoutMS: 10000,
		Threads:   2,

		CacheNumAlgorithmEntries: 1,
	}
}

// OptionsFromEnv overlays environment variables (GROUP_TIMEOUT_MS,
// GROUP_THREADS, GROUP_CACHE_NUM_ALGORITHM_ENTRIES) onto
// DefaultOptions, so a deployed group member can be tuned without a
// recompile. Devices are never read from the environment; callers set
// them explicitly.
func OptionsFromEnv() (Options, error) {
	opt := DefaultOptions()
	if err := envconfig.Process("group", &opt); err != nil {
		return Options{}, xerrors.Fatal("options", err)
	}
	return opt, nil
}
