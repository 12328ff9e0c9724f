package resource

import (
	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/gpu"
)

// State is the configuration phase of a Buffer or Image. Operations that
// touch the device object refuse to run before Ready.
type State int

const (
	Unconfigured State = iota
	Configured
	Allocated
	Ready
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case Configured:
		return "configured"
	case Allocated:
		return "allocated"
	case Ready:
		return "ready"
	}
	return "unknown"
}

func (s State) require(want State, op string) error {
	if s == want {
		return nil
	}
	if want == Unconfigured {
		return errors.Wrapf(gpu.ErrAlreadyConfigured, "%s: state is %s", op, s)
	}
	return errors.Wrapf(gpu.ErrNotReady, "%s: state is %s, need %s", op, s, want)
}
