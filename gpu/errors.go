package gpu

import "github.com/cockroachdb/errors"

var (
	ErrNotReady          = errors.New("resource is not ready")
	ErrAlreadyConfigured = errors.New("resource is already configured")
	ErrPoolCreated       = errors.New("descriptor pool already created")
	ErrPipelineBuilt     = errors.New("pipeline already built")
	ErrNoMemoryType      = errors.New("failed to find any suitable memory type")
	ErrLinearBlit        = errors.New("format does not support linear blitting")
	ErrLayoutMismatch    = errors.New("image layout mismatch")
)
