package gpu

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/loader"
)

type trackedImage struct {
	name   string
	layout core1_0.ImageLayout
}

// Validator records the last layout each image was moved to and checks later
// operations against it. A nil *Validator accepts everything.
type Validator struct {
	mu      sync.Mutex
	strict  bool
	layouts map[loader.VkImage]trackedImage
}

// NewValidator returns a validator that logs mismatches, or fails them with
// ErrLayoutMismatch when strict is set.
func NewValidator(strict bool) *Validator {
	return &Validator{
		strict:  strict,
		layouts: make(map[loader.VkImage]trackedImage),
	}
}

// Observe records layout as the current layout of image without checking.
func (v *Validator) Observe(image core1_0.Image, name string, layout core1_0.ImageLayout) {
	if v == nil {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.layouts[image.Handle()] = trackedImage{name: name, layout: layout}
}

// Transition checks that oldLayout matches the recorded layout of image, then
// records newLayout.
func (v *Validator) Transition(image core1_0.Image, name string, oldLayout, newLayout core1_0.ImageLayout) error {
	if v == nil {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	var err error
	if last, ok := v.layouts[image.Handle()]; ok && last.layout != oldLayout {
		err = v.report(name, "transition", last.layout, oldLayout)
	}
	v.layouts[image.Handle()] = trackedImage{name: name, layout: newLayout}
	return err
}

// Expect checks that image was last moved to want before op uses it.
func (v *Validator) Expect(image core1_0.Image, want core1_0.ImageLayout, op string) error {
	if v == nil {
		return nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	last, ok := v.layouts[image.Handle()]
	if !ok {
		return v.report("untracked image", op, core1_0.ImageLayoutUndefined, want)
	}
	if last.layout != want {
		return v.report(last.name, op, last.layout, want)
	}
	return nil
}

func (v *Validator) Layout(image core1_0.Image) (core1_0.ImageLayout, bool) {
	if v == nil {
		return core1_0.ImageLayoutUndefined, false
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	last, ok := v.layouts[image.Handle()]
	return last.layout, ok
}

func (v *Validator) Forget(image core1_0.Image) {
	if v == nil {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.layouts, image.Handle())
}

func (v *Validator) report(name, op string, have, want core1_0.ImageLayout) error {
	if !v.strict {
		Logger().Warn("image layout mismatch",
			"image", name, "op", op,
			"recorded", have.String(), "expected", want.String())
		return nil
	}
	return errors.Wrapf(ErrLayoutMismatch, "%s on %s: recorded %s, expected %s", op, name, have, want)
}
