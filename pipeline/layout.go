package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// PushRange declares a push constant block of size bytes at offset 0.
func PushRange(stages core1_0.ShaderStageFlags, size int) core1_0.PushConstantRange {
	return core1_0.PushConstantRange{
		StageFlags: stages,
		Offset:     0,
		Size:       size,
	}
}

// SetLayout creates the pipeline layout from set layouts in set order and
// the push constant ranges.
func (p *Pipeline) SetLayout(setLayouts []core1_0.DescriptorSetLayout, pushConstants ...core1_0.PushConstantRange) error {
	if err := p.mutable("set layout"); err != nil {
		return err
	}
	if p.layout.Initialized() {
		return errors.Newf("set layout on pipeline %s: layout already set", p.name)
	}

	driver := p.ctx.Driver
	layout, _, err := driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts:         setLayouts,
		PushConstantRanges: pushConstants,
	})
	if err != nil {
		return errors.Wrapf(err, "create pipeline layout %s", p.name)
	}
	p.layout = layout
	p.cleaner.Push(func() { driver.DestroyPipelineLayout(layout, nil) })
	return nil
}
