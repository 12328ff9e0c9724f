// Package descriptor groups the descriptor set layouts, pool and sets a
// stage binds through the fixed slots S0..S4.
package descriptor

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/thinfilm/renderer/gpu"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// Slot is a descriptor set index.
type Slot int

const (
	S0 Slot = iota
	S1
	S2
	S3
	S4

	SlotCount = 5
)

func (s Slot) String() string {
	return "S" + strconv.Itoa(int(s))
}

func (s Slot) valid() bool {
	return s >= S0 && s < SlotCount
}

// Binding is one entry of a set layout.
type Binding struct {
	Index  int
	Type   core1_0.DescriptorType
	Count  int
	Stages core1_0.ShaderStageFlags
}

type slotState int

const (
	slotEmpty slotState = iota
	slotBuilding
	slotFinalized
)

type entry struct {
	state    slotState
	bindings []Binding
	layout   core1_0.DescriptorSetLayout
	set      core1_0.DescriptorSet
	writes   []core1_0.WriteDescriptorSet
}

// Group owns the set layouts, the pool sized from them and the sets
// allocated from the pool.
type Group struct {
	ctx     *gpu.Context
	name    string
	cleaner gpu.Cleaner

	sets [SlotCount]entry
	pool core1_0.DescriptorPool
}

func NewGroup(ctx *gpu.Context, name string) *Group {
	return &Group{ctx: ctx, name: name}
}

func (g *Group) slot(slot Slot) (*entry, error) {
	if !slot.valid() {
		return nil, errors.Newf("descriptor group %s: invalid slot %d", g.name, int(slot))
	}
	return &g.sets[slot], nil
}

// BeginLayout starts collecting bindings for slot.
func (g *Group) BeginLayout(slot Slot) error {
	if g.pool.Initialized() {
		return errors.Wrapf(gpu.ErrPoolCreated, "begin layout %s in %s", slot, g.name)
	}
	s, err := g.slot(slot)
	if err != nil {
		return err
	}
	if s.state != slotEmpty {
		return errors.Newf("begin layout %s in %s: slot already in use", slot, g.name)
	}

	s.state = slotBuilding
	return nil
}

// AddBinding appends a single-descriptor binding to the layout being built.
func (g *Group) AddBinding(slot Slot, index int, descriptorType core1_0.DescriptorType, stages core1_0.ShaderStageFlags) error {
	return g.AddBindingArray(slot, index, descriptorType, 1, stages)
}

func (g *Group) AddBindingArray(slot Slot, index int, descriptorType core1_0.DescriptorType, count int, stages core1_0.ShaderStageFlags) error {
	s, err := g.slot(slot)
	if err != nil {
		return err
	}
	if s.state != slotBuilding {
		return errors.Newf("add binding %s.%d in %s: layout not begun", slot, index, g.name)
	}
	for _, b := range s.bindings {
		if b.Index == index {
			return errors.Newf("add binding %s.%d in %s: duplicate binding", slot, index, g.name)
		}
	}

	s.bindings = append(s.bindings, Binding{
		Index:  index,
		Type:   descriptorType,
		Count:  count,
		Stages: stages,
	})
	return nil
}

// FinalizeLayout creates the set layout for slot.
func (g *Group) FinalizeLayout(slot Slot) error {
	s, err := g.slot(slot)
	if err != nil {
		return err
	}
	if s.state != slotBuilding {
		return errors.Newf("finalize layout %s in %s: layout not begun", slot, g.name)
	}

	var bindings []core1_0.DescriptorSetLayoutBinding
	for _, b := range s.bindings {
		bindings = append(bindings, core1_0.DescriptorSetLayoutBinding{
			Binding:         b.Index,
			DescriptorType:  b.Type,
			DescriptorCount: b.Count,
			StageFlags:      b.Stages,
		})
	}

	driver := g.ctx.Driver
	layout, _, err := driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{
		Bindings: bindings,
	})
	if err != nil {
		return errors.Wrapf(err, "create descriptor set layout %s in %s", slot, g.name)
	}
	g.cleaner.Push(func() { driver.DestroyDescriptorSetLayout(layout, nil) })

	s.layout = layout
	s.state = slotFinalized
	return nil
}

// PoolSizes sums descriptor counts per type over layouts, in order of first
// appearance.
func PoolSizes(layouts ...[]Binding) []core1_0.DescriptorPoolSize {
	var sizes []core1_0.DescriptorPoolSize
	index := make(map[core1_0.DescriptorType]int)

	for _, bindings := range layouts {
		for _, b := range bindings {
			i, ok := index[b.Type]
			if !ok {
				i = len(sizes)
				index[b.Type] = i
				sizes = append(sizes, core1_0.DescriptorPoolSize{Type: b.Type})
			}
			sizes[i].DescriptorCount += b.Count
		}
	}
	return sizes
}

// CreatePool creates a pool holding exactly one set per finalized layout.
// No layout may be added afterwards.
func (g *Group) CreatePool() error {
	if g.pool.Initialized() {
		return errors.Wrapf(gpu.ErrPoolCreated, "create pool %s", g.name)
	}

	var layouts [][]Binding
	for slot := range g.sets {
		s := &g.sets[slot]
		if s.state == slotBuilding {
			return errors.Newf("create pool %s: layout %s not finalized", g.name, Slot(slot))
		}
		if s.state == slotFinalized {
			layouts = append(layouts, s.bindings)
		}
	}
	if len(layouts) == 0 {
		return errors.Newf("create pool %s: no finalized layouts", g.name)
	}

	sizes := PoolSizes(layouts...)
	driver := g.ctx.Driver
	pool, _, err := driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   len(layouts),
		PoolSizes: sizes,
	})
	if err != nil {
		return errors.Wrapf(err, "create descriptor pool %s", g.name)
	}
	g.cleaner.Push(func() { driver.DestroyDescriptorPool(pool, nil) })
	g.pool = pool

	gpu.Logger().Debug("create descriptor pool", "group", g.name, "sets", len(layouts), "sizes", len(sizes))
	return nil
}

// Allocate allocates the set for slot from the pool.
func (g *Group) Allocate(slot Slot) error {
	s, err := g.slot(slot)
	if err != nil {
		return err
	}
	if !g.pool.Initialized() {
		return errors.Wrapf(gpu.ErrNotReady, "allocate set %s in %s: no pool", slot, g.name)
	}
	if s.state != slotFinalized {
		return errors.Newf("allocate set %s in %s: layout not finalized", slot, g.name)
	}
	if s.set.Initialized() {
		return errors.Newf("allocate set %s in %s: already allocated", slot, g.name)
	}

	sets, _, err := g.ctx.Driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: g.pool,
		SetLayouts:     []core1_0.DescriptorSetLayout{s.layout},
	})
	if err != nil {
		return errors.Wrapf(err, "allocate descriptor set %s in %s", slot, g.name)
	}
	s.set = sets[0]
	return nil
}

// AllocateAll allocates every finalized slot.
func (g *Group) AllocateAll() error {
	for slot := range g.sets {
		if g.sets[slot].state != slotFinalized {
			continue
		}
		if err := g.Allocate(Slot(slot)); err != nil {
			return err
		}
	}
	return nil
}

func (g *Group) binding(s *entry, slot Slot, index int) (Binding, error) {
	if !s.set.Initialized() {
		return Binding{}, errors.Wrapf(gpu.ErrNotReady, "bind %s.%d in %s: set not allocated", slot, index, g.name)
	}
	for _, b := range s.bindings {
		if b.Index == index {
			return b, nil
		}
	}
	return Binding{}, errors.Newf("bind %s.%d in %s: no such binding", slot, index, g.name)
}

// BindBuffer stages a buffer write. It takes effect at the next Flush.
func (g *Group) BindBuffer(slot Slot, index int, info core1_0.DescriptorBufferInfo) error {
	s, err := g.slot(slot)
	if err != nil {
		return err
	}
	b, err := g.binding(s, slot, index)
	if err != nil {
		return err
	}

	s.writes = append(s.writes, core1_0.WriteDescriptorSet{
		DstSet:          s.set,
		DstBinding:      index,
		DstArrayElement: 0,
		DescriptorType:  b.Type,
		BufferInfo:      []core1_0.DescriptorBufferInfo{info},
	})
	return nil
}

// BindImage stages an image write. It takes effect at the next Flush.
func (g *Group) BindImage(slot Slot, index int, info core1_0.DescriptorImageInfo) error {
	s, err := g.slot(slot)
	if err != nil {
		return err
	}
	b, err := g.binding(s, slot, index)
	if err != nil {
		return err
	}

	s.writes = append(s.writes, core1_0.WriteDescriptorSet{
		DstSet:          s.set,
		DstBinding:      index,
		DstArrayElement: 0,
		DescriptorType:  b.Type,
		ImageInfo:       []core1_0.DescriptorImageInfo{info},
	})
	return nil
}

// Flush applies the staged writes of slot in a single update.
func (g *Group) Flush(slot Slot) error {
	s, err := g.slot(slot)
	if err != nil {
		return err
	}
	if len(s.writes) == 0 {
		return nil
	}

	err = g.ctx.Driver.UpdateDescriptorSets(s.writes, nil)
	if err != nil {
		return errors.Wrapf(err, "update descriptor set %s in %s", slot, g.name)
	}
	s.writes = nil
	return nil
}

// Pending is the number of staged writes for slot.
func (g *Group) Pending(slot Slot) int {
	if !slot.valid() {
		return 0
	}
	return len(g.sets[slot].writes)
}

func (g *Group) Set(slot Slot) core1_0.DescriptorSet {
	return g.sets[slot].set
}

func (g *Group) Layout(slot Slot) core1_0.DescriptorSetLayout {
	return g.sets[slot].layout
}

// Layouts returns the finalized layouts in slot order, as pipeline layouts
// expect them.
func (g *Group) Layouts() []core1_0.DescriptorSetLayout {
	var layouts []core1_0.DescriptorSetLayout
	for slot := range g.sets {
		if g.sets[slot].state == slotFinalized {
			layouts = append(layouts, g.sets[slot].layout)
		}
	}
	return layouts
}

// Sets returns the allocated sets from first through last, inclusive.
func (g *Group) Sets(first, last Slot) []core1_0.DescriptorSet {
	var sets []core1_0.DescriptorSet
	for slot := first; slot <= last; slot++ {
		sets = append(sets, g.sets[slot].set)
	}
	return sets
}

// Cleanup destroys the pool, which frees its sets, and then the layouts.
func (g *Group) Cleanup() {
	g.cleaner.Flush("descriptor group " + g.name)
	g.sets = [SlotCount]entry{}
	g.pool = core1_0.DescriptorPool{}
}
