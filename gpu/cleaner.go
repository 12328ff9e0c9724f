package gpu

// Cleaner holds release actions in acquisition order and runs them in
// reverse. The zero value is ready to use.
type Cleaner struct {
	actions []func()
}

func (c *Cleaner) Push(action func()) {
	c.actions = append(c.actions, action)
}

// Flush runs every pending action, last pushed first, and empties the stack.
// Calling it again is a no-op until new actions are pushed.
func (c *Cleaner) Flush(owner string) {
	if len(c.actions) == 0 {
		return
	}

	Logger().Debug("flush cleaner", "owner", owner, "actions", len(c.actions))
	for i := len(c.actions) - 1; i >= 0; i-- {
		c.actions[i]()
	}
	c.actions = c.actions[:0]
}

func (c *Cleaner) Len() int {
	return len(c.actions)
}
