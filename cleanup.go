package replica

// CleanupHandle identifies a task added to a replica's cleanup list.
type CleanupHandle uint64

// cleanup runs each of its tasks exactly once, most recently added first.
// Tasks added after disposal run immediately.
type cleanup struct {
	next     CleanupHandle
	tasks    []cleanupTask
	disposed bool
}

type cleanupTask struct {
	handle CleanupHandle
	fn     func()
}

func (c *cleanup) add(fn func()) CleanupHandle {
	c.next++
	if c.disposed {
		fn()
		return c.next
	}
	c.tasks = append(c.tasks, cleanupTask{c.next, fn})
	return c.next
}

func (c *cleanup) remove(h CleanupHandle) bool {
	for i, t := range c.tasks {
		if t.handle == h {
			c.tasks = append(c.tasks[:i:i], c.tasks[i+1:]...)
			return true
		}
	}
	return false
}

func (c *cleanup) dispose() {
	if c.disposed {
		return
	}
	c.disposed = true
	for len(c.tasks) > 0 {
		last := c.tasks[len(c.tasks)-1]
		c.tasks = c.tasks[:len(c.tasks)-1]
		last.fn()
	}
}

func (c *cleanup) len() int {
	return len(c.tasks)
}
