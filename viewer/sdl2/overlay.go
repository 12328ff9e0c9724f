package main

import (
	"fmt"
	"time"

	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// titleOverlay reports the frame rate in the window title. It records no
// commands of its own.
type titleOverlay struct {
	title    string
	setTitle func(string)

	frames int
	since  time.Duration
}

func newTitleOverlay(title string, setTitle func(string)) *titleOverlay {
	return &titleOverlay{title: title, setTitle: setTitle, since: hrtime.Now()}
}

func (o *titleOverlay) Draw(core1_0.CommandBuffer) error {
	o.frames++

	now := hrtime.Now()
	elapsed := now - o.since
	if elapsed < time.Second {
		return nil
	}

	fps := float64(o.frames) / elapsed.Seconds()
	o.setTitle(fmt.Sprintf("%s - %.1f fps (%.2f ms)", o.title, fps, 1000/fps))
	o.frames = 0
	o.since = now
	return nil
}
