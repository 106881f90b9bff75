package dispatch

import (
	"strings"
	"sync/atomic"
)

// Share sources reported by getShareSource.
const (
	ShareSourceFiles      = "files"
	ShareSourceMoodboards = "moodboards"
)

// Intent holds the component name of the most recent launch. A new launch
// replaces it.
type Intent struct {
	component atomic.Pointer[string]
}

// NewIntent returns an Intent for component.
func NewIntent(component string) *Intent {
	i := &Intent{}
	i.SetComponent(component)
	return i
}

// SetComponent records a new launch.
func (i *Intent) SetComponent(component string) {
	i.component.Store(&component)
}

// Component returns the current component name.
func (i *Intent) Component() string {
	if c := i.component.Load(); c != nil {
		return *c
	}
	return ""
}

// ShareSource is "files" when the launch came through the share-to-files
// entry point and "moodboards" for everything else.
func (i *Intent) ShareSource() string {
	if strings.Contains(i.Component(), "ShareToFiles") {
		return ShareSourceFiles
	}
	return ShareSourceMoodboards
}
