package dvfs

import (
	"context"

	"github.com/drowningchild/dpmcore/internal/dpm"
)

// PowerOps returns callbacks that let the governor sit in the device
// registry. Suspend stops sample processing and resume restarts it at the
// lowest step.
func (g *Governor) PowerOps() *dpm.Ops {
	return &dpm.Ops{
		Suspend: func(_ context.Context, _ *dpm.Device) error {
			g.Suspend()
			return nil
		},
		Resume: func(_ context.Context, _ *dpm.Device) error {
			return g.Resume()
		},
	}
}
