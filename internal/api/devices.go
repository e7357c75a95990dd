package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/drowningchild/dpmcore/internal/dpm"
)

// deviceResponse is the JSON view of a registered device.
type deviceResponse struct {
	Name     string     `json:"name"`
	Driver   string     `json:"driver,omitempty"`
	Parent   string     `json:"parent,omitempty"`
	Status   dpm.Status `json:"status"`
	Async    bool       `json:"async"`
	Wakeup   bool       `json:"wakeup"`
	Children int        `json:"children"`
}

func newDeviceResponse(d *dpm.Device) deviceResponse {
	resp := deviceResponse{
		Name:     d.Name(),
		Driver:   d.Driver(),
		Status:   d.Status(),
		Async:    d.AsyncSuspend,
		Wakeup:   d.WakeupCapable,
		Children: len(d.Children()),
	}
	if p := d.Parent(); p != nil {
		resp.Parent = p.Name()
	}
	return resp
}

// handleListDevices returns all devices in registry order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.manager.Registry().Devices()
	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		out = append(out, newDeviceResponse(d))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": out,
		"count":   len(out),
	})
}

// handleGetDevice returns a single device by name.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	d, ok := s.manager.Registry().Lookup(name)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceResponse(d))
}
