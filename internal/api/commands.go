package api

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/drowningchild/dpmcore/internal/infrastructure/mqtt"
)

// Remote command names, the last segment of dpmcore/command/{name}.
const (
	commandTransition = "transition"
	commandDVFS       = "dvfs"
)

// dvfsCommand is the payload of the dvfs command. Either field may be set.
type dvfsCommand struct {
	Control  *int  `json:"control,omitempty"`
	Voltages []int `json:"voltages,omitempty"`
}

// commandResult is published on dpmcore/events/command after each command.
type commandResult struct {
	Command      string `json:"command"`
	OK           bool   `json:"ok"`
	Error        string `json:"error,omitempty"`
	TransitionID string `json:"transition_id,omitempty"`
}

// subscribeCommands subscribes to the remote command topics.
func (s *Server) subscribeCommands(ctx context.Context) error {
	if s.mqtt == nil {
		return nil // MQTT not configured; remote commands disabled
	}
	topic := mqtt.Topics{}.AllCommands()
	s.logger.Info("subscribing to remote commands", "topic", topic)
	return s.mqtt.Subscribe(topic, 1, func(t string, payload []byte) error {
		return s.handleCommand(ctx, path.Base(t), payload)
	})
}

// handleCommand dispatches one remote command. Transitions run in their own
// goroutine so the MQTT client keeps delivering messages.
func (s *Server) handleCommand(ctx context.Context, name string, payload []byte) error {
	switch name {
	case commandTransition:
		var req transitionRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("parsing transition command: %w", err)
		}
		go func() {
			res := commandResult{Command: name, OK: true}
			tr, err := s.runTransition(ctx, req)
			if tr != nil {
				res.TransitionID = tr.ID
			}
			if err != nil {
				res.OK = false
				res.Error = err.Error()
			}
			s.publishResult(res)
		}()
		return nil

	case commandDVFS:
		var cmd dvfsCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			return fmt.Errorf("parsing dvfs command: %w", err)
		}
		res := commandResult{Command: name, OK: true}
		if err := s.applyDVFSCommand(cmd); err != nil {
			res.OK = false
			res.Error = err.Error()
		}
		s.publishResult(res)
		return nil

	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

func (s *Server) applyDVFSCommand(cmd dvfsCommand) error {
	if s.governor == nil {
		return fmt.Errorf("dvfs governor not enabled")
	}
	if cmd.Voltages != nil {
		if err := s.governor.SetVoltages(cmd.Voltages); err != nil {
			return err
		}
	}
	if cmd.Control != nil {
		if err := s.governor.SetControl(*cmd.Control); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) publishResult(res commandResult) {
	if !res.OK {
		s.logger.Warn("remote command failed", "command", res.Command, "error", res.Error)
	}
	if s.mqtt == nil {
		return
	}
	if err := s.mqtt.PublishEvent("command", res); err != nil {
		s.logger.Warn("failed to publish command result", "error", err)
	}
}
