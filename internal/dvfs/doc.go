// Package dvfs implements a reactive frequency and voltage governor.
//
// The governor keeps a small table of operating points (steps). Utilisation
// samples on a 0..255 scale are queued with Notify and evaluated one at a
// time by Run. A step changes only when the sample crosses the current
// step's thresholds and the stay counter has drained, so the governor does
// not flap between neighbouring steps.
//
// Operating point changes are applied through a Regulator:
//
//	going up:   SetVoltage(new) then SetClock(new)
//	going down: SetClock(new) then SetVoltage(new)
//
// A manual control value pins the step. 1 and 2 select the first two steps
// by position, 3 selects the top step, and larger values are treated as a
// clock in MHz (the lowest step that reaches it).
//
// The governor takes part in system sleep through PowerOps, which stops work
// processing on suspend and drops back to the lowest step on resume.
//
// Usage:
//
//	gov, err := dvfs.New(dvfs.DefaultTable(), reg)
//	go gov.Run(ctx)
//	gov.Notify(200)
package dvfs
