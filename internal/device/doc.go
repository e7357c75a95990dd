// Package device loads a device manifest and builds simulated drivers for
// the power transition orchestrator.
//
// A manifest is a YAML list of device definitions in discovery order.
// Parents must appear before their children:
//
//	devices:
//	  - name: soc
//	    driver: soc-bus
//	  - name: mmc0
//	    parent: soc
//	    driver: sdhci
//	    async: true
//	    latency:
//	      suspend: 20ms
//	    fail:
//	      resume_noirq: EIO
//
// Build turns the definitions into dpm devices whose providers sleep for the
// configured latency, return the configured failure and log every call to a
// shared Recorder.
package device
