package automation_test

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/dongwu-tools/tradebridge/internal/automation"
	mocks "github.com/dongwu-tools/tradebridge/internal/testing"
)

// harness wires the automation stack over the fake GUI with test-friendly
// timings.
type harness struct {
	backend *mocks.MockBackend
	delays  automation.Delays
	input   *automation.Input
	windows *automation.WindowController
	nav     *automation.Navigator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	backend := mocks.NewMockBackend()
	delays := automation.DefaultDelays()
	// The fake never waits, but wall-clock bounded loops must stay short.
	delays.SaveDialogWait = 200 * time.Millisecond
	delays.ExportFileWait = 500 * time.Millisecond
	log := zerolog.Nop()

	input := automation.NewInput(backend, delays, log)
	windows := automation.NewWindowController(backend, delays,
		[]string{"网上股票交易系统", "股票交易"}, []string{"xiadan.exe"}, log)
	nav := automation.NewNavigator(input, windows, delays, log)

	return &harness{
		backend: backend,
		delays:  delays,
		input:   input,
		windows: windows,
		nav:     nav,
	}
}

// indexOf returns the position of the first event equal to ev, or -1.
func indexOf(events []string, ev string) int {
	for i, e := range events {
		if e == ev {
			return i
		}
	}
	return -1
}
