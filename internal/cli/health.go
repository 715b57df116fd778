package cli

import (
	"fmt"
	"time"

	"github.com/fatih/color"

	"github.com/birbparty/nestlink/sdk"
)

// HealthCommand probes the backend once, or watches it
type HealthCommand struct {
	*Meta

	flagWatch    bool
	flagInterval time.Duration
}

func (c *HealthCommand) Synopsis() string {
	return "Check whether the backend is reachable"
}

func (c *HealthCommand) Help() string {
	return `Usage: nestctl health [options]

  Probes the health endpoint through the full escalation chain. Exits 0 when
  the backend answered and 3 when the client would be in simulation mode.

Options:

  -config=path     Path to the nestctl config file.
  -watch           Keep probing and print every connectivity change.
  -interval=30s    Probe interval for -watch.`
}

func (c *HealthCommand) Run(args []string) int {
	f := c.flagSet("health")
	f.BoolVar(&c.flagWatch, "watch", false, "Keep probing.")
	f.DurationVar(&c.flagInterval, "interval", 0, "Probe interval for -watch.")
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	if c.flagInterval > 0 {
		c.Meta.healthInterval = c.flagInterval
	}

	s, err := c.open()
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer s.Close()

	ctx, cancel := c.context()
	defer cancel()

	if !c.flagWatch {
		state := s.client.Health(ctx)
		c.UI.Output(indicator(state, time.Now()))
		if state != sdk.ConnectivityHealthy {
			return exitDegraded
		}
		return 0
	}

	unsubscribe := s.client.Signals().Subscribe(func(sig sdk.Signal) {
		switch sig.Type {
		case sdk.SignalConnectivity:
			c.UI.Output(indicator(sig.Connectivity, sig.At))
		case sdk.SignalAuthenticationRequired:
			c.UI.Warn(fmt.Sprintf("%s session rejected on %s", sig.At.Format("15:04:05"), sig.Path))
		}
	})
	defer unsubscribe()

	s.client.Monitor().Run(ctx)

	if s.client.Monitor().State() != sdk.ConnectivityHealthy {
		return exitDegraded
	}
	return 0
}

// indicator renders a connectivity state the way the web client's banner does
func indicator(state sdk.Connectivity, at time.Time) string {
	stamp := at.Format("15:04:05")
	switch state {
	case sdk.ConnectivityHealthy:
		return fmt.Sprintf("%s %s backend reachable", stamp, color.GreenString("● healthy"))
	case sdk.ConnectivityDegraded:
		return fmt.Sprintf("%s %s simulation mode, backend unreachable", stamp, color.RedString("● degraded"))
	default:
		return fmt.Sprintf("%s %s", stamp, color.YellowString("● unknown"))
	}
}
