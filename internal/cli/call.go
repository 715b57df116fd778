package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/birbparty/nestlink/sdk"
)

// CallCommand sends one logical API call
type CallCommand struct {
	*Meta

	flagVerbose bool
}

func (c *CallCommand) Synopsis() string {
	return "Send an API call through the escalation chain"
}

func (c *CallCommand) Help() string {
	return `Usage: nestctl call [options] METHOD PATH [JSON]

  Sends METHOD PATH to the backend, escalating through the gateway, the
  fallback address and, for GET, the public relays. The JSON payload of the
  answer is printed.

Options:

  -config=path   Path to the nestctl config file.
  -v             Print which transport answered.`
}

func (c *CallCommand) Run(args []string) int {
	f := c.flagSet("call")
	f.BoolVar(&c.flagVerbose, "v", false, "Print which transport answered.")
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	rest := f.Args()
	if len(rest) < 2 || len(rest) > 3 {
		c.UI.Error("call requires METHOD and PATH, and optionally a JSON body")
		return cliUsage
	}

	var body interface{}
	if len(rest) == 3 {
		if !json.Valid([]byte(rest[2])) {
			c.UI.Error("body is not valid JSON")
			return 1
		}
		body = json.RawMessage(rest[2])
	}

	s, err := c.open()
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer s.Close()

	ctx, cancel := c.context()
	defer cancel()

	result, err := s.client.Do(ctx, sdk.NewRequest(strings.ToUpper(rest[0]), rest[1], body))
	if err != nil {
		c.reportError(err)
		return 1
	}

	if c.flagVerbose {
		c.UI.Info(fmt.Sprintf("%d via %s", result.StatusCode, result.Transport))
	}
	if len(result.Payload) > 0 {
		var out bytes.Buffer
		if err := json.Indent(&out, result.Payload, "", "  "); err != nil {
			out.Reset()
			out.Write(result.Payload)
		}
		c.UI.Output(out.String())
	}
	return 0
}

func (c *CallCommand) reportError(err error) {
	var ee *sdk.EscalationError
	if errors.As(err, &ee) {
		c.UI.Error(color.RedString("✗ ") + ee.Error())
		for _, a := range ee.Attempts {
			c.UI.Error(fmt.Sprintf("  %-10s %s", a.Transport, a.Err.Error()))
		}
		return
	}
	if sdk.IsAuthRejected(err) {
		c.UI.Error(color.YellowString("session rejected, run 'nestctl login'"))
	}
	c.UI.Error(color.RedString("✗ ") + err.Error())
}
