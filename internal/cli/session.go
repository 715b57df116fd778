package cli

import (
	"fmt"
)

// SessionCommand prints the stored session without contacting the backend
type SessionCommand struct {
	*Meta
}

func (c *SessionCommand) Synopsis() string {
	return "Show the stored session"
}

func (c *SessionCommand) Help() string {
	return `Usage: nestctl session [-config=path]

  Prints the user of the stored session and when its token expires.`
}

func (c *SessionCommand) Run(args []string) int {
	f := c.flagSet("session")
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	s, err := c.open()
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer s.Close()

	ctx, cancel := c.context()
	defer cancel()

	current, err := s.client.Session(ctx)
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	if current == nil {
		c.UI.Output("not logged in")
		return 1
	}

	c.UI.Output(fmt.Sprintf("user:    %s", displayName(current.DisplayName, current.UserID)))
	c.UI.Output(fmt.Sprintf("role:    %s", current.Role))
	if !current.ExpiresAt.IsZero() {
		c.UI.Output(fmt.Sprintf("expires: %s", current.ExpiresAt.Local().Format("2006-01-02 15:04:05")))
	}
	c.UI.Output(fmt.Sprintf("store:   %s", s.cfg.Session.Backend))
	return 0
}
