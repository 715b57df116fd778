package cli

import (
	"fmt"

	"github.com/fatih/color"
)

// LoginCommand authenticates and stores the session
type LoginCommand struct {
	*Meta

	flagEmail    string
	flagPassword string
}

func (c *LoginCommand) Synopsis() string {
	return "Log in and store the session"
}

func (c *LoginCommand) Help() string {
	return `Usage: nestctl login [options]

  Posts the credentials to the login endpoint and stores the returned
  session in the configured session store. The password is prompted for
  when -password is not given.

Options:

  -config=path     Path to the nestctl config file.
  -email=address   Account email.
  -password=pass   Account password.`
}

func (c *LoginCommand) Run(args []string) int {
	f := c.flagSet("login")
	f.StringVar(&c.flagEmail, "email", "", "Account email.")
	f.StringVar(&c.flagPassword, "password", "", "Account password.")
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	if c.flagEmail == "" {
		c.UI.Error("-email is required")
		return cliUsage
	}
	if c.flagPassword == "" {
		password, err := c.UI.AskSecret("Password:")
		if err != nil {
			c.UI.Error(fmt.Sprintf("error reading password: %v", err))
			return 1
		}
		c.flagPassword = password
	}

	s, err := c.open()
	if err != nil {
		c.UI.Error(err.Error())
		return 1
	}
	defer s.Close()

	ctx, cancel := c.context()
	defer cancel()

	session, err := s.client.Login(ctx, map[string]string{
		"email":    c.flagEmail,
		"password": c.flagPassword,
	})
	if err != nil {
		c.UI.Error(color.RedString("✗ ") + fmt.Sprintf("login failed: %v", err))
		return 1
	}

	c.UI.Output(color.GreenString("✓ ") + fmt.Sprintf("logged in as %s (%s)", displayName(session.DisplayName, session.UserID), session.Role))
	return 0
}

func displayName(name, id string) string {
	if name != "" {
		return name
	}
	return "user " + id
}

// LogoutCommand destroys the stored session
type LogoutCommand struct {
	*Meta
}

func (c *LogoutCommand) Synopsis() string {
	return "Remove the stored session"
}

func (c *LogoutCommand) Help() string {
	return `Usage: nestctl logout [-config=path]

  Removes the session from the configured session store.`
}

func (c *LogoutCommand) Run(args []string) int {
	f := c.flagSet("logout")
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

	if err := s.client.Logout(ctx); err != nil {
		c.UI.Error(fmt.Sprintf("logout failed: %v", err))
		return 1
	}
	c.UI.Output("logged out")
	return 0
}
