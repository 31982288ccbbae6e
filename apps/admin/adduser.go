package main

import (
	"context"
	"fmt"

	"github.com/odinschool/odin/core/user"
)

// addUser creates a user of any role, applying the same validation as the API.
func (cli *commandLine) addUser(nu user.NewUser) error {
	if err := nu.Validate(cli.validate, cli.usrSvc); err != nil {
		return err
	}
	usr, err := cli.usrSvc.Create(context.Background(), nu)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "created %s %s <%s>\n", usr.Role, usr.FullName(), usr.Email)
	return nil
}
