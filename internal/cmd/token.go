package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ely.by/changeskin/internal/security"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Creates a new token, which allows to interact with ChangeSkin API",
	RunE: func(cmd *cobra.Command, args []string) error {
		container := shouldGetContainer()
		var auth *security.Jwt
		err := container.Resolve(&auth)
		if err != nil {
			return err
		}

		token, err := auth.NewToken(security.SkinsScope, security.MessagingScope)
		if err != nil {
			return fmt.Errorf("Unable to create a new token. The error is %v\n", err)
		}

		fmt.Println(token)

		return nil
	},
}

func init() {
	RootCmd.AddCommand(tokenCmd)
}
