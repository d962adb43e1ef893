// cmd/token.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldcrew/crewclock/internal/api"
	"github.com/fieldcrew/crewclock/internal/config"
	"github.com/fieldcrew/crewclock/internal/directory"
)

var tokenMember string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an API bearer token for a roster member",
	Long: `Prints a signed token for the member. The role comes from the roster,
so a token for a crew member can only act for that member.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		token, err := mintToken(cfg, tokenMember)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func mintToken(cfg *config.Config, memberID string) (string, error) {
	roster, err := directory.LoadRoster(cfg.Roster)
	if err != nil {
		return "", err
	}
	m, ok := roster.FindMember(memberID)
	if !ok {
		return "", fmt.Errorf("%w: %s", directory.ErrUnknownMember, memberID)
	}
	tokens, err := api.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	if err != nil {
		return "", fmt.Errorf("%w (set CREWCLOCK_JWT_SECRET)", err)
	}
	return tokens.Issue(m.ID, m.Role)
}

func init() {
	tokenCmd.Flags().StringVar(&tokenMember, "member", "", "member id the token acts as")
	_ = tokenCmd.MarkFlagRequired("member")
	rootCmd.AddCommand(tokenCmd)
}
