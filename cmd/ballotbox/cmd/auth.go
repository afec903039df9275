package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ballotbox/app"
	"github.com/jmcleod/ballotbox/auth"
)

var (
	loginUserID   string
	loginPassword string

	registerUserID   string
	registerPassword string
	registerEth      string

	whoamiRefresh bool
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	Long: `Signs in with a userid and password. The password is read from stdin
when --password is not given. On success the bearer token and profile are
stored for later commands.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if loginUserID == "" {
			return errors.New("--userid is required")
		}
		password := loginPassword
		if password == "" {
			var err error
			if password, err = readPassword(cmd); err != nil {
				return err
			}
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			err := a.Session.Login(ctx, auth.Credentials{UserID: loginUserID, Password: password})
			if err != nil {
				return errors.New(a.Session.Snapshot().LastError)
			}
			user, _ := a.Session.CurrentUser()
			return printResult(cmd, user, fmt.Sprintf("Signed in as %s (%s).", user.UserID, user.Role))
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			a.Session.Logout()
			if msg := a.Session.Snapshot().LastError; msg != "" {
				return errors.New(msg)
			}
			return printResult(cmd, map[string]bool{"signed_in": false}, "Signed out.")
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the stored session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if whoamiRefresh {
				if err := a.Session.RefreshProfile(ctx); err != nil {
					if errors.Is(err, auth.ErrUnauthorized) {
						return errors.New("session expired; signed out")
					}
					return err
				}
			}
			snap := a.Session.Snapshot()
			if jsonOutput {
				return printJSON(cmd, struct {
					Phase   string            `json:"phase"`
					Profile *auth.UserProfile `json:"profile,omitempty"`
				}{string(snap.Phase), snap.Profile})
			}
			if snap.Profile == nil {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return err
			}
			p := snap.Profile
			tw := newTable(cmd)
			fmt.Fprintf(tw, "userid\t%s\n", p.UserID)
			fmt.Fprintf(tw, "role\t%s\n", p.Role)
			fmt.Fprintf(tw, "ethereum address\t%s\n", p.EthereumAddress)
			fmt.Fprintf(tw, "voter\t%t\n", p.IsVoter)
			fmt.Fprintf(tw, "application\t%s\n", p.VoterApplicationStatus)
			fmt.Fprintf(tw, "has voted\t%t\n", p.HasVoted)
			return tw.Flush()
		})
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	Long: `Creates an account bound to one of the free Ethereum addresses (see
eth-addresses). Registration does not sign you in.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if registerUserID == "" || registerPassword == "" || registerEth == "" {
			return errors.New("--userid, --password and --eth are required")
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			msg, err := a.Session.Register(ctx, auth.Registration{
				UserID:          registerUserID,
				Password:        registerPassword,
				EthereumAddress: registerEth,
			})
			if err != nil {
				return err
			}
			return printResult(cmd, map[string]string{"message": msg}, msg)
		})
	},
}

var ethAddressesCmd = &cobra.Command{
	Use:   "eth-addresses",
	Short: "List Ethereum addresses available for registration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			addrs, err := a.API.AvailableEthAddresses(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, addrs)
			}
			for _, addr := range addrs {
				fmt.Fprintln(cmd.OutOrStdout(), addr)
			}
			return nil
		})
	},
}

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Evaluate the navigation guard for a view",
	Long: `Navigates to a view path such as / or /admin/voting with the stored
session and prints where the guard sends you.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(_ context.Context, a *app.App) error {
			res, err := a.Open(args[0])
			if err != nil {
				return err
			}
			route := a.Router.Current()
			path := ""
			if rt, ok := a.Router.Lookup(route); ok {
				path = rt.Path
			}
			out := struct {
				Requested string `json:"requested"`
				Outcome   string `json:"outcome"`
				Route     string `json:"route"`
				Path      string `json:"path"`
			}{res.Requested, res.Outcome.String(), route, path}
			return printResult(cmd, out, fmt.Sprintf("%s -> %s (%s) [%s]", out.Requested, out.Route, out.Path, out.Outcome))
		})
	},
}

func readPassword(cmd *cobra.Command) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd, registerCmd, ethAddressesCmd, openCmd)

	loginCmd.Flags().StringVarP(&loginUserID, "userid", "u", "", "User id")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "Password (read from stdin when empty)")

	registerCmd.Flags().StringVarP(&registerUserID, "userid", "u", "", "User id")
	registerCmd.Flags().StringVarP(&registerPassword, "password", "p", "", "Password")
	registerCmd.Flags().StringVar(&registerEth, "eth", "", "Ethereum address to bind")

	whoamiCmd.Flags().BoolVar(&whoamiRefresh, "refresh", false, "Refetch the profile from the server first")
}
