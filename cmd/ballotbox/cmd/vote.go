package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jmcleod/ballotbox/api"
	"github.com/jmcleod/ballotbox/app"
)

var applyText string

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply to become a voter",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := requireSignedIn(a); err != nil {
				return err
			}
			resp, err := a.API.ApplyForVoter(ctx, applyText)
			if err != nil {
				return err
			}
			return printResult(cmd, resp, resp.Message)
		})
	},
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "List the candidates on the ballot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			cands, err := a.API.Candidates(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, cands)
			}
			tw := newTable(cmd)
			fmt.Fprintln(tw, "INDEX\tNAME\tVOTES\tSLOGAN")
			for _, c := range cands {
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", c.IDOnChain, c.Name, c.VoteCount, deref(c.Slogan))
			}
			return tw.Flush()
		})
	},
}

type electionStatus struct {
	Status   api.VotingStatus `json:"status"`
	Deadline int64            `json:"deadline"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the election phase and deadline",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			var out electionStatus
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				out.Status, err = a.API.VotingStatus(gctx)
				return err
			})
			g.Go(func() error {
				var err error
				out.Deadline, err = a.API.ElectionDeadline(gctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, out)
			}
			tw := newTable(cmd)
			fmt.Fprintf(tw, "phase\t%s\n", out.Status.Phase)
			fmt.Fprintf(tw, "start\t%s\n", formatUnix(out.Status.StartTime))
			fmt.Fprintf(tw, "end\t%s\n", formatUnix(out.Status.EndTime))
			fmt.Fprintf(tw, "deadline\t%s\n", formatUnix(out.Deadline))
			return tw.Flush()
		})
	},
}

var voteCmd = &cobra.Command{
	Use:   "vote <candidate-index>",
	Short: "Cast a vote for a candidate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		idx, err := strconv.Atoi(args[0])
		if err != nil || idx < 0 {
			return fmt.Errorf("candidate index %q: must be a non-negative integer", args[0])
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := requireSignedIn(a); err != nil {
				return err
			}
			tx, err := a.API.CastVote(ctx, idx)
			if err != nil {
				return err
			}
			return printResult(cmd, tx, tx.Message)
		})
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke",
	Short: "Withdraw your vote",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			if err := requireSignedIn(a); err != nil {
				return err
			}
			tx, err := a.API.RevokeVote(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, tx, tx.Message)
		})
	},
}

func init() {
	rootCmd.AddCommand(applyCmd, candidatesCmd, statusCmd, voteCmd, revokeCmd)
	applyCmd.Flags().StringVar(&applyText, "text", "", "Optional application text")
}
