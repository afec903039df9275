package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/ballotbox/api"
	"github.com/jmcleod/ballotbox/app"
	"github.com/jmcleod/ballotbox/router"
)

var (
	candidateName        string
	candidateDescription string
	candidateSlogan      string
	candidateImageURL    string

	applicationsStatus  string
	applicationsPage    int
	applicationsPerPage int
	reviewNotes         string

	periodStart string
	periodEnd   string
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Administrative commands",
	Long:  `Commands reserved for administrators: candidates, voter applications and the voting period.`,
}

// withAdmin runs fn only when the stored session may enter view, using the
// same guard as navigation.
func withAdmin(cmd *cobra.Command, view string, fn func(ctx context.Context, a *app.App) error) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		res, err := a.Router.Navigate(view)
		if err != nil {
			return err
		}
		if res.Outcome != router.Allow || a.Router.Current() != view {
			return fmt.Errorf("administrator session required (guard: %s)", res.Outcome)
		}
		return fn(ctx, a)
	})
}

var candidateCmd = &cobra.Command{
	Use:   "candidate",
	Short: "Manage candidates",
}

var candidateAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a candidate to the ballot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAdmin(cmd, router.AdminCandidates, func(ctx context.Context, a *app.App) error {
			resp, err := a.API.AddCandidate(ctx, api.NewCandidate{
				Name:        candidateName,
				Description: candidateDescription,
				Slogan:      candidateSlogan,
				ImageURL:    candidateImageURL,
			})
			if err != nil {
				return err
			}
			return printResult(cmd, resp, resp.Message)
		})
	},
}

var candidateImageCmd = &cobra.Command{
	Use:   "image <file>",
	Short: "Upload a candidate image and print its URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withAdmin(cmd, router.AdminCandidates, func(ctx context.Context, a *app.App) error {
			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("opening image: %w", err)
			}
			defer f.Close()
			up, err := a.API.UploadCandidateImage(ctx, f.Name(), f)
			if err != nil {
				return err
			}
			return printResult(cmd, up, up.ImageURL)
		})
	},
}

var applicationsCmd = &cobra.Command{
	Use:   "applications",
	Short: "Review voter applications",
}

var applicationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List voter applications",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAdmin(cmd, router.AdminApplications, func(ctx context.Context, a *app.App) error {
			page, err := a.API.VoterApplications(ctx, applicationsStatus, applicationsPage, applicationsPerPage)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, page)
			}
			tw := newTable(cmd)
			fmt.Fprintln(tw, "ID\tUSER\tADDRESS\tSTATUS\tSUBMITTED")
			for _, entry := range page.Applications {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", entry.ID, deref(entry.UserUserID),
					deref(entry.UserEthereumAddress), entry.Status, deref(entry.SubmittedAt))
			}
			fmt.Fprintf(tw, "page %d of %d (%d total)\n", page.CurrentPage, page.Pages, page.Total)
			return tw.Flush()
		})
	},
}

var applicationsReviewCmd = &cobra.Command{
	Use:   "review <id> <approved|rejected>",
	Short: "Approve or reject a voter application",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("application id %q: %w", args[0], err)
		}
		return withAdmin(cmd, router.AdminApplications, func(ctx context.Context, a *app.App) error {
			resp, err := a.API.ReviewVoterApplication(ctx, id, api.ApplicationReview{Status: args[1], AdminNotes: reviewNotes})
			if err != nil {
				return err
			}
			return printResult(cmd, resp, resp.Message)
		})
	},
}

var votingCmd = &cobra.Command{
	Use:   "voting",
	Short: "Control the voting period",
}

var votingPeriodCmd = &cobra.Command{
	Use:   "period",
	Short: "Set the voting period",
	Long:  `Sets the start and end of voting. Times are RFC 3339 or Unix seconds.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		start, err := parseTime(periodStart)
		if err != nil {
			return fmt.Errorf("--start: %w", err)
		}
		end, err := parseTime(periodEnd)
		if err != nil {
			return fmt.Errorf("--end: %w", err)
		}
		return withAdmin(cmd, router.AdminVoting, func(ctx context.Context, a *app.App) error {
			tx, err := a.API.SetVotingPeriod(ctx, api.VotingPeriod{StartTime: start, EndTime: end})
			if err != nil {
				return err
			}
			return printResult(cmd, tx, tx.Message)
		})
	},
}

var votingStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start voting now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAdmin(cmd, router.AdminVoting, func(ctx context.Context, a *app.App) error {
			tx, err := a.API.StartVoting(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, tx, tx.Message)
		})
	},
}

var votingEndCmd = &cobra.Command{
	Use:   "end",
	Short: "End voting now",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAdmin(cmd, router.AdminVoting, func(ctx context.Context, a *app.App) error {
			tx, err := a.API.EndVoting(ctx)
			if err != nil {
				return err
			}
			return printResult(cmd, tx, tx.Message)
		})
	},
}

var votingExtendCmd = &cobra.Command{
	Use:   "extend <new-end>",
	Short: "Move the voting deadline later",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		end, err := parseTime(args[0])
		if err != nil {
			return err
		}
		return withAdmin(cmd, router.AdminVoting, func(ctx context.Context, a *app.App) error {
			tx, err := a.API.ExtendVotingDeadline(ctx, end)
			if err != nil {
				return err
			}
			return printResult(cmd, tx, tx.Message)
		})
	},
}

var votingStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the contract's voting state",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withAdmin(cmd, router.AdminVoting, func(ctx context.Context, a *app.App) error {
			cs, err := a.API.ContractVotingStatus(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, cs)
			}
			tw := newTable(cmd)
			fmt.Fprintf(tw, "phase\t%s (%d)\n", cs.Phase, cs.PhaseCode)
			fmt.Fprintf(tw, "start\t%s\n", formatUnix(cs.StartTime))
			fmt.Fprintf(tw, "end\t%s\n", formatUnix(cs.EndTime))
			fmt.Fprintf(tw, "block time\t%s\n", formatUnix(cs.CurrentBlockTimestamp))
			return tw.Flush()
		})
	},
}

// parseTime accepts Unix seconds or an RFC 3339 timestamp.
func parseTime(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("time is required")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("time %q: want Unix seconds or RFC 3339", s)
	}
	return t.Unix(), nil
}

func init() {
	rootCmd.AddCommand(adminCmd)
	adminCmd.AddCommand(candidateCmd, applicationsCmd, votingCmd)
	candidateCmd.AddCommand(candidateAddCmd, candidateImageCmd)
	applicationsCmd.AddCommand(applicationsListCmd, applicationsReviewCmd)
	votingCmd.AddCommand(votingPeriodCmd, votingStartCmd, votingEndCmd, votingExtendCmd, votingStatusCmd)

	candidateAddCmd.Flags().StringVar(&candidateName, "name", "", "Candidate name")
	candidateAddCmd.Flags().StringVar(&candidateDescription, "description", "", "Description")
	candidateAddCmd.Flags().StringVar(&candidateSlogan, "slogan", "", "Slogan")
	candidateAddCmd.Flags().StringVar(&candidateImageURL, "image-url", "", "Image URL from 'admin candidate image'")

	applicationsListCmd.Flags().StringVar(&applicationsStatus, "status", "pending", "Filter by status")
	applicationsListCmd.Flags().IntVar(&applicationsPage, "page", 1, "Page number")
	applicationsListCmd.Flags().IntVar(&applicationsPerPage, "per-page", 10, "Page size")
	applicationsReviewCmd.Flags().StringVar(&reviewNotes, "notes", "", "Admin notes")

	votingPeriodCmd.Flags().StringVar(&periodStart, "start", "", "Start time")
	votingPeriodCmd.Flags().StringVar(&periodEnd, "end", "", "End time")
}
