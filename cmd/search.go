package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	"github.com/TomkerDev/Al-Moussaid/internal/filtering"
	"github.com/TomkerDev/Al-Moussaid/internal/profiles"
	"github.com/TomkerDev/Al-Moussaid/internal/results"
)

const noMatches = "no matching postings"

var errSubscriptionDeclined = errors.New("subscription declined")

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Find the postings matching a profile",
	Run: func(cmd *cobra.Command, _ []string) {
		search(cmd)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	addProfileFlags(searchCmd)
	searchCmd.Flags().Float64("threshold", 0, "minimum similarity in [0, 1], 0 keeps every posting (default search.threshold)")
	searchCmd.Flags().Int("limit", 0, "maximum number of postings (default search.limit)")
	searchCmd.Flags().StringP("location", "l", "", "keep postings whose location contains this city (\"toutes\" keeps all)")
	searchCmd.Flags().Bool("subscribe", false, "subscribe to alerts for this profile after the search")
	searchCmd.Flags().Bool("dump", false, "also write the results to a temporary JSON file")
	searchCmd.Flags().Bool("by-company", false, "log the results grouped by company")
	addSubscriptionFlags(searchCmd)
}

func addSubscriptionFlags(cmd *cobra.Command) {
	cmd.Flags().String("email", "", "e-mail that receives the alerts (prompted when empty)")
	cmd.Flags().Float64("alert-threshold", 0, "similarity a new posting needs to trigger an alert (default alerts.threshold)")
	cmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation before subscribing")
}

func search(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	text, err := readProfileText(cmd)
	if err != nil {
		logger.Fatal("reading the profile", zap.Error(err))
	}

	d, err := loadDeps(ctx, config, logger, true)
	if err != nil {
		logger.Fatal("initializing dependencies", zap.Error(err))
	}
	defer d.Close()

	svc := d.profileService()

	profile, err := svc.Build(ctx, text)
	if err != nil {
		requestFailed(logger, err)
	}

	opts := profiles.SearchOptions{}
	if cmd.Flags().Changed("threshold") {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		opts.Threshold = &threshold
	}
	opts.Limit, _ = cmd.Flags().GetInt("limit")

	matches, err := svc.Search(ctx, profile, opts)
	if err != nil {
		requestFailed(logger, err)
	}
	logger.Info("search done", zap.Int("count", len(matches)))

	location, _ := cmd.Flags().GetString("location")
	matches, err = filtering.Run(ctx, &filtering.Config{
		Location:  location,
		Companies: config.Filters.Companies,
		RedFlags:  config.Filters.RedFlags,
	}, filtering.Deps{Logger: logger}, filtering.Default(), matches)
	if err != nil {
		logger.Fatal("filtering failed", zap.Error(err))
	}

	printSkills(cmd.OutOrStdout(), profile.Skills)
	printResults(cmd.OutOrStdout(), matches)

	if byCompany, _ := cmd.Flags().GetBool("by-company"); byCompany && len(matches) > 0 {
		pretty, _ := json.MarshalIndent(results.ByCompany(matches), "", "  ")
		logger.Info(string(pretty), zap.Int("postings count", len(matches)))
	}

	if dump, _ := cmd.Flags().GetBool("dump"); dump {
		filename, err := results.DumpToTmpFile(matches)
		if err != nil {
			logger.Fatal("dump results to file", zap.Error(err))
		}
		logger.Info("dumping result to file", zap.String("filename", filename))
	}

	if subscribe, _ := cmd.Flags().GetBool("subscribe"); !subscribe {
		return
	}

	if _, err := subscribeProfile(ctx, cmd, svc, profile); err != nil {
		if errors.Is(err, errSubscriptionDeclined) {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
		requestFailed(logger, err)
	}
}

// subscribeProfile asks for the missing e-mail and a confirmation, then stores the subscription.
func subscribeProfile(ctx context.Context, cmd *cobra.Command, svc *profiles.Service, profile domain.Profile) (domain.Subscription, error) {
	email, _ := cmd.Flags().GetString("email")
	threshold, _ := cmd.Flags().GetFloat64("alert-threshold")
	yes, _ := cmd.Flags().GetBool("yes")

	if strings.TrimSpace(email) == "" {
		if yes {
			return domain.Subscription{}, fmt.Errorf("%w: --email is required with --yes", domain.ErrInvalidArgument)
		}

		emailPrompt := promptui.Prompt{
			Label: "E-mail for job alerts",
			Validate: func(input string) error {
				_, err := profiles.ValidateEmail(input)
				return err
			},
		}
		var err error
		if email, err = emailPrompt.Run(); err != nil {
			return domain.Subscription{}, err
		}
	}

	if !yes {
		confirm := promptui.Select{
			Label: fmt.Sprintf("Send new matching postings to %s?", strings.TrimSpace(email)),
			Items: []string{PromptYes, PromptNo},
		}
		_, answer, err := confirm.Run()
		if err != nil {
			return domain.Subscription{}, err
		}
		if answer != PromptYes {
			return domain.Subscription{}, errSubscriptionDeclined
		}
	}

	sub, err := svc.Subscribe(ctx, profile, email, threshold)
	if err != nil {
		return domain.Subscription{}, err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "subscribed %s (threshold %s)\n", sub.Email, percent(sub.Threshold))
	return sub, nil
}

// requestFailed exits on an error that prevented the request from completing.
func requestFailed(logger *zap.Logger, err error) {
	if errors.Is(err, domain.ErrInvalidArgument) {
		logger.Fatal("invalid request", zap.Error(err))
	}
	logger.Fatal("could not complete request", zap.Error(err))
}

func printSkills(w io.Writer, summary domain.SkillSummary) {
	switch {
	case summary.Empty():
		fmt.Fprintln(w, "skills: none detected, the profile text was used as is")
	default:
		fmt.Fprintf(w, "skills: %s\n", summary.Text())
	}
}

func printResults(w io.Writer, matches []domain.MatchResult) {
	if len(matches) == 0 {
		fmt.Fprintln(w, noMatches)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tMATCH\tTITLE\tCOMPANY\tLOCATION\tID")
	for i, r := range matches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
			i+1, percent(r.Similarity), r.Posting.Title, r.Posting.Company, r.Posting.Location, r.Posting.ID)
	}
	tw.Flush()
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
