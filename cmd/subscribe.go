package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var subscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Subscribe an e-mail to alerts for new postings matching a profile",
	Run: func(cmd *cobra.Command, _ []string) {
		subscribe(cmd)
	},
}

func init() {
	rootCmd.AddCommand(subscribeCmd)

	addProfileFlags(subscribeCmd)
	addSubscriptionFlags(subscribeCmd)
}

func subscribe(cmd *cobra.Command) {
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
	printSkills(cmd.OutOrStdout(), profile.Skills)

	if _, err := subscribeProfile(ctx, cmd, svc, profile); err != nil {
		if errors.Is(err, errSubscriptionDeclined) {
			logger.Info("exiting", zap.String("reason", "got no from prompt"))
			return
		}
		requestFailed(logger, err)
	}
}
