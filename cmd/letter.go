package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/ai/skills"
	"github.com/TomkerDev/Al-Moussaid/internal/domain"
	logutil "github.com/TomkerDev/Al-Moussaid/internal/logger"
)

var letterCmd = &cobra.Command{
	Use:   "letter",
	Short: "Draft a cover letter for a stored posting",
	Run: func(cmd *cobra.Command, _ []string) {
		letter(cmd)
	},
}

func init() {
	rootCmd.AddCommand(letterCmd)

	addProfileFlags(letterCmd)
	letterCmd.Flags().String("posting-id", "", "id of the posting, as printed by search")
	letterCmd.MarkFlagRequired("posting-id")
}

func letter(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	postingID, _ := cmd.Flags().GetString("posting-id")
	postingID = strings.TrimSpace(postingID)

	text, err := readProfileText(cmd)
	if err != nil {
		logger.Fatal("reading the profile", zap.Error(err))
	}

	d, err := loadDeps(ctx, config, logger, false)
	if err != nil {
		logger.Fatal("initializing dependencies", zap.Error(err))
	}
	defer d.Close()

	storeCtx, cancel := context.WithTimeout(ctx, config.Timeouts.Store)
	posting, err := d.postings.Get(storeCtx, postingID)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Fatal("posting not found", zap.String(logutil.FieldPostingID, postingID))
		}
		requestFailed(logger, err)
	}

	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("initializing the language model", zap.Error(err))
	}
	d.generator = generator

	summary := skills.NewExtractor(generator, d.skillsConfig(), logger).Extract(ctx, text, config.Extraction.MaxChars)
	if summary.Degraded {
		logger.Warn("skills could not be extracted, the letter will not list them")
	}

	draft, err := skills.NewLetterWriter(generator, d.skillsConfig(), logger).Write(ctx, posting, summary.Text())
	if err != nil {
		requestFailed(logger, err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), draft)
}
