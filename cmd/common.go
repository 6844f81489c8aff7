package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/TomkerDev/Al-Moussaid/internal/logger"
)

const (
	PromptYes = "Yes"
	PromptNo  = "No"
)

var errNoProfile = errors.New("profile text is required: use --text, --file or pipe it on stdin")

// setup builds the logger and the config shared by every command.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return logger, config
}

// redacted returns a copy of config without inline secrets.
func redacted(config *Config) Config {
	out := *config
	if out.AI != nil {
		ai := *out.AI
		if ai.Gemini != nil {
			g := *ai.Gemini
			g.APIKey = mask(g.APIKey)
			ai.Gemini = &g
		}
		if ai.OpenAI != nil {
			o := *ai.OpenAI
			o.APIKey = mask(o.APIKey)
			ai.OpenAI = &o
		}
		out.AI = &ai
	}
	if out.Embedding != nil && out.Embedding.Sidecar != nil {
		e := *out.Embedding
		sc := *e.Sidecar
		sc.APIKey = mask(sc.APIKey)
		e.Sidecar = &sc
		out.Embedding = &e
	}
	if out.Store != nil {
		st := *out.Store
		st.DSN = mask(st.DSN)
		out.Store = &st
	}
	if out.Redis != nil {
		r := *out.Redis
		r.URL = mask(r.URL)
		out.Redis = &r
	}
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func addProfileFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("text", "t", "", "profile or resume text")
	cmd.Flags().StringP("file", "f", "", "read the profile text from a file")
}

// readProfileText takes the profile from --text, then --file, then a piped stdin.
func readProfileText(cmd *cobra.Command) (string, error) {
	if text, _ := cmd.Flags().GetString("text"); strings.TrimSpace(text) != "" {
		return text, nil
	}

	if file, _ := cmd.Flags().GetString("file"); strings.TrimSpace(file) != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading profile file: %w", err)
		}
		if strings.TrimSpace(string(data)) == "" {
			return "", fmt.Errorf("profile file %q is empty", file)
		}
		return string(data), nil
	}

	stat, err := os.Stdin.Stat()
	if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
		return "", errNoProfile
	}

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("reading profile from stdin: %w", err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errNoProfile
	}
	return string(data), nil
}
