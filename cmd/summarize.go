package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"summarybot/internal/article"
	"summarybot/internal/config"
	"summarybot/internal/summarizer"

	"github.com/spf13/cobra"
)

func summarizeCmd(opts *rootOptions) *cobra.Command {
	var pageURL string

	cmd := &cobra.Command{
		Use:   "summarize [file]",
		Short: "Summarize an article from a file, stdin or a web page",
		Long: `Summarize an article in about 100 to 130 words of neutral English.

The article text is read from the given file, or from stdin when no file
or "-" is given. With --url the article is downloaded and extracted first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if pageURL != "" && len(args) > 0 {
				return errors.New("use either a file or --url")
			}

			log := newCLILogger(cmd.ErrOrStderr(), opts.verbose)

			creds, err := config.LoadCredentials(config.Options{EnvFile: opts.envFile})
			if err != nil {
				return err
			}

			s, err := summarizer.NewAnthropicSummarizer(summarizer.AnthropicConfig{
				APIKey:  creds.APIKey,
				Model:   creds.Model,
				BaseURL: creds.BaseURL,
				Log:     log,
			})
			if err != nil {
				return fmt.Errorf("create summarizer: %w", err)
			}

			input, err := readInput(cmd.Context(), cmd.InOrStdin(), args, pageURL, log)
			if err != nil {
				return err
			}

			log.DebugContext(cmd.Context(), "Summarizing article",
				"model", s.Model(),
				"sourceURL", input.SourceURL,
				"textLen", len(input.Text))

			summary, err := s.Summarize(cmd.Context(), input)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), summary)
			return err
		},
	}

	cmd.Flags().StringVar(&pageURL, "url", "", "download and summarize the article at this URL")

	return cmd
}

func readInput(
	ctx context.Context,
	stdin io.Reader,
	args []string,
	pageURL string,
	log *slog.Logger,
) (summarizer.Input, error) {
	if pageURL = strings.TrimSpace(pageURL); pageURL != "" {
		a, err := article.NewExtractor(log).Extract(ctx, pageURL)
		if err != nil {
			return summarizer.Input{}, fmt.Errorf("extract article: %w", err)
		}

		return summarizer.Input{Text: a.Text, SourceURL: pageURL}, nil
	}

	r := stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return summarizer.Input{}, fmt.Errorf("open article file: %w", err)
		}
		defer func() {
			if err = f.Close(); err != nil {
				log.ErrorContext(ctx, "Failed to close article file",
					"error", err,
					"path", args[0])
			}
		}()

		r = f
	}

	text, err := io.ReadAll(r)
	if err != nil {
		return summarizer.Input{}, fmt.Errorf("read article: %w", err)
	}

	return summarizer.Input{Text: string(text)}, nil
}
