package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/telcprep/sprachcache/internal/tts"
)

var (
	synthOutput string

	synthCmd = &cobra.Command{
		Use:   "synth TEXT",
		Short: "Synthesize text to an audio file",
		Long:  paragraph("\nResolve TEXT through the cache and the hosted voice and write the encoded audio to a file. Nothing is played."),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close() //nolint:errcheck

			res, err := a.speech.Resolve(ctx, cfg.Owner, tts.Request{
				Text:     strings.TrimSpace(args[0]),
				Language: speakLanguage(),
				Voice:    speakOptions().Voice,
			})
			if err != nil {
				if tts.CodeOf(err) == tts.ErrorCodeQuotaExceeded {
					return fmt.Errorf("hosted voice quota exhausted: %w", err)
				}
				return err
			}

			if err := os.WriteFile(synthOutput, res.Audio.Data, 0o644); err != nil { //nolint:gosec
				return fmt.Errorf("unable to write audio: %w", err)
			}

			source := "gateway"
			if res.CacheHit {
				source = "cache"
			}
			fmt.Printf("%s %s %s\n", keyword(synthOutput), humanize.Bytes(uint64(len(res.Audio.Data))), faint("("+source+", "+res.Audio.MimeType+")"))
			return nil
		},
	}
)

func init() {
	synthCmd.Flags().StringVarP(&synthOutput, "output", "o", "speech.mp3", "file to write")
	synthCmd.Flags().StringVarP(&speakLang, "lang", "l", "", "language tag, defaults to the configured language")
	synthCmd.Flags().StringVar(&speakVoice, "voice", "", "voice: default, female or male")
}
