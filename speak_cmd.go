package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/telcprep/sprachcache/internal/playback"
	"github.com/telcprep/sprachcache/internal/sentence"
	"github.com/telcprep/sprachcache/internal/tts"
)

var (
	speakLang  string
	speakVoice string
	speakRate  float64
	queuePause time.Duration
	bySentence bool

	speakCmd = &cobra.Command{
		Use:   "speak [TEXT]",
		Short: "Read text aloud",
		Long: paragraph(fmt.Sprintf(
			"\nRead %s aloud. Without an argument the text is read from stdin. Press Ctrl+C to stop.",
			keyword("TEXT"),
		)),
		Example: paragraph("sprachcache speak \"Guten Morgen, wie geht es Ihnen?\"\necho \"Hallo\" | sprachcache speak --rate 0.8"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runSpeak,
	}

	queueCmd = &cobra.Command{
		Use:   "queue [FILE]",
		Short: "Read lines aloud one after another",
		Long: paragraph(fmt.Sprintf(
			"\nRead every non-empty line of %s (or stdin) aloud, pausing briefly between lines. With --sentences the text is split into sentences instead.",
			keyword("FILE"),
		)),
		Args: cobra.MaximumNArgs(1),
		RunE: runQueue,
	}
)

// playbackHooks prints progress lines to stderr.
func playbackHooks() playback.Hooks {
	return playback.Hooks{
		OnCacheHit: func(ev playback.Event) {
			fmt.Fprintln(os.Stderr, faint("cached audio for item "+fmt.Sprint(ev.Index+1)))
		},
		OnStart: func(ev playback.Event) {
			fmt.Fprintln(os.Stderr, keyword("▶")+" "+ev.Text+" "+faint("("+string(ev.Source)+")"))
		},
		OnError: func(_ playback.Event, err error) {
			fmt.Fprintln(os.Stderr, warning("playback failed: "+err.Error()))
		},
	}
}

// degradation explains why local speech was used.
func degradation(err error) string {
	switch tts.CodeOf(err) {
	case tts.ErrorCodeQuotaExceeded:
		return "hosted voice quota exhausted, using local speech"
	case tts.ErrorCodeRateLimited:
		return "hosted voice is rate limited, using local speech"
	case tts.ErrorCodePlaybackFailed:
		return "audio output unavailable, using local speech"
	default:
		return "hosted voice unavailable, using local speech"
	}
}

func reportResult(res playback.Result) {
	if res.Err != nil && res.Source == playback.SourceFallback {
		fmt.Fprintln(os.Stderr, warning(degradation(res.Err)))
	}
}

// readInput returns the argument, or stdin when it is missing or "-".
// With fromFile the argument names a file instead.
func readInput(args []string, fromFile bool) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		b, err := io.ReadAll(bufio.NewReader(os.Stdin))
		return string(b), err
	}
	if !fromFile {
		return args[0], nil
	}
	b, err := os.ReadFile(args[0])
	return string(b), err
}

// withController runs fn with a controller that is stopped on SIGINT.
func withController(fn func(ctx context.Context, ctrl *playback.Controller) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close() //nolint:errcheck

	ctrl, err := a.controller(playbackHooks())
	if err != nil {
		return err
	}
	defer ctrl.Close() //nolint:errcheck

	go func() {
		<-ctx.Done()
		ctrl.Stop()
	}()
	return fn(ctx, ctrl)
}

func speakOptions() playback.Options {
	voice := speakVoice
	if voice == "" {
		voice = cfg.Playback.Voice
	}
	return playback.Options{OwnerID: cfg.Owner, Voice: voice, Rate: speakRate}
}

func speakLanguage() string {
	if speakLang != "" {
		return speakLang
	}
	return cfg.Playback.Language
}

func runSpeak(_ *cobra.Command, args []string) error {
	text, err := readInput(args, false)
	if err != nil {
		return fmt.Errorf("unable to read text: %w", err)
	}
	return withController(func(ctx context.Context, ctrl *playback.Controller) error {
		res, err := ctrl.Play(ctx, strings.TrimSpace(text), speakLanguage(), speakOptions())
		if err != nil {
			return err
		}
		reportResult(res)
		return nil
	})
}

func runQueue(_ *cobra.Command, args []string) error {
	text, err := readInput(args, true)
	if err != nil {
		return fmt.Errorf("unable to read text: %w", err)
	}
	if queuePause > 0 {
		cfg.Playback.QueuePause = queuePause
	}
	return withController(func(ctx context.Context, ctrl *playback.Controller) error {
		items := strings.Split(text, "\n")
		if bySentence {
			items = sentence.Split(text)
		}
		qr, err := ctrl.SpeakQueue(ctx, items, speakLanguage(), speakOptions())
		if err != nil {
			return err
		}
		for _, res := range qr.Results {
			reportResult(res)
		}
		if qr.Canceled {
			fmt.Fprintln(os.Stderr, faint(fmt.Sprintf("queue stopped after %d item(s)", len(qr.Results))))
		}
		return nil
	})
}

func init() {
	for _, c := range []*cobra.Command{speakCmd, queueCmd} {
		c.Flags().StringVarP(&speakLang, "lang", "l", "", "language tag, defaults to the configured language")
		c.Flags().StringVar(&speakVoice, "voice", "", "voice: default, female or male")
		c.Flags().Float64VarP(&speakRate, "rate", "r", 0, "playback rate between 0.5 and 2.0")
	}
	queueCmd.Flags().DurationVar(&queuePause, "pause", 0, "pause between items")
	queueCmd.Flags().BoolVarP(&bySentence, "sentences", "s", false, "queue sentences instead of lines")
}
