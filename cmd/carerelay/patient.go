package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"carerelay/internal/capture"
	"carerelay/internal/domain"
	"carerelay/internal/enrich"
	"carerelay/internal/pipeline"

	"github.com/spf13/cobra"
)

func patientCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "patient",
		Short: "Start the patient console",
		Long:  "Interactive console for the patient: listen to the doctor's messages\nand respond with recorded audio or typed text.",
		RunE:  runPatient,
	}
}

func runPatient(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, cleanup, err := openChannel(ctx, cfg, "patient")
	if err != nil {
		return err
	}
	defer cleanup()

	analyzer := enrich.NewHTTPAnalyzer(enrich.AnalyzerConfig{
		APIBase: cfg.Enrichment.Emotion.APIBase,
		APIKey:  cfg.Enrichment.Emotion.APIKey,
		Model:   cfg.Enrichment.Emotion.Model,
		Logger:  logger,
	})

	out := os.Stdout
	pat := pipeline.NewPatient(pipeline.PatientConfig{
		Channel:  ch,
		Analyzer: analyzer,
		Logger:   logger,
		OnDelivered: func(e domain.ConversationEntry) {
			fmt.Fprintln(out, "\nnew message from the doctor:", shortRef(e.Content.AudioRef))
			fmt.Fprint(out, "patient> ")
		},
	})
	pat.Start()
	defer pat.Stop()

	device := &fileDevice{}
	recorder := capture.NewRecorder(device, logger)

	fmt.Fprintln(out, "CareRelay patient console. Type help for commands, quit to exit.")
	fmt.Fprint(out, "patient> ")

	var pendingRef string

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		fields := strings.Fields(line)
		if len(fields) == 0 {
			fmt.Fprint(out, "patient> ")
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return nil

		case "help":
			fmt.Fprintln(out, "  record <file>   capture audio from a file")
			fmt.Fprintln(out, "  stop            finish the capture")
			fmt.Fprintln(out, "  cancel          discard the capture")
			fmt.Fprintln(out, "  send            send the captured audio to the doctor")
			fmt.Fprintln(out, "  say <text>      send a typed response instead")
			fmt.Fprintln(out, "  lang <code>     publish your preferred language")
			fmt.Fprintln(out, "  history         show the conversation")

		case "record":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: record <file>")
				break
			}
			device.SetPath(fields[1])
			if err := recorder.Start(ctx); err != nil {
				fmt.Fprintln(out, "error:", err)
			} else {
				fmt.Fprintln(out, "recording... type stop when done")
			}

		case "stop":
			ref, err := recorder.Stop()
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				break
			}
			pendingRef = ref
			fmt.Fprintln(out, "captured", shortRef(ref))

		case "cancel":
			recorder.Cancel()
			pendingRef = ""
			fmt.Fprintln(out, "discarded")

		case "send":
			if pendingRef == "" {
				fmt.Fprintln(out, "nothing captured; record first")
				break
			}
			receipt, err := pat.Send(ctx, pendingRef, "")
			if err != nil {
				fmt.Fprintln(out, "send failed:", err)
				break
			}
			pendingRef = ""
			fmt.Fprintln(out, receipt.Message)

		case "say":
			text := strings.TrimSpace(strings.TrimPrefix(line, "say"))
			if text == "" {
				fmt.Fprintln(out, "usage: say <text>")
				break
			}
			// Typed text wins over any pending recording.
			recorder.Cancel()
			pendingRef = ""
			receipt, err := pat.Send(ctx, "", text)
			if err != nil {
				fmt.Fprintln(out, "send failed:", err)
				break
			}
			fmt.Fprintln(out, receipt.Message)

		case "lang":
			if len(fields) < 2 {
				fmt.Fprintln(out, "usage: lang <code>")
				break
			}
			if err := ch.Publish(domain.KeyPreferredLanguage, fields[1]); err != nil {
				fmt.Fprintln(out, "error:", err)
				break
			}
			fmt.Fprintln(out, "preferred language set to", fields[1])

		case "history":
			printHistory(out, pat.Conversation())

		default:
			fmt.Fprintln(out, "unknown command; type help")
		}
		fmt.Fprint(out, "patient> ")
	}
}
