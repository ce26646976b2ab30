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

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Start the doctor console",
		Long:  "Interactive console for the doctor: record audio, send it translated\nto the patient, and review the patient's insight reports.",
		RunE:  runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch, cleanup, err := openChannel(ctx, cfg, "doctor")
	if err != nil {
		return err
	}
	defer cleanup()

	translator := enrich.NewHTTPTranslator(enrich.TranslatorConfig{
		APIBase: cfg.Enrichment.Translation.APIBase,
		APIKey:  cfg.Enrichment.Translation.APIKey,
		Model:   cfg.Enrichment.Translation.Model,
		Logger:  logger,
	})

	out := os.Stdout
	doc := pipeline.NewDoctor(pipeline.DoctorConfig{
		Channel:      ch,
		Translator:   translator,
		BaseLanguage: cfg.General.BaseLanguage,
		Logger:       logger,
		OnInsight: func(r domain.InsightReport) {
			fmt.Fprintln(out, "\n--- patient insight ---")
			fmt.Fprintln(out, r.Insights)
			fmt.Fprintln(out, "-----------------------")
			fmt.Fprint(out, "doctor> ")
		},
	})
	doc.Start()
	defer doc.Stop()

	device := &fileDevice{}
	recorder := capture.NewRecorder(device, logger)

	fmt.Fprintln(out, "CareRelay doctor console. Type help for commands, quit to exit.")
	fmt.Fprint(out, "doctor> ")

	var pendingRef string
	targetLang := "" // empty: use the patient's preferred language

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

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			fmt.Fprint(out, "doctor> ")
			continue
		}

		switch fields[0] {
		case "quit", "exit":
			return nil

		case "help":
			fmt.Fprintln(out, "  record <file>   capture audio from a file")
			fmt.Fprintln(out, "  stop            finish the capture")
			fmt.Fprintln(out, "  cancel          discard the capture")
			fmt.Fprintln(out, "  send            send the captured audio to the patient")
			fmt.Fprintln(out, "  lang [code]     set or clear the target language override")
			fmt.Fprintln(out, "  insights        show the latest patient insight")
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
			receipt, err := doc.Send(ctx, pendingRef, targetLang)
			if err != nil {
				fmt.Fprintln(out, "send failed:", err)
				break
			}
			pendingRef = ""
			fmt.Fprintln(out, receipt.Message)

		case "lang":
			if len(fields) < 2 {
				targetLang = ""
				fmt.Fprintln(out, "using the patient's preferred language")
			} else {
				targetLang = fields[1]
				fmt.Fprintln(out, "target language set to", targetLang)
			}

		case "insights":
			report, ok := doc.Insights()
			if !ok {
				fmt.Fprintln(out, "(no insight received yet)")
				break
			}
			fmt.Fprintln(out, report.Insights)

		case "history":
			entries, err := doc.Conversation()
			if err != nil {
				fmt.Fprintln(out, "error:", err)
				break
			}
			printHistory(out, entries)

		default:
			fmt.Fprintln(out, "unknown command; type help")
		}
		fmt.Fprint(out, "doctor> ")
	}
}
