package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/quizchain/quizchain/config"
	"github.com/quizchain/quizchain/internal/extract"
	"github.com/quizchain/quizchain/internal/ingest"
	"github.com/quizchain/quizchain/internal/interpret"
	"github.com/quizchain/quizchain/internal/reason"
	"github.com/quizchain/quizchain/internal/server"
	"github.com/quizchain/quizchain/internal/solver"
	"github.com/quizchain/quizchain/internal/submit"
	"github.com/quizchain/quizchain/internal/telemetry"
)

func main() {
	_ = godotenv.Load()

	var configPath string
	root := &cobra.Command{Use: "quizchain"}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")

	var serveAddr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP solving service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			loop, tele, err := buildLoop(cfg)
			if err != nil {
				return err
			}
			if serveAddr == "" {
				serveAddr = cfg.General.Listen
			}
			return server.New(cfg, loop, tele).Run(serveAddr)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (default from config)")

	var showTranscript bool
	solve := &cobra.Command{
		Use:   "solve <url>",
		Short: "Solve one quiz chain from the command line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			loop, _, err := buildLoop(cfg)
			if err != nil {
				return err
			}
			req := solver.SolveRequest{
				ID:        uuid.NewString(),
				StartURL:  args[0],
				Requester: cfg.Auth.StudentEmail,
				Secret:    cfg.Auth.StudentSecret,
				Deadline:  time.Now().Add(cfg.Solver.TotalBudget),
			}
			result := loop.Solve(context.Background(), req)
			if !showTranscript {
				result.Transcript = ""
			}
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			if result.Outcome != solver.OutcomeSuccess {
				os.Exit(1)
			}
			return nil
		},
	}
	solve.Flags().BoolVar(&showTranscript, "transcript", false, "include the step transcript in the output")

	root.AddCommand(serve, solve)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildLoop wires the full solving stack from configuration.
func buildLoop(cfg *config.Config) (*solver.Loop, *telemetry.Telemetry, error) {
	tele := telemetry.New(cfg.Telemetry, prometheus.DefaultRegisterer)

	extractor := extract.New(cfg.Extract, &extract.ChromeRenderer{UserAgent: cfg.Extract.UserAgent})
	ingestor := ingest.New(cfg.Ingest, &ingest.TesseractEngine{})

	chain, err := reason.NewChain(cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	chain.SetRecorder(tele.RecordModelCall)

	loop := solver.NewLoop(cfg.Solver, cfg.Ingest.MaxFiles, solver.Deps{
		Extractor:   extractor,
		Ingestor:    ingestor,
		Reasoner:    chain,
		Interpret:   interpret.Interpret,
		Normalize:   interpret.NormalizeAnswer,
		TypedAnswer: submit.TypedAnswer,
		Grader:      submit.New(cfg.Extract.StaticTimeout),
		Recorder:    tele,
	})
	return loop, tele, nil
}
