package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dvloznov/churn-scorer/internal/config"
	"github.com/dvloznov/churn-scorer/internal/gcs"
	infraBQ "github.com/dvloznov/churn-scorer/internal/infra/bigquery"
	"github.com/dvloznov/churn-scorer/internal/logger"
	"github.com/dvloznov/churn-scorer/internal/model"
	"github.com/dvloznov/churn-scorer/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Invalid configuration")
	}

	log := logger.NewWithLevel(cfg.LogLevel)

	// Flags override env for one-off runs.
	modelURI := flag.String("model", cfg.ModelURI, "model artifact path or gs:// URI")
	output := flag.String("output", cfg.OutputPath, "prediction CSV path")
	uploadBucket := flag.String("upload-bucket", cfg.UploadBucket, "GCS bucket to upload the prediction file to (optional)")
	noAudit := flag.Bool("no-audit", false, "skip writing a scoring_runs audit row")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	storage := gcs.NewService()

	churnModel, err := model.Load(ctx, storage, *modelURI)
	if err != nil {
		log.Fatal().Err(err).Msg("Loading model failed")
	}
	log.Info().Str("model_uri", *modelURI).Str("version", churnModel.Version()).Msg("Loaded model")

	loader, err := infraBQ.NewLoader(ctx, cfg.ProjectID, cfg.Dataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Creating warehouse loader failed")
	}
	defer loader.Close()

	var recorder pipeline.RunRecorder
	if !*noAudit {
		recorder = infraBQ.NewRunRecorder(loader.Client(), cfg.Dataset)
	}

	window := pipeline.Window{
		RecencyCutoff: cfg.RecencyCutoff,
		WindowStart:   cfg.WindowStart,
	}

	p := pipeline.New(infraBQ.NewCachedLoader(loader), churnModel, recorder, window, *modelURI)

	log.Info().
		Time("recency_cutoff", window.RecencyCutoff).
		Time("window_start", window.WindowStart).
		Msg("Starting scoring run")

	preds, runErr := p.Run(ctx)
	if runErr != nil && preds == nil {
		log.Fatal().Err(runErr).Msg("Scoring run failed")
	}

	if err := pipeline.WritePredictions(*output, preds); err != nil {
		log.Fatal().Err(err).Msg("Writing predictions failed")
	}
	log.Info().Int("creditors", len(preds)).Str("path", *output).Msg("Wrote prediction file")

	if *uploadBucket != "" {
		object := filepath.Base(*output)
		if err := storage.UploadFile(ctx, *uploadBucket, object, *output); err != nil {
			log.Fatal().Err(err).Msg("Uploading predictions failed")
		}
		log.Info().Str("bucket", *uploadBucket).Str("object", object).Msg("Uploaded prediction file")
	}

	if runErr != nil {
		// Predictions are on disk; the failed audit update still fails
		// the job so the RUNNING row gets noticed.
		log.Error().Err(runErr).Msg("Scoring run audit update failed")
		os.Exit(1)
	}

	fmt.Printf("Scored %d creditors.\n", len(preds))
}
