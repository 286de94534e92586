package main

import (
	"context"
	"flag"
	"fmt"
	"path/filepath"

	"github.com/dvloznov/churn-scorer/internal/gcs"
	"github.com/dvloznov/churn-scorer/internal/logger"
	"github.com/dvloznov/churn-scorer/internal/model"
)

// Pushes a model artifact to GCS after checking it actually parses, so a
// truncated or hand-edited file never reaches the scoring job.
func main() {
	log := logger.New()

	bucketName := flag.String("bucket", "", "GCS bucket name")
	objectName := flag.String("object", "", "GCS object name (defaults to filename)")
	filePath := flag.String("file", "", "Path to local model artifact JSON")
	flag.Parse()

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: upload-model -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = filepath.Base(*filePath)
	}

	ctx := context.Background()
	ctx = logger.WithContext(ctx, log)

	storage := gcs.NewService()

	churnModel, err := model.Load(ctx, storage, *filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Artifact does not parse; refusing to upload")
	}
	log.Info().Str("version", churnModel.Version()).Msg("Artifact parsed")

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading model artifact to GCS")

	if err := storage.UploadFile(ctx, *bucketName, *objectName, *filePath); err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to gs://%s/%s\n", *filePath, *bucketName, *objectName)
}
