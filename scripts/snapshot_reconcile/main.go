package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/uni-contrib-api/internal/models"
	"github.com/noah-isme/uni-contrib-api/internal/repository"
	"github.com/noah-isme/uni-contrib-api/internal/service"
	"github.com/noah-isme/uni-contrib-api/pkg/config"
	"github.com/noah-isme/uni-contrib-api/pkg/database"
	"github.com/noah-isme/uni-contrib-api/pkg/logger"
)

type outcome struct {
	Faculty  models.Faculty
	Result   *models.CascadeResult
	Error    error
	Duration time.Duration
}

func main() {
	var (
		facultyID      string
		includeDeleted bool
		timeout        time.Duration
	)

	flag.StringVar(&facultyID, "faculty", "", "Reconcile a single faculty id (default: all)")
	flag.BoolVar(&includeDeleted, "include-deleted", true, "Also re-apply deletion to dependents of soft-deleted faculties")
	flag.DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer db.Close()

	faculties, err := repository.NewFacultyRepository(db).ListForReconcile(ctx, includeDeleted)
	if err != nil {
		log.Fatalf("failed to load faculties: %v", err)
	}

	cascade := service.NewFacultyCascade(repository.NewDocumentStore(db), nil, logr, cfg.Cascade.ExclusiveCoordinator)

	var (
		outcomes []outcome
		failed   int
	)
	for _, f := range faculties {
		if facultyID != "" && f.ID != facultyID {
			continue
		}
		out := reconcile(ctx, cascade, f)
		if out.Error != nil || !out.Result.OK() {
			failed++
			logr.Error("faculty reconcile failed", zap.String("faculty_id", f.ID), zap.Error(out.Error))
		}
		outcomes = append(outcomes, out)
	}

	if facultyID != "" && len(outcomes) == 0 {
		log.Fatalf("faculty %s not found", facultyID)
	}

	printReport(outcomes)
	fmt.Printf("Faculties: %d, Failed: %d\n", len(outcomes), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func reconcile(ctx context.Context, cascade *service.FacultyCascade, f models.Faculty) outcome {
	start := time.Now()
	res, err := cascade.Reconcile(ctx, &f)
	return outcome{Faculty: f, Result: res, Error: err, Duration: time.Since(start)}
}

func printReport(results []outcome) {
	fmt.Println("Snapshot Reconcile Report")
	fmt.Println("=========================")
	for _, res := range results {
		status := "OK"
		switch {
		case res.Error != nil:
			status = "ERROR"
		case !res.Result.OK():
			status = "PARTIAL"
		}
		label := res.Faculty.Name
		if res.Faculty.DeletedAt != nil {
			label += " (deleted)"
		}
		fmt.Printf("[%s] %s %s (%s)\n", status, res.Faculty.ID, label, res.Duration.Round(time.Millisecond))
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
			continue
		}
		var written []string
		for _, b := range res.Result.Succeeded {
			written = append(written, fmt.Sprintf("%s=%d", b, res.Result.Updated[b]))
		}
		fmt.Printf("  Rows written: %s\n", strings.Join(written, " "))
		for _, f := range res.Result.Failed {
			fmt.Printf("  Failed %s: %s\n", f.Branch, f.Error)
		}
	}
}
