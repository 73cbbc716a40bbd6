package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"grouping-backfill/internal/config"
	"grouping-backfill/internal/domain/model"
	red "grouping-backfill/internal/infra/redis"
)

// enqueue kicks off a backfill chain from the command line: a single
// project, an explicit project list, or a named cohort from config.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	projectID := flag.Int64("project", 0, "single project id to backfill")
	cohortName := flag.String("cohort", "", "named cohort from config")
	projectList := flag.String("projects", "", "comma-separated explicit project id list")
	onlyDelete := flag.Bool("only-delete", false, "delete grouping records instead of backfilling")
	enableIngestion := flag.Bool("enable-ingestion", false, "enable inline ingestion per project as the walk reaches it")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	cursor, err := buildCursor(cfg, *projectID, *cohortName, *projectList, *onlyDelete, *enableIngestion)
	if err != nil {
		log.Fatalf("enqueue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer client.Close()

	queue := red.NewTaskQueue(client, cfg.Backfill.QueueName)
	if err := queue.Enqueue(ctx, *cursor, 0); err != nil {
		log.Fatalf("enqueue: %v", err)
	}
	log.Printf("enqueued backfill: project=%d only_delete=%v", cursor.ProjectID, cursor.OnlyDelete)
}

func buildCursor(cfg *config.Config, projectID int64, cohortName, projectList string, onlyDelete, enableIngestion bool) (*model.BackfillCursor, error) {
	firstIndex := 0
	switch {
	case cohortName != "":
		ids, ok := cfg.Cohorts[cohortName]
		if !ok || len(ids) == 0 {
			return nil, fmt.Errorf("unknown cohort %q", cohortName)
		}
		return &model.BackfillCursor{
			ProjectID:       ids[0],
			Cohort:          &model.Cohort{Name: cohortName},
			ProjectIndex:    &firstIndex,
			OnlyDelete:      onlyDelete,
			EnableIngestion: enableIngestion,
		}, nil
	case projectList != "":
		var ids []int64
		for _, part := range strings.Split(projectList, ",") {
			id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad project id %q", part)
			}
			ids = append(ids, id)
		}
		return &model.BackfillCursor{
			ProjectID:       ids[0],
			Cohort:          &model.Cohort{ProjectIDs: ids},
			ProjectIndex:    &firstIndex,
			OnlyDelete:      onlyDelete,
			EnableIngestion: enableIngestion,
		}, nil
	case projectID > 0:
		return &model.BackfillCursor{
			ProjectID:       projectID,
			OnlyDelete:      onlyDelete,
			EnableIngestion: enableIngestion,
		}, nil
	default:
		return nil, fmt.Errorf("one of -project, -cohort, -projects is required")
	}
}
