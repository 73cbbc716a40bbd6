package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"grouping-backfill/internal/config"
	"grouping-backfill/internal/domain/model"
	pg "grouping-backfill/internal/infra/db/postgres"
	red "grouping-backfill/internal/infra/redis"

	"github.com/jackc/pgx/v4/pgxpool"
)

// seed creates the dev schema and a few synthetic projects, groups, and
// events so a local backfill run has something to walk.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	schemaPath := flag.String("schema", "deploy/postgres/init.sql", "path to schema SQL")
	projects := flag.Int("projects", 3, "number of projects to seed")
	groups := flag.Int("groups", 25, "groups per project")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	client, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer client.Close()

	if err := createSchema(ctx, pool, *schemaPath); err != nil {
		log.Fatalf("schema: %v", err)
	}

	for p := 1; p <= *projects; p++ {
		projectID := int64(p)
		if _, err := pool.Exec(ctx, `
INSERT INTO projects (id, slug, status, backfill_enabled, ingestion_enabled)
VALUES ($1, $2, 0, true, false)
ON CONFLICT (id) DO NOTHING;`, projectID, fmt.Sprintf("project-%d", p)); err != nil {
			log.Fatalf("insert project %d: %v", p, err)
		}

		for g := 1; g <= *groups; g++ {
			groupID := projectID*100_000 + int64(g)
			eventID := fmt.Sprintf("evt-%d-%d", projectID, g)
			if _, err := pool.Exec(ctx, `
INSERT INTO error_groups (id, project_id, status, times_seen, last_seen, has_grouping_record)
VALUES ($1, $2, 0, $3, now(), false)
ON CONFLICT (id) DO NOTHING;`, groupID, projectID, g); err != nil {
				log.Fatalf("insert group %d: %v", groupID, err)
			}
			if _, err := pool.Exec(ctx, `
INSERT INTO error_events (project_id, group_id, event_id, received_at)
VALUES ($1, $2, $3, now());`, projectID, groupID, eventID); err != nil {
				log.Fatalf("insert event %s: %v", eventID, err)
			}

			snap := model.EventSnapshot{
				Hash:          fmt.Sprintf("hash-%d", groupID),
				Message:       fmt.Sprintf("NullPointerException in handler %d", g),
				ExceptionType: "NullPointerException",
				Stacktrace:    fmt.Sprintf("at handler%d.process(handler.go:%d)", g, 10+g),
			}
			b, _ := json.Marshal(snap)
			key := fmt.Sprintf("event:%d:%s", projectID, eventID)
			if err := client.Set(ctx, key, b, 0); err != nil {
				log.Fatalf("set payload %s: %v", key, err)
			}
		}
	}

	fmt.Printf("seeded %d projects with %d groups each\n", *projects, *groups)
}

func createSchema(ctx context.Context, pool *pgxpool.Pool, path string) error {
	ddl, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	_, err = pool.Exec(ctx, string(ddl))
	return err
}
