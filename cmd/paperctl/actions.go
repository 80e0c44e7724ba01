package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pastpapers-ai/explainer-api/config"
	"github.com/pastpapers-ai/explainer-api/database"
	"github.com/pastpapers-ai/explainer-api/services"
	"github.com/pastpapers-ai/explainer-api/services/paperindex"
	"github.com/pastpapers-ai/explainer-api/services/pdftext"
	"github.com/pastpapers-ai/explainer-api/services/questionblock"
	"github.com/pastpapers-ai/explainer-api/services/storage"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// ExtractAction prints the requested block, or the not-found marker with
// exit status 1.
func ExtractAction(c *cli.Context) error {
	content, err := os.ReadFile(c.String("pdf"))
	if err != nil {
		return fmt.Errorf("failed to read pdf: %w", err)
	}

	text, err := pdftext.ExtractText(c.Context, content)
	if err != nil {
		return err
	}

	result := questionblock.New(questionblock.Options{
		PrefixMatch: c.Bool("prefix-match"),
	}).Extract(text, c.String("label"))

	if !result.Found() {
		return cli.Exit(result.String(), 1)
	}
	fmt.Fprintln(c.App.Writer, result.String())
	return nil
}

// SessionsAction lists a folder's question papers grouped by exam session.
func SessionsAction(c *cli.Context) error {
	names, err := pdfNames(c.String("dir"))
	if err != nil {
		return err
	}

	buckets := paperindex.BucketBySession(names)
	if len(buckets) == 0 {
		fmt.Fprintln(c.App.Writer, "No question papers found.")
		return nil
	}

	out, err := yaml.Marshal(buckets)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	fmt.Fprint(c.App.Writer, string(out))
	return nil
}

func pdfNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".pdf") {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

// ImportAction uploads a folder through the same path the cron job uses.
func ImportAction(c *cli.Context) error {
	cfg, store, err := connect()
	if err != nil {
		return err
	}
	defer store.Close()

	dir := c.String("dir")
	if dir == "" {
		dir = cfg.DATA_DIR
	}

	paperStore, err := storage.New(cfg)
	if err != nil {
		return err
	}

	db := store.GetDB()
	papers := services.NewPaperService(db, paperStore, services.NewSettingsService(db), cfg.ONLY_MODERATED)

	report, err := papers.ImportDir(c.Context, dir)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	fmt.Fprint(c.App.Writer, string(out))
	if len(report.Failed) > 0 {
		return cli.Exit(fmt.Sprintf("%d papers failed to import", len(report.Failed)), 1)
	}
	return nil
}

func CreateAdminAction(c *cli.Context) error {
	_, store, err := connect()
	if err != nil {
		return err
	}
	defer store.Close()

	admin, err := database.NewSeeder(store.GetDB()).CreateAdmin(c.String("email"), c.String("password"), c.String("name"))
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Created admin %s (id %d)\n", admin.Email, admin.ID)
	return nil
}

func connect() (*config.Config, *database.GORMStore, error) {
	if err := config.LoadENV(); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(nil)
	if err != nil {
		return nil, nil, err
	}

	store, err := database.StartGORM(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := store.Init(); err != nil {
		store.Close()
		return nil, nil, err
	}
	return cfg, store, nil
}

