// Package commands implements the ace-cli subcommands.
package commands

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/spf13/cobra"

	"github.com/XiaoConstantine/ace-go/pkg/ace"
	"github.com/XiaoConstantine/ace-go/pkg/config"
	"github.com/XiaoConstantine/ace-go/pkg/llm"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
	"github.com/XiaoConstantine/ace-go/pkg/storage"
)

// workspace resolves where the manual lives and how to open it: a JSON
// state file, a SQLite snapshot database, or a fresh in-memory manual.
type workspace struct {
	configPath string
	statePath  string
	dbPath     string
	manualID   string

	cfg   *config.Config
	store *storage.SQLiteStore
}

func addWorkspaceFlags(cmd *cobra.Command, ws *workspace) {
	cmd.Flags().StringVar(&ws.configPath, "config", "", "path to YAML config file")
	cmd.Flags().StringVar(&ws.statePath, "state", "", "path to JSON state file")
	cmd.Flags().StringVar(&ws.dbPath, "db", "", "path to SQLite snapshot database")
	cmd.Flags().StringVar(&ws.manualID, "manual", "", "manual identifier")
}

// setup loads config, applies log level, and opens the snapshot store
// when a database path is configured.
func (ws *workspace) setup() error {
	if ws.configPath != "" {
		cfg, err := config.Load(ws.configPath)
		if err != nil {
			return err
		}
		ws.cfg = cfg
	} else {
		ws.cfg = config.Default()
	}

	if ws.dbPath == "" {
		ws.dbPath = ws.cfg.Storage.Path
	}
	if ws.manualID == "" {
		ws.manualID = ws.cfg.Manual.ID
	}

	outputs := []logging.Output{logging.NewConsoleOutput(true)}
	if ws.cfg.Logging.File != "" {
		fileOut, err := logging.NewFileOutput(ws.cfg.Logging.File)
		if err != nil {
			return err
		}
		outputs = append(outputs, fileOut)
	}
	logging.SetLogger(logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(ws.cfg.Logging.Level),
		Outputs:  outputs,
	}))

	if ws.dbPath != "" {
		store, err := storage.NewSQLiteStore(ws.dbPath)
		if err != nil {
			return err
		}
		ws.store = store
	}
	return nil
}

func (ws *workspace) close() {
	if ws.store != nil {
		ws.store.Close()
	}
}

// generateFunc builds the model backend when an API key is available;
// otherwise the agents run offline.
func (ws *workspace) generateFunc() ace.GenerateFunc {
	if ws.cfg.LLM.APIKey == "" && os.Getenv("ANTHROPIC_API_KEY") == "" {
		return nil
	}
	fn, err := llm.NewAnthropicGenerateFunc(llm.AnthropicConfig{
		APIKey:      ws.cfg.LLM.APIKey,
		Model:       anthropicModel(ws.cfg.LLM.Model),
		MaxTokens:   ws.cfg.LLM.MaxTokens,
		Temperature: ws.cfg.LLM.Temperature,
	})
	if err != nil {
		return nil
	}
	return fn
}

func anthropicModel(name string) anthropic.Model {
	return anthropic.Model(name)
}

// load opens the framework from the snapshot store or state file,
// falling back to a fresh manual when neither holds one yet.
func (ws *workspace) load(ctx context.Context) (*ace.Framework, error) {
	generate := ws.generateFunc()

	if ws.store != nil && ws.manualID != "" {
		state, err := ws.store.LoadLatest(ctx, ws.manualID)
		if err == nil {
			return ace.RestoreFramework(state, generate)
		}
	}
	if ws.statePath != "" {
		if _, err := os.Stat(ws.statePath); err == nil {
			return ace.LoadState(ws.statePath, generate)
		}
	}
	return ace.NewFramework(
		ace.WithManualID(ws.manualID),
		ace.WithGenerateFunc(generate),
	), nil
}

// save persists the framework to every configured destination.
func (ws *workspace) save(ctx context.Context, f *ace.Framework) error {
	if ws.store != nil {
		if err := ws.store.SaveSnapshot(ctx, f.ExportState()); err != nil {
			return err
		}
		if keep := ws.cfg.Storage.KeepVersions; keep > 0 {
			if err := ws.store.Prune(ctx, f.Manual().ManualID, keep); err != nil {
				return err
			}
		}
	}
	if ws.statePath != "" {
		if err := f.SaveState(ws.statePath); err != nil {
			return err
		}
	}
	return nil
}
