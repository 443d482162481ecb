package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"ouro/internal/boot"
	"ouro/internal/config"
	"ouro/internal/evolve"
	"ouro/internal/gencode"
	"ouro/internal/loader"
	"ouro/internal/logging"
	"ouro/internal/mirror"
	"ouro/internal/preview"
	"ouro/internal/store"
	"ouro/internal/vfs"
)

var (
	// Global flags
	verbose   bool
	apiKey    string
	workspace string

	cfg    *config.Config
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ouro",
	Short: "ouro - a self-evolving source tree runtime",
	Long: `ouro hosts a source tree that rewrites itself.

The native binary only bootstraps: it restores (or seeds) the tree,
compiles the boot stages through an embedded interpreter, and hands
control to code living inside the tree. Evolution requests are sent to a
generative code service and applied back into the tree, which triggers a
recompile of the running system.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(workspace)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if apiKey != "" {
			cfg.Service.APIKey = apiKey
		}
		if verbose {
			cfg.Logging.Debug = true
			cfg.Logging.Level = "debug"
		}
		if err := logging.Initialize(workspace, cfg.Logging.Debug, cfg.Logging.Level); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

// runCmd boots the chain and keeps it alive until interrupted.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Boot the tree and run until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		enableMirror, _ := cmd.Flags().GetBool("mirror")

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		tree := vfs.New(nil)
		engine, err := buildEngine(ctx, tree)
		if err != nil {
			return err
		}
		if engine == nil {
			logger.Warn("no API key configured; evolution disabled")
		}

		sup, err := boot.NewSupervisor(boot.Options{
			Tree:           tree,
			Store:          st,
			Transpiler:     loader.NewScriptTranspiler(),
			Executor:       loader.NewYaegiExecutor(),
			Engine:         engine,
			OSEntry:        cfg.Boot.OSEntry,
			AppEntry:       cfg.Boot.AppEntry,
			RecompileDelay: cfg.Boot.RecompileDelayDuration(),
			OnDiagnostic: func(stage string, err error) {
				fmt.Fprintf(os.Stderr, "stage %s failed: %v\n", stage, err)
			},
		})
		if err != nil {
			return err
		}
		sup.Bridge().Register("log", logCapability())

		if err := sup.Start(ctx); err != nil {
			return err
		}
		defer sup.Stop()

		if enableMirror || cfg.Mirror.Enabled {
			m, err := mirror.New(mirror.Options{
				Directory: filepath.Join(workspace, cfg.Mirror.Directory),
				Tree:      tree,
				Write:     tree.Write,
				Delete:    tree.Delete,
			})
			if err != nil {
				return err
			}
			if err := m.Start(ctx); err != nil {
				return fmt.Errorf("failed to start mirror: %w", err)
			}
			defer m.Close()
			fmt.Printf("mirroring tree to %s\n", filepath.Join(workspace, cfg.Mirror.Directory))
		}

		printStages(sup)

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sig:
			fmt.Println("\nshutting down")
		case <-ctx.Done():
		}
		return nil
	},
}

// evolveCmd runs one evolution against the persisted tree.
var evolveCmd = &cobra.Command{
	Use:   "evolve <goal>",
	Short: "Ask the code service to rewrite part of the tree",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		goal := strings.Join(args, " ")
		targetPath, _ := cmd.Flags().GetString("path")
		multi, _ := cmd.Flags().GetBool("multi")

		ctx := cmd.Context()
		tree, st, err := openTree()
		if err != nil {
			return err
		}
		defer st.Close()
		persistOnMutation(tree, st)

		engine, err := buildEngine(ctx, tree)
		if err != nil {
			return err
		}
		if engine == nil {
			return fmt.Errorf("no API key configured (set GEMINI_API_KEY or --api-key)")
		}

		if multi {
			batch, err := engine.EvolveMulti(ctx, goal, targetPath)
			if err != nil {
				return err
			}
			for _, r := range batch {
				fmt.Printf("updated %s (%d bytes)\n", r.Path, len(r.Content))
			}
			return nil
		}

		if targetPath == "" {
			return fmt.Errorf("single-target evolution requires --path")
		}
		action, err := engine.EvolveSingle(ctx, goal, targetPath)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s\n", strings.ToLower(string(action.Kind)), action.Path)
		return nil
	},
}

// previewCmd bundles the tree and runs it in isolation.
var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Run the tree in an isolated bundle without touching live state",
	RunE: func(cmd *cobra.Command, args []string) error {
		entry, _ := cmd.Flags().GetString("entry")
		if entry == "" {
			entry = cfg.Preview.Entry
		}

		tree, st, err := openTree()
		if err != nil {
			return err
		}
		defer st.Close()

		bridge := loader.NewBridge()
		bridge.Register("log", logCapability())

		res, err := preview.Run(cmd.Context(), tree, bridge, preview.Options{
			Entry:        entry,
			Timeout:      cfg.Preview.TimeoutDuration(),
			Capabilities: cfg.Preview.Capabilities,
		})
		if err != nil {
			return err
		}
		fmt.Printf("preview ok: %d modules in %s\n", res.Modules, res.Elapsed.Round(time.Millisecond))
		return nil
	},
}

// treeCmd groups direct tree inspection and editing.
var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Inspect and edit the persisted tree",
}

var treeLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List every path in the tree",
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, st, err := openTree()
		if err != nil {
			return err
		}
		defer st.Close()
		for _, p := range tree.Paths() {
			content, _ := tree.Read(p)
			fmt.Printf("%8d  %s\n", len(content), p)
		}
		return nil
	},
}

var treeCatCmd = &cobra.Command{
	Use:   "cat <path>",
	Short: "Print one file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, st, err := openTree()
		if err != nil {
			return err
		}
		defer st.Close()
		content, ok := tree.Read(args[0])
		if !ok {
			return fmt.Errorf("no such path: %s", args[0])
		}
		fmt.Print(content)
		return nil
	},
}

var treePutCmd = &cobra.Command{
	Use:   "put <path> [file]",
	Short: "Write a file into the tree (reads stdin without a file argument)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if len(args) == 2 {
			data, err = os.ReadFile(args[1])
		} else {
			data, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}

		tree, st, err := openTree()
		if err != nil {
			return err
		}
		defer st.Close()
		persistOnMutation(tree, st)

		if err := tree.Write(args[0], string(data)); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", args[0], len(data))
		return nil
	},
}

var treeRmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a file from the tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if vfs.IsBootCritical(args[0]) {
			return fmt.Errorf("%s is boot-critical and cannot be deleted", args[0])
		}
		tree, st, err := openTree()
		if err != nil {
			return err
		}
		defer st.Close()
		persistOnMutation(tree, st)

		if !tree.Has(args[0]) {
			return fmt.Errorf("no such path: %s", args[0])
		}
		tree.Delete(args[0])
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

// resetCmd restores the factory seed tree.
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Factory reset: wipe the persisted tree and reinstall the seed",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("reset destroys all evolved code; re-run with --force")
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Reset(); err != nil {
			return err
		}
		seed := vfs.Seed()
		if err := st.Save(seed); err != nil {
			return fmt.Errorf("failed to persist seed tree: %w", err)
		}
		fmt.Printf("factory reset complete: %d seed files\n", len(seed))
		return nil
	},
}

func openStore() (*store.SnapshotStore, error) {
	return store.Open(filepath.Join(workspace, cfg.Store.DatabasePath))
}

// openTree loads the persisted tree, falling back to the seed when the
// store is empty.
func openTree() (*vfs.Tree, *store.SnapshotStore, error) {
	st, err := openStore()
	if err != nil {
		return nil, nil, err
	}
	files, ok, err := st.Load()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if !ok {
		files = vfs.Seed()
	}
	return vfs.New(files), st, nil
}

// persistOnMutation saves a snapshot after every tree mutation. Save
// failures degrade to a warning; the in-memory tree stays authoritative.
func persistOnMutation(tree *vfs.Tree, st *store.SnapshotStore) {
	tree.Subscribe(func(path string) {
		if err := st.Save(tree.Snapshot()); err != nil {
			logger.Warn("snapshot save failed", zap.String("path", path), zap.Error(err))
		}
	})
}

// buildEngine returns a nil engine when no API key is configured.
func buildEngine(ctx context.Context, tree *vfs.Tree) (*evolve.Engine, error) {
	if cfg.Service.APIKey == "" {
		return nil, nil
	}
	client, err := gencode.NewGeminiClient(ctx, cfg.Service.APIKey, cfg.Service.Model, cfg.Service.TimeoutDuration())
	if err != nil {
		return nil, fmt.Errorf("failed to create code service client: %w", err)
	}
	return evolve.New(client, tree), nil
}

// logCapability is the native binding scripts reach through
// caps["log"]. Messages go to the console and the boot log.
func logCapability() loader.Exports {
	emit := func(level, msg string) {
		fmt.Printf("[%s] %s\n", level, msg)
		logging.Boot("[script/%s] %s", level, msg)
	}
	return loader.Exports{
		"debug": func(msg string) { emit("debug", msg) },
		"info":  func(msg string) { emit("info", msg) },
		"warn":  func(msg string) { emit("warn", msg) },
		"error": func(msg string) { emit("error", msg) },
	}
}

func printStages(sup *boot.Supervisor) {
	for _, st := range sup.Stages() {
		line := fmt.Sprintf("stage %-4s %-10s %s", st.Name, st.State, st.Entry)
		if st.Err != nil {
			line += fmt.Sprintf("  (%v)", st.Err)
		}
		fmt.Println(line)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Code service API key (or set GEMINI_API_KEY)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", ".", "Workspace directory")

	runCmd.Flags().Bool("mirror", false, "Mirror the tree to disk for external editing")

	evolveCmd.Flags().String("path", "", "Target path (single) or context path (multi)")
	evolveCmd.Flags().Bool("multi", false, "Allow the service to rewrite multiple files")

	previewCmd.Flags().String("entry", "", "Entry module (defaults to the configured preview entry)")

	resetCmd.Flags().Bool("force", false, "Confirm the destructive reset")

	treeCmd.AddCommand(treeLsCmd, treeCatCmd, treePutCmd, treeRmCmd)
	rootCmd.AddCommand(runCmd, evolveCmd, previewCmd, treeCmd, resetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
