package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KamdynS/payroll-agents/rag"
)

var kbTopK int

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the payroll knowledge base",
	Long: `Index reference documents into the pgvector knowledge base that agents
consult before answering, or search it directly.

Requires knowledge.dsn (or DATABASE_URL) and an OpenAI key for embeddings.`,
}

var kbIndexCmd = &cobra.Command{
	Use:   "index <file-or-dir>...",
	Short: "Chunk, embed and store documents",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKBIndex,
}

var kbSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the passages retrieved for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runKBSearch,
}

func init() {
	kbSearchCmd.Flags().IntVarP(&kbTopK, "top", "k", 0, "Number of passages (defaults to knowledge.top_k)")

	kbCmd.AddCommand(kbIndexCmd)
	kbCmd.AddCommand(kbSearchCmd)
}

// indexable lists the document extensions picked up when walking a directory.
var indexable = map[string]bool{".md": true, ".txt": true}

// collectDocuments reads every path, descending into directories. Documents
// are keyed by their path relative to the argument they were found under.
func collectDocuments(paths []string) (map[string]string, error) {
	docs := make(map[string]string)
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			b, err := os.ReadFile(root)
			if err != nil {
				return nil, err
			}
			docs[filepath.Base(root)] = string(b)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !indexable[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			b, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			docs[filepath.ToSlash(rel)] = string(b)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", root, err)
		}
	}
	return docs, nil
}

func runKBIndex(cmd *cobra.Command, args []string) error {
	docs, err := collectDocuments(args)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no .md or .txt documents found")
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, emb, err := openKnowledge(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	n, err := rag.IndexDocuments(cmd.Context(), store, emb, docs)
	if err != nil {
		return fmt.Errorf("indexed %d chunks before failing: %w", n, err)
	}
	ok := color.New(color.FgGreen)
	fmt.Fprintf(cmd.OutOrStdout(), "%s indexed %d chunks from %d documents\n", ok.Sprint("✓"), n, len(docs))
	return nil
}

func runKBSearch(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	store, emb, err := openKnowledge(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	k := kbTopK
	if k <= 0 {
		k = cfg.Knowledge.TopK
	}
	docs, err := rag.Query(cmd.Context(), store, emb, strings.Join(args, " "), k)
	if err != nil {
		return err
	}
	id := color.New(color.FgCyan)
	for _, d := range docs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %.3f\n%s\n\n", id.Sprint(d.ID), d.Score, strings.TrimSpace(d.Content))
	}
	return nil
}
