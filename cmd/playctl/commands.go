package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"

	"ai-playground/internal/domain/model"
	"ai-playground/internal/patch"
	"ai-playground/internal/preview"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "playctl",
		Short: "Offline tools for playground replies and projects",
		Long: `playctl runs the playground's reply extractor and preview composer
against local files, without a server or a model.`,
		SilenceUsage: true,
	}
	root.AddCommand(newExtractCmd(), newApplyCmd(), newPreviewCmd())
	return root
}

func newExtractCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "extract [reply-file]",
		Short: "Print the code blocks and malformed fences found in a model reply",
		Long:  `Reads a reply from the file (or stdin when omitted or "-") and prints its blocks and issues as JSON.`,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			res := patch.Extract(text)
			out := struct {
				Blocks []patch.Block `json:"blocks"`
				Issues []patch.Issue `json:"issues"`
			}{Blocks: res.Blocks, Issues: res.Issues}
			if out.Blocks == nil {
				out.Blocks = []patch.Block{}
			}
			if out.Issues == nil {
				out.Issues = []patch.Issue{}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if strict {
				return res.Err()
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail when the reply has malformed fences and no usable block")
	return cmd
}

func newApplyCmd() *cobra.Command {
	var (
		dir    string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "apply [reply-file]",
		Short: "Apply a model reply's code blocks to a project directory",
		Long: `Extracts blocks from the reply and writes them into --dir the same way the
playground updates a session. Each changed file is printed as a patch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			store, err := loadDir(dir)
			if err != nil {
				return err
			}
			before := store.Clone()

			res := patch.Extract(text)
			for _, is := range res.Issues {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning:", is.String())
			}
			if res.Empty() {
				if err := res.Err(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "no code blocks found; nothing to apply")
				return nil
			}
			for _, b := range res.Blocks {
				if !flatName(b.Filename) {
					return fmt.Errorf("refusing to write %q outside %s", b.Filename, dir)
				}
			}

			changes := patch.Apply(store, res.Blocks)
			dmp := diffmatchpatch.New()
			for _, c := range changes {
				if c.Unchanged {
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "--- %s\n", c.String())
				p := dmp.PatchMake(before.Content(c.Filename), store.Content(c.Filename))
				fmt.Fprint(cmd.OutOrStdout(), dmp.PatchToText(p))
				if dryRun {
					continue
				}
				if err := os.WriteFile(filepath.Join(dir, c.Filename), []byte(store.Content(c.Filename)), 0o644); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), patch.Summary(changes))
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "project directory")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print patches without writing files")
	return cmd
}

func newPreviewCmd() *cobra.Command {
	var (
		dir      string
		out      string
		frame    bool
		maxBytes int
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Compose index.html, app.js and styles.css into one document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := loadDir(dir)
			if err != nil {
				return err
			}
			doc, err := preview.NewRenderer(maxBytes).Compose(store)
			if err != nil {
				return err
			}
			body := []byte(doc)
			if frame {
				if body, err = preview.HostPage(preview.NewFrame(doc, 1)); err != nil {
					return err
				}
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			return os.WriteFile(out, body, 0o644)
		},
	}
	cmd.Flags().StringVarP(&dir, "dir", "d", ".", "project directory")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	cmd.Flags().BoolVar(&frame, "frame", false, "wrap the document in a sandboxed iframe host page")
	cmd.Flags().IntVar(&maxBytes, "max-bytes", 0, "reject documents larger than this (0 = no limit)")
	return cmd
}

func readInput(cmd *cobra.Command, args []string) (string, error) {
	var r io.Reader = cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", err
		}
		defer f.Close()
		r = f
	}
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// loadDir reads the regular, non-hidden files at the top of dir.
func loadDir(dir string) (*model.FileStore, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	store := model.NewFileStore()
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if err := store.Set(e.Name(), string(b)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func flatName(name string) bool {
	return name != "" && name != "." && name != ".." && filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
