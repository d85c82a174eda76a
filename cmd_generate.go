package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"srs_generator/config"
	"srs_generator/srs"
)

type generateFlags struct {
	description     string
	descriptionFile string
	author          string
	output          string
	provider        string
	model           string
	noDiagrams      bool
	html            bool
}

func newGenerateCmd(root *rootFlags) *cobra.Command {
	f := &generateFlags{}
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate an SRS document from a project description",
		Example: `  srsgen generate -d "An online library where members borrow books" -a "Alice" -o library
  srsgen generate --description-file brief.txt -a "Alice" -o out/library.docx --html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runGenerate(cmd, root, f)
		},
	}
	cmd.Flags().StringVarP(&f.description, "description", "d", "", "project description")
	cmd.Flags().StringVar(&f.descriptionFile, "description-file", "", "read the project description from a file")
	cmd.Flags().StringVarP(&f.author, "author", "a", "", "author name shown on the title page")
	cmd.Flags().StringVarP(&f.output, "output", "o", "srs", "output file (.docx is appended when missing)")
	cmd.Flags().StringVar(&f.provider, "provider", "", "override llm.provider")
	cmd.Flags().StringVar(&f.model, "model", "", "override llm.model")
	cmd.Flags().BoolVar(&f.noDiagrams, "no-diagrams", false, "skip the diagram appendix")
	cmd.Flags().BoolVar(&f.html, "html", false, "also write an HTML preview next to the document")
	return cmd
}

func runGenerate(cmd *cobra.Command, root *rootFlags, f *generateFlags) error {
	description := f.description
	if f.descriptionFile != "" {
		if description != "" {
			return errors.New("--description and --description-file are mutually exclusive")
		}
		data, err := os.ReadFile(f.descriptionFile)
		if err != nil {
			return fmt.Errorf("failed to read description: %w", err)
		}
		description = string(data)
	}
	if strings.TrimSpace(description) == "" || strings.TrimSpace(f.author) == "" {
		return fmt.Errorf("--description (or --description-file) and --author are required")
	}
	brief, err := srs.NewProjectBrief(description, f.author, f.output)
	if err != nil {
		return err
	}

	a, err := newApp(root, true, func(c *config.Config) {
		if f.provider != "" && !strings.EqualFold(f.provider, c.LLM.Provider) {
			// 换后端时不沿用原后端的模型、密钥和地址
			c.LLM.Provider = f.provider
			c.LLM.Model, c.LLM.APIKey, c.LLM.APIKeyEnv, c.LLM.BaseURL = "", "", "", ""
		}
		if f.model != "" {
			c.LLM.Model = f.model
		}
		c.Resolve()
		if f.noDiagrams {
			c.Diagrams.Enabled = false
		}
		if f.html {
			c.Document.HTMLPreview = true
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.newPipeline("")
	if err != nil {
		return err
	}
	a.log.Info("generating srs", "output", brief.OutputFile, "provider", a.cfg.LLM.Provider, "model", a.cfg.LLM.Model)
	report, err := p.Run(cmd.Context(), brief)
	if err != nil {
		return err
	}

	for _, w := range report.Warnings {
		a.log.Warn("run warning", "warning", w)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, report.OutputFile)
	if report.PreviewFile != "" {
		fmt.Fprintln(out, report.PreviewFile)
	}
	return nil
}
