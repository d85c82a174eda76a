package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"srs_generator/config"
	"srs_generator/pipeline"
	"srs_generator/srs"
)

type renderFlags struct {
	sections string
	output   string
	author   string
	html     bool
}

func newRenderCmd(root *rootFlags) *cobra.Command {
	f := &renderFlags{}
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a document from a saved sections file without calling the model",
		Long: `render reads the <output>.sections.json file written during generation and
renders it onto the document. Sections and diagrams already present in the
document are not repeated, so an interrupted run can be completed.`,
		Example: `  srsgen render -o library -a "Alice"
  srsgen render --sections saved.json -o library.docx -a "Alice" --html`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			brief, err := srs.NewProjectBrief("rendered from saved sections", f.author, f.output)
			if err != nil {
				return fmt.Errorf("--output and --author are required: %w", err)
			}
			sections := f.sections
			if sections == "" {
				sections = pipeline.SidecarPath(brief.OutputFile)
			}

			a, err := newApp(root, false, func(c *config.Config) {
				if f.html {
					c.Document.HTMLPreview = true
				}
			})
			if err != nil {
				return err
			}
			defer a.Close()

			sc, err := pipeline.LoadSidecar(sections, a.log)
			if err != nil {
				return err
			}
			kinds, err := a.cfg.DiagramKinds()
			if err != nil {
				return err
			}
			opts := pipeline.RenderOptions{
				DiagramKinds: kinds,
				Document:     a.documentRenderer(),
				HTMLPreview:  a.cfg.Document.HTMLPreview,
				Logger:       a.log,
			}
			if a.cfg.Diagrams.Enabled {
				opts.Renderer = a.diagramRenderer("")
			}
			if _, err := pipeline.Render(cmd.Context(), brief, sc, opts); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), brief.OutputFile)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.sections, "sections", "s", "", "sections JSON file (default <output>.sections.json)")
	cmd.Flags().StringVarP(&f.output, "output", "o", "srs", "document to create or complete")
	cmd.Flags().StringVarP(&f.author, "author", "a", "", "author name shown on the title page")
	cmd.Flags().BoolVar(&f.html, "html", false, "also write an HTML preview")
	return cmd
}
