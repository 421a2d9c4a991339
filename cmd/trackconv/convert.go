package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/dive-annotations/trackconv/internal/config"
	"github.com/dive-annotations/trackconv/internal/convert"
	"github.com/dive-annotations/trackconv/internal/export"
	"github.com/dive-annotations/trackconv/internal/model"
)

var (
	flagOutput       string
	flagCSVOutput    string
	flagOutputAttrs  string
	flagMeta         string
	flagFPS          float64
	flagExcludeBelow float64
)

var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert between annotation interchange formats",
}

var kpf2diveCmd = &cobra.Command{
	Use:   "kpf2dive <input.kpf>...",
	Short: "Convert KPF/MEVA packet streams to track JSON",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sources, closeAll, err := openSources(args)
		if err != nil {
			return err
		}
		defer closeAll()

		doc, err := converter.Read(cmd.Context(), convert.FormatKPF, sources)
		if err != nil {
			return err
		}
		return writeDive(cmd, doc, flagOutput, "")
	},
}

var coco2diveCmd = &cobra.Command{
	Use:   "coco2dive <input.json>",
	Short: "Convert a kwcoco document to track JSON plus attribute definitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()

		doc, err := converter.Read(cmd.Context(), convert.FormatCoco, readers(in))
		if err != nil {
			return err
		}
		return writeDive(cmd, doc, flagOutput, flagOutputAttrs)
	},
}

var viame2diveCmd = &cobra.Command{
	Use:   "viame2dive <input.csv>",
	Short: "Convert a VIAME CSV to track JSON plus attribute definitions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()

		doc, err := converter.Read(cmd.Context(), convert.FormatViameCSV, readers(in))
		if err != nil {
			return err
		}
		return writeDive(cmd, doc, flagOutput, flagOutputAttrs)
	},
}

var dive2viameCmd = &cobra.Command{
	Use:   "dive2viame <input.json>",
	Short: "Export track JSON as a VIAME CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if flagExcludeBelow < 0 || flagExcludeBelow > 1 {
			return fmt.Errorf("--exclude-below must be in [0,1], got %v", flagExcludeBelow)
		}

		in, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()

		doc, err := converter.Read(cmd.Context(), convert.FormatDiveJSON, readers(in))
		if err != nil {
			return err
		}

		opts := export.Options{
			ExcludeBelowThreshold: true,
			Thresholds:            map[string]float64{"default": flagExcludeBelow},
			FPS:                   flagFPS,
		}
		if flagExcludeBelow == 0 {
			opts.Thresholds["default"] = config.GetFloat64("export.defaultThreshold")
		}
		if flagMeta != "" {
			metaFile, err := os.Open(flagMeta)
			if err != nil {
				return err
			}
			defer func() { _ = metaFile.Close() }()
			meta, err := convert.LoadMeta(metaFile)
			if err != nil {
				return err
			}
			opts.Filenames = meta.OriginalImageFiles
			if opts.FPS == 0 {
				opts.FPS = meta.FPS
			}
		}

		out, err := os.Create(flagCSVOutput)
		if err != nil {
			return err
		}
		defer func() { _ = out.Close() }()

		if err := converter.ExportViameCSV(cmd.Context(), out, doc, opts); err != nil {
			return err
		}
		fmt.Printf("wrote output %s\n", flagCSVOutput)
		return nil
	},
}

// writeDive writes the track JSON and, when attrsPath is set, the attribute
// definition table.
func writeDive(cmd *cobra.Command, doc *model.Document, outPath, attrsPath string) error {
	out, err := os.Create(outPath)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	var attrsOut io.Writer
	if attrsPath != "" {
		f, err := os.Create(attrsPath)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		attrsOut = f
	}

	if err := converter.ExportDiveJSON(cmd.Context(), out, attrsOut, doc); err != nil {
		return err
	}
	fmt.Printf("wrote output %s\n", outPath)
	if attrsPath != "" {
		fmt.Printf("wrote attrib %s\n", attrsPath)
	}
	return nil
}

// openSources opens every path as a buffered reader.
func openSources(paths []string) ([]io.Reader, func(), error) {
	files := make([]*os.File, 0, len(paths))
	sources := make([]io.Reader, 0, len(paths))
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		files = append(files, f)
		sources = append(sources, bufio.NewReader(f))
	}
	return sources, closeAll, nil
}

func readers(rs ...io.Reader) []io.Reader {
	return rs
}

func init() {
	convertCmd.PersistentFlags().StringVar(&flagOutput, "output", "result.json", "output file")
	dive2viameCmd.Flags().StringVar(&flagCSVOutput, "output", "result.csv", "output file")
	coco2diveCmd.Flags().StringVar(&flagOutputAttrs, "output-attrs", "attributes.json", "attribute definitions output file")
	viame2diveCmd.Flags().StringVar(&flagOutputAttrs, "output-attrs", "attributes.json", "attribute definitions output file")
	dive2viameCmd.Flags().Float64Var(&flagExcludeBelow, "exclude-below", 0, "exclude detections below this confidence")
	dive2viameCmd.Flags().Float64Var(&flagFPS, "fps", 0, "annotation fps")
	dive2viameCmd.Flags().StringVar(&flagMeta, "meta", "", "populate image list and fps from meta.json")

	convertCmd.AddCommand(kpf2diveCmd, coco2diveCmd, viame2diveCmd, dive2viameCmd)
	rootCmd.AddCommand(convertCmd)
}
