package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dive-annotations/trackconv/internal/convert"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <input.json>",
	Short: "Verify a track JSON file against the canonical schema",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = in.Close() }()

		if _, err := converter.Read(cmd.Context(), convert.FormatDiveJSON, readers(in)); err != nil {
			return err
		}
		fmt.Println("success")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
