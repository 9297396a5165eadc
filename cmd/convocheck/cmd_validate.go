package main

import (
	"fmt"

	"github.com/convocheck/convocheck/internal/validation"
	"github.com/spf13/cobra"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <test.yaml>...",
		Short: "Validate test case files against the schema",
		Args:  cobra.MinimumNArgs(1),
		RunE:  validateCommandE,
	}
}

func validateCommandE(cmd *cobra.Command, args []string) error {
	var invalid int
	for _, path := range args {
		errs, err := validation.ValidateTestCaseFile(path)
		if err != nil {
			return err
		}
		if len(errs) == 0 {
			fmt.Printf("✓ %s\n", path)
			continue
		}
		invalid++
		fmt.Printf("✗ %s\n", path)
		for _, e := range errs {
			fmt.Printf("    %s\n", e)
		}
	}

	if invalid > 0 {
		return fmt.Errorf("%d of %d file(s) failed validation", invalid, len(args))
	}
	return nil
}
