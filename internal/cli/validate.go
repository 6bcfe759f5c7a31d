package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/listflow/internal/config"
)

// ValidationError is one problem found in a definitions file.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Lists  []string          `json:"lists,omitempty"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file.cue>",
		Short: "Validate list definitions without loading them",
		Long: `Check a CUE file of list definitions against the schema used by
"lists load" without opening the database.

Exit codes:
  0 - Definitions are valid
  1 - Definitions were rejected
  2 - Command error (file not found, etc.)`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	out := opts.formatter(cmd)

	defs, err := config.LoadListsFile(path)
	if err != nil {
		var le *config.LoadError
		if !errors.As(err, &le) {
			return out.Fail(ExitCommandError, ErrCodeGeneric, err.Error(), err)
		}
		if le.Code == config.ErrCodeNotFound {
			return out.Fail(ExitCommandError, ErrCodeInvalidArgs, le.Message, err)
		}
		return outputValidationErrors(out, []ValidationError{validationError(le)})
	}

	ids := defs.IDs()
	out.VerboseLog("Validated %d list definition(s) in %s", len(ids), path)

	var b strings.Builder
	fmt.Fprintln(&b, "✓ Definitions valid")
	for _, id := range ids {
		fmt.Fprintf(&b, "  %s\n", id)
	}
	return out.Success(ValidationResult{Valid: true, Lists: ids}, b.String())
}

func validationError(le *config.LoadError) ValidationError {
	v := ValidationError{Code: le.Code, Message: le.Message}
	if le.Pos.IsValid() {
		v.Line = le.Pos.Line()
	}
	return v
}

// outputValidationErrors outputs validation errors and returns ExitFailure.
func outputValidationErrors(out *OutputFormatter, errs []ValidationError) error {
	if out.Format == "json" {
		_ = out.Error(ErrCodeDefinitions, errs[0].Message, ValidationResult{Valid: false, Errors: errs})
	} else {
		fmt.Fprintln(out.Writer, "✗ Validation failed")
		fmt.Fprintln(out.Writer)
		for _, err := range errs {
			if err.Line > 0 {
				fmt.Fprintf(out.Writer, "line %d\n", err.Line)
			}
			fmt.Fprintf(out.Writer, "  %s: %s\n\n", err.Code, err.Message)
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
