package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rendis/stepwise/internal/loader"
	"github.com/rendis/stepwise/internal/nodes"
	"github.com/rendis/stepwise/internal/validation"
	"github.com/rendis/stepwise/pkg/schema"
)

type fileReport struct {
	Path     string                   `json:"path"`
	Workflow string                   `json:"workflow,omitempty"`
	Valid    bool                     `json:"valid"`
	Errors   []schema.ValidationIssue `json:"errors,omitempty"`
	Warnings []schema.ValidationIssue `json:"warnings,omitempty"`
}

func validateCmd(_ *cli) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "validate <workflow>...",
		Short: "Check workflow files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			validator, err := validation.NewWorkflowValidator(nodes.NewDefaultRegistry())
			if err != nil {
				return err
			}

			reports := make([]fileReport, 0, len(args))
			invalid := 0
			for _, path := range args {
				report := validateFile(validator, path)
				if !report.Valid {
					invalid++
				}
				reports = append(reports, report)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, reports); err != nil {
					return err
				}
			} else {
				for _, r := range reports {
					printReport(out, r)
				}
			}
			if invalid > 0 {
				return schema.NewErrorf(schema.ErrCodeValidation, "%d of %d workflow(s) invalid", invalid, len(args))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print reports as JSON")
	return cmd
}

func validateFile(validator *validation.WorkflowValidator, path string) fileReport {
	report := fileReport{Path: path}
	doc, err := loader.LoadFile(path)
	if err != nil {
		report.Errors = []schema.ValidationIssue{{
			Code: codeOrValidation(err), Message: err.Error(), Severity: schema.SeverityError,
		}}
		return report
	}
	result := validator.ValidateDocument(doc.Raw, doc.Workflow)
	report.Workflow = doc.Workflow.Name
	report.Valid = result.Valid()
	report.Errors = result.Errors
	report.Warnings = result.Warnings
	return report
}

func printReport(w io.Writer, r fileReport) {
	state := "ok"
	if !r.Valid {
		state = "INVALID"
	}
	fmt.Fprintf(w, "%s: %s\n", r.Path, state)
	for _, issue := range r.Errors {
		fmt.Fprintf(w, "  error   %s [%s] %s\n", issue.Path, issue.Code, issue.Message)
	}
	for _, issue := range r.Warnings {
		fmt.Fprintf(w, "  warning %s [%s] %s\n", issue.Path, issue.Code, issue.Message)
	}
}

func codeOrValidation(err error) string {
	if code := schema.CodeOf(err); code != "" {
		return code
	}
	return schema.ErrCodeValidation
}
