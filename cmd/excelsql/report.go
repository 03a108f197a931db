package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/JonMunkholm/excelsql/internal/workflow"
)

// printView writes the parts of v that matter for its mode.
func printView(w io.Writer, v workflow.View, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Mode:\t%s\n", v.Mode)
	fmt.Fprintf(tw, "Master file:\t%s\n", v.MasterFile)
	fmt.Fprintf(tw, "Employee file:\t%s\n", v.EmployeeFile)
	fmt.Fprintf(tw, "Tenant / operator / starting UID:\t%d / %d / %d\n",
		v.Config.TenantID, v.Config.OperatedByUID, v.Config.StartingUID)

	switch v.Mode {
	case workflow.ModeErrorDisplayed:
		fmt.Fprintf(tw, "Error:\t%s (%s)\n", v.Error, v.ErrorCode)
	case workflow.ModeValidationDisplayed:
		printValidation(tw, v.Validation)
	case workflow.ModeGenerationSucceeded, workflow.ModeGenerationFailed:
		printResult(tw, v.Result)
	}
	return tw.Flush()
}

func printValidation(w io.Writer, r *workflow.ValidationReport) {
	if r == nil {
		return
	}
	md, ed := r.MasterDataValidation, r.EmployeeDataValidation
	fmt.Fprintf(w, "Can proceed:\t%t\n", r.CanProceed)
	fmt.Fprintf(w, "Designations / offices:\t%d / %d\n", md.DesignationCount, md.OfficeCount)
	fmt.Fprintf(w, "Employee rows:\t%d (%d errors, %d warnings)\n",
		ed.Summary.TotalRows, ed.Summary.ErrorCount, ed.Summary.WarningCount)

	printIssues(w, "master error", md.Errors)
	printIssues(w, "master warning", md.Warnings)
	printIssues(w, "employee error", ed.Errors)
	printIssues(w, "employee warning", ed.Warnings)
}

func printIssues(w io.Writer, label string, issues []workflow.Issue) {
	for _, is := range issues {
		where := ""
		if is.Row != nil {
			where = fmt.Sprintf(" row %d", *is.Row)
		}
		msg := is.Message
		if is.Type != "" {
			msg = "[" + is.Type + "] " + msg
		}
		if is.Value != nil {
			msg += fmt.Sprintf(" (value %v)", is.Value)
		}
		fmt.Fprintf(w, "  %s%s:\t%s\n", label, where, msg)
	}
}

func printResult(w io.Writer, g *workflow.GenerationResult) {
	if g == nil {
		return
	}
	fmt.Fprintf(w, "Success:\t%t\n", g.Success)
	if g.Message != "" {
		fmt.Fprintf(w, "Message:\t%s\n", g.Message)
	}
	fmt.Fprintf(w, "Employees:\t%d total, %d processed, %d errors\n",
		g.Stats.TotalEmployees, g.Stats.SuccessfullyProcessed, g.Stats.Errors)
	for _, e := range g.Errors {
		fmt.Fprintf(w, "  error:\t%s\n", e)
	}
	if g.Filename != "" {
		fmt.Fprintf(w, "Artifact:\t%s\n", g.Filename)
	}
	if g.SQLPreview != "" {
		preview, _, cut := strings.Cut(g.SQLPreview, "\n")
		if cut {
			preview += " ..."
		}
		fmt.Fprintf(w, "Preview:\t%s\n", preview)
	}
}
