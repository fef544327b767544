package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"entitlement-service/pkg/plans"

	"github.com/spf13/cobra"
)

func newPlansCommand() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plans",
		Short: "Show the plan matrix",
		RunE: func(cmd *cobra.Command, args []string) error {
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plans.Export())
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPlanMatrix(plans.All()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the catalog as JSON")
	return cmd
}

func renderPlanMatrix(all []plans.Plan) string {
	headers := []string{"Limit"}
	aligns := []columnAlignment{alignLeft}
	for _, p := range all {
		headers = append(headers, p.Name)
		aligns = append(aligns, alignRight)
	}

	type matrixRow struct {
		label string
		value func(p plans.Plan) string
	}
	lines := []matrixRow{
		{"recordings / month", func(p plans.Plan) string { return strconv.FormatInt(p.Limits.Recordings, 10) }},
		{"max recording (s)", func(p plans.Plan) string { return strconv.FormatInt(p.Limits.MaxRecordingDuration, 10) }},
		{"scripts / month", func(p plans.Plan) string { return strconv.FormatInt(p.Limits.Scripts, 10) }},
		{"exports / month", func(p plans.Plan) string { return strconv.FormatInt(p.Limits.Exports, 10) }},
		{"AI minutes / month", func(p plans.Plan) string { return strconv.FormatInt(p.Limits.AIAnalysisMinutes, 10) }},
		{"max video (MB)", func(p plans.Plan) string { return strconv.FormatInt(p.Limits.MaxVideoSizeMB, 10) }},
		{"max resolution", func(p plans.Plan) string { return p.Limits.MaxResolution }},
		{"max frame rate", func(p plans.Plan) string { return strconv.Itoa(p.Limits.MaxFrameRate) }},
	}
	for _, feature := range plans.FeatureNames() {
		feature := feature
		lines = append(lines, matrixRow{feature, func(p plans.Plan) string {
			if enabled, _ := p.Features.Has(feature); enabled {
				return "yes"
			}
			return "-"
		}})
	}

	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		row := []string{line.label}
		for _, p := range all {
			row = append(row, line.value(p))
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}
