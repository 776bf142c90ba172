/*
Copyright 2024 Paycore Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"log"
	"time"

	"github.com/spf13/cobra"
)

// reconcileCommands defines the "reconcile" command for running settlement
// report generation and delivery by hand, outside the daily schedule.
func reconcileCommands(p *paycoreInstance) *cobra.Command {
	var date string
	var skipSend bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "generate and send the settlement report for a date",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			day := time.Now().AddDate(0, 0, -1)
			if date != "" {
				parsed, err := time.Parse("2006-01-02", date)
				if err != nil {
					log.Fatalf("invalid date %q, expected YYYY-MM-DD", date)
				}
				day = parsed
			}

			report, generated, err := p.paycore.GenerateReport(ctx, day)
			if err != nil {
				log.Fatal(err)
			}
			if !generated {
				log.Printf("report for %s already exists (%s)", day.Format("2006-01-02"), report.ReportID)
			}

			if skipSend {
				log.Printf("report %s generated, delivery skipped", report.ReportID)
				return
			}

			if _, err := p.paycore.SendReport(ctx, report.ReportID, ""); err != nil {
				log.Fatal(err)
			}
			log.Printf("report %s delivered to %s", report.ReportID, report.EmailAddress)
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "settlement date (YYYY-MM-DD), defaults to yesterday")
	cmd.Flags().BoolVar(&skipSend, "skip-send", false, "generate without sending the email")

	return cmd
}
