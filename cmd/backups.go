/*
Copyright 2025 PayGrid Authors.

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
	"time"

	auditexport "github.com/paygrid/disburse/internal/audit-export"

	"github.com/sirupsen/logrus"

	"github.com/spf13/cobra"
)

// auditExportCommands snapshots the audit ledger for compliance archival.
// Defaults to yesterday, the most recent complete day.
func auditExportCommands(_ *disburseInstance) *cobra.Command {
	var dayFlag string

	cmd := &cobra.Command{
		Use:   "audit-export",
		Short: "export the audit ledger for one day",
	}

	cmd.PersistentFlags().StringVar(&dayFlag, "day", "", "Day to export (YYYY-MM-DD), defaults to yesterday")

	cmd.AddCommand(auditExportToFileCommands(&dayFlag))
	cmd.AddCommand(auditExportToS3Commands(&dayFlag))

	return cmd
}

func exportDay(dayFlag string) (time.Time, error) {
	if dayFlag == "" {
		return time.Now().AddDate(0, 0, -1), nil
	}
	return time.Parse("2006-01-02", dayFlag)
}

func auditExportToFileCommands(dayFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use: "file",
		Run: func(cmd *cobra.Command, args []string) {
			day, err := exportDay(*dayFlag)
			if err != nil {
				logrus.Error(err)
				return
			}
			if _, err := auditexport.ExportAuditLogs(day); err != nil {
				logrus.Error(err)
				return
			}
		},
	}

	return cmd
}

func auditExportToS3Commands(dayFlag *string) *cobra.Command {
	cmd := &cobra.Command{
		Use: "s3",
		Run: func(cmd *cobra.Command, args []string) {
			day, err := exportDay(*dayFlag)
			if err != nil {
				logrus.Error(err)
				return
			}
			exportPath, err := auditexport.ExportAuditLogs(day)
			if err != nil {
				logrus.Error(err)
				return
			}
			if err := auditexport.UploadToS3(exportPath, day); err != nil {
				logrus.Error(err)
				return
			}
		},
	}

	return cmd
}
