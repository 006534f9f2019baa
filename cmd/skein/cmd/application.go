/*
 Licensed to the Apache Software Foundation (ASF) under one
 or more contributor license agreements.  See the NOTICE file
 distributed with this work for additional information
 regarding copyright ownership.  The ASF licenses this file
 to you under the Apache License, Version 2.0 (the
 "License"); you may not use this file except in compliance
 with the License.  You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mrocklin/skein/pkg/model"
)

func applicationCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "application",
		Aliases: []string{"app"},
		Short:   "Manage skein applications",
	}
	cmd.AddCommand(
		applicationSubmitCmd(),
		applicationStatusCmd(),
		applicationLsCmd(),
		applicationKillCmd(),
		applicationShutdownCmd(),
		applicationDescribeCmd(),
	)
	return cmd
}

func applicationSubmitCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "submit <spec>",
		Short: "Submit an application specification",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			spec, err := model.LoadSpec(args[0], "infer")
			if err != nil {
				return err
			}
			daemon, err := daemonClient()
			if err != nil {
				return err
			}
			appID, err := daemon.Submit(cmd.Context(), spec)
			if err != nil {
				return err
			}
			if wait {
				if _, err = daemon.WaitForStart(cmd.Context(), appID); err != nil {
					return err
				}
			}
			fmt.Println(appID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the application is running")
	return cmd
}

func applicationStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show the status of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			daemon, err := daemonClient()
			if err != nil {
				return err
			}
			report, err := daemon.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printReports([]*model.ApplicationReport{report})
			return nil
		},
	}
}

func applicationLsCmd() *cobra.Command {
	var stateFilters []string
	cmd := &cobra.Command{
		Use:   "ls",
		Short: "List applications",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var states []model.ApplicationState
			for _, raw := range stateFilters {
				state, err := model.ParseApplicationState(raw)
				if err != nil {
					return err
				}
				states = append(states, state)
			}
			daemon, err := daemonClient()
			if err != nil {
				return err
			}
			reports, err := daemon.Applications(cmd.Context(), states)
			if err != nil {
				return err
			}
			printReports(reports)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&stateFilters, "state", nil, "filter by application state (repeatable)")
	return cmd
}

func applicationKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <id>",
		Short: "Kill an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			daemon, err := daemonClient()
			if err != nil {
				return err
			}
			return daemon.Kill(cmd.Context(), args[0])
		},
	}
}

func applicationShutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown <id> <status>",
		Short: "Shut an application down with an explicit final status",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			finalStatus, err := model.ParseFinalStatus(args[1])
			if err != nil {
				return err
			}
			master, err := masterClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return master.Shutdown(cmd.Context(), finalStatus, "")
		},
	}
}

func applicationDescribeCmd() *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "describe <id>",
		Short: "Print the specification of a running application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			master, err := masterClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var out interface{}
			if service != "" {
				out, err = master.GetService(cmd.Context(), service)
			} else {
				out, err = master.GetSpec(cmd.Context())
			}
			if err != nil {
				return err
			}
			encoded, err := yaml.Marshal(out)
			if err != nil {
				return err
			}
			fmt.Print(string(encoded))
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "describe a single service")
	return cmd
}

func printReports(reports []*model.ApplicationReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "APPLICATION_ID\tNAME\tSTATE\tSTATUS\tRUNTIME\tADDRESS")
	for _, report := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			report.ID, report.Name, report.State, report.FinalStatus,
			report.Runtime().Round(time.Second), report.Address())
	}
	_ = w.Flush()
}
