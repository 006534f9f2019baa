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
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrocklin/skein/pkg/model"
)

func containerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "container",
		Short: "Manage containers of a running application",
	}
	cmd.AddCommand(
		containerLsCmd(),
		containerKillCmd(),
		containerScaleCmd(),
	)
	return cmd
}

func containerLsCmd() *cobra.Command {
	var services []string
	var stateFilters []string
	cmd := &cobra.Command{
		Use:   "ls <id>",
		Short: "List containers of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var states []model.ContainerState
			for _, raw := range stateFilters {
				state, err := model.ParseContainerState(raw)
				if err != nil {
					return err
				}
				states = append(states, state)
			}
			master, err := masterClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			containers, err := master.GetContainers(cmd.Context(), states, services)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(w, "SERVICE\tID\tSTATE\tRUNTIME\tYARN_CONTAINER_ID")
			for i := range containers {
				c := &containers[i]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					c.ServiceName, c.ID(), c.State, c.Runtime().Round(time.Second), c.YarnContainerID)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringArrayVar(&services, "service", nil, "filter by service name (repeatable)")
	cmd.Flags().StringArrayVar(&stateFilters, "state", nil, "filter by container state (repeatable)")
	return cmd
}

func containerKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill <id> <service> <instance>",
		Short: "Kill a single container instance",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			instance, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid container instance %q", args[2])
			}
			master, err := masterClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return master.KillContainer(cmd.Context(), args[1], instance)
		},
	}
}

func containerScaleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scale <id> <service> <count>",
		Short: "Set the desired instance count of a service",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			count, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("invalid instance count %q", args[2])
			}
			master, err := masterClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return master.Scale(cmd.Context(), args[1], count)
		},
	}
}
