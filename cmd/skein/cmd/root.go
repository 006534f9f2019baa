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

// Package cmd implements the skein command line client. All commands
// talk to the client-side daemon located by SKEIN_DAEMON_ADDRESS, and
// through it to the masters of running applications.
package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrocklin/skein/pkg/client"
	"github.com/mrocklin/skein/pkg/common"
)

// Exit codes of the command line client.
const (
	exitOK          = 0
	exitUserError   = 1
	exitUnreachable = 2
	exitNotFound    = 3
)

// RootCmd is the root Cobra command. All sub-commands are registered
// here.
func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "skein",
		Short:         "skein deploys and manages applications on a YARN cluster.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(
		applicationCmd(),
		containerCmd(),
		kvCmd(),
	)
	return cmd
}

// Execute runs the CLI and maps errors onto the documented exit codes.
func Execute() int {
	if err := RootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		switch common.CodeOf(err) {
		case common.CodeNotFound:
			return exitNotFound
		case common.CodeUnavailable, common.CodeCancelled:
			return exitUnreachable
		default:
			return exitUserError
		}
	}
	return exitOK
}

func daemonClient() (*client.DaemonClient, error) {
	return client.DaemonFromEnv()
}

func masterClient(ctx context.Context, appID string) (*client.MasterClient, error) {
	daemon, err := daemonClient()
	if err != nil {
		return nil, err
	}
	return daemon.MasterFor(ctx, appID)
}
