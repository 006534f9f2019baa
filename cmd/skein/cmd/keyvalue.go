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
	"sort"

	"github.com/spf13/cobra"
)

func kvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kv",
		Short: "Access the key-value store of a running application",
	}
	cmd.AddCommand(
		kvGetCmd(),
		kvSetCmd(),
		kvDelCmd(),
		kvLsCmd(),
	)
	return cmd
}

func kvGetCmd() *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "get <id> <key>",
		Short: "Get the value of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			master, err := masterClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			value, err := master.KVGet(cmd.Context(), args[1], wait)
			if err != nil {
				return err
			}
			fmt.Println(value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the key is set")
	return cmd
}

func kvSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <key> <value>",
		Short: "Set a key to a value",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			master, err := masterClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return master.KVSet(cmd.Context(), args[1], args[2])
		},
	}
}

func kvDelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del <id> <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			master, err := masterClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = master.KVDelete(cmd.Context(), args[1])
			return err
		},
	}
}

func kvLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <id>",
		Short: "List all key-value pairs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			master, err := masterClient(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			entries, err := master.KVList(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(entries))
			for key := range entries {
				keys = append(keys, key)
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Printf("%s=%s\n", key, entries[key])
			}
			return nil
		},
	}
}
