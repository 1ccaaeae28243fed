/*
 * Copyright 2025 The Greenroom Authors. All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/greenroom-io/greenroom/internal/version"
)

var output string

type versionDetail struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"gitCommit" yaml:"gitCommit"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Platform  string `json:"platform" yaml:"platform"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of Greenroom",
		RunE: func(cmd *cobra.Command, args []string) error {
			detail := versionDetail{
				Version:   version.Version,
				GitCommit: version.GitCommit,
				BuildDate: version.BuildDate,
				GoVersion: runtime.Version(),
				Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
			}

			switch output {
			case "":
				cmd.Printf("Greenroom: %s, commit: %s, build date: %s, go: %s, platform: %s\n",
					detail.Version,
					detail.GitCommit,
					detail.BuildDate,
					detail.GoVersion,
					detail.Platform,
				)
			case "json":
				bytes, err := json.MarshalIndent(detail, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal version detail: %w", err)
				}
				cmd.Println(string(bytes))
			case "yaml":
				bytes, err := yaml.Marshal(detail)
				if err != nil {
					return fmt.Errorf("marshal version detail: %w", err)
				}
				cmd.Print(string(bytes))
			default:
				return fmt.Errorf(`unknown output format %q, expected "json" or "yaml"`, output)
			}

			return nil
		},
	}
}

func init() {
	cmd := newVersionCmd()
	cmd.Flags().StringVarP(
		&output,
		"output",
		"o",
		"",
		"One of 'json' or 'yaml'.",
	)
	rootCmd.AddCommand(cmd)
}
