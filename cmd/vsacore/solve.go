// Copyright Consensys Software Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/vsacore/vsacore/pkg/solver"
	"github.com/vsacore/vsacore/pkg/util"
	"github.com/vsacore/vsacore/pkg/util/termio"
)

// solveCmd runs value-set analysis over a textual IR file and prints the
// resulting range of every declared sink.
var solveCmd = &cobra.Command{
	Use:   "solve [flags] ir_file",
	Short: "Run value-set analysis over a textual IR function and report sink ranges.",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			fmt.Println(cmd.UsageString())
			os.Exit(1)
		}

		if GetFlag(cmd, "verbose") {
			log.SetLevel(log.DebugLevel)
		}

		widenThreshold := GetUint(cmd, "widen-threshold")
		maxIterations := GetUint(cmd, "max-iterations")

		runSolve(args[0], widenThreshold, maxIterations)
	},
}

func runSolve(path string, widenThreshold, maxIterations uint) {
	f, err := os.Open(path)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer f.Close()

	fn, err := ParseFunction(f)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	if len(fn.Sinks) == 0 {
		fmt.Println("no sink variables declared")
		os.Exit(1)
	}

	stats := util.NewPerfStats()

	s := solver.EstablishValueSets(fn.Sinks, fn.StackReg,
		solver.WithBranches(fn.Branches...),
		solver.WithWidenThreshold(widenThreshold))

	s.Solve(maxIterations)

	stats.Log("Solving value sets")

	printRanges(fn, s)

	log.WithField("iterations", s.GetNumIterations()).Debug("value-set solve finished")
}

func printRanges(fn *ParsedFunction, s *solver.ValueSetSolver) {
	names := fn.SinkNames()
	table := termio.NewFormattedTable(2, uint(len(names)+1))

	table.SetRow(0, termio.NewText("variable"), termio.NewText("range"))

	for i, name := range names {
		rangeText := "(unreached)"

		if vs, ok := s.GetValueSet(fn.Sinks[i]); ok {
			rangeText = vs.Range().String()
		}

		table.SetRow(uint(i+1), termio.NewText(name), termio.NewText(rangeText))
	}

	table.Print(false)
}

func init() {
	rootCmd.AddCommand(solveCmd)
	solveCmd.Flags().BoolP("verbose", "v", false, "increase logging verbosity")
	solveCmd.Flags().Uint("widen-threshold", 3, "iterations of a node before widening is applied to it")
	solveCmd.Flags().Uint("max-iterations", 10000, "ceiling on total node-iterations before forced termination")
}
