package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/edp1096/circuitsolver/pkg/netlist"
	"github.com/edp1096/circuitsolver/pkg/util"
)

// documentResults turns a solved document into single point series so the
// operating point prints like a sweep.
func documentResults(doc *netlist.Document) map[string][]float64 {
	results := make(map[string][]float64)
	for _, v := range doc.Vertices {
		if v.Voltage == nil {
			continue
		}
		results[fmt.Sprintf("V(%s)", label(v.Name, v.ID))] = []float64{*v.Voltage}
	}
	for _, e := range doc.Edges {
		if e.Current == nil {
			continue
		}
		results[fmt.Sprintf("I(%s)", label(e.Name, e.ID))] = []float64{*e.Current}
	}
	return results
}

func label(name, id string) string {
	if name != "" {
		return name
	}
	return id
}

func splitNames(results map[string][]float64) (voltageNames, currentNames []string) {
	for name := range results {
		if strings.HasPrefix(name, "V(") {
			voltageNames = append(voltageNames, name)
		} else if strings.HasPrefix(name, "I(") {
			currentNames = append(currentNames, name)
		}
	}
	sort.Strings(voltageNames)
	sort.Strings(currentNames)
	return voltageNames, currentNames
}

func printResults(results map[string][]float64) {
	fmt.Println("\nAnalysis Results:")
	fmt.Println("================")

	voltageNames, currentNames := splitNames(results)

	// DC Sweep
	if sweep1, isDC := results["SWEEP1"]; isDC {
		fmt.Printf("\nDC Sweep Analysis Results (%d points):\n", len(sweep1))
		fmt.Println("Sweep Values    Node Voltages        Branch Currents")
		fmt.Println("------------------------------------------------")

		for i := range sweep1 {
			fmt.Printf("X=%-9s  ", util.FormatValueFactor(sweep1[i], ""))
			for _, name := range voltageNames {
				fmt.Printf("%s=%s  ", name, util.FormatValueFactor(results[name][i], "V"))
			}
			for _, name := range currentNames {
				fmt.Printf("%s=%s  ", name, util.FormatValueFactor(results[name][i], "A"))
			}
			fmt.Println()
		}
		return
	}

	// Operating point
	fmt.Println("\nNode Voltages:")
	for _, name := range voltageNames {
		fmt.Printf("%s = %s\n", name, util.FormatValueFactor(results[name][0], "V"))
	}
	fmt.Println("\nBranch Currents:")
	for _, name := range currentNames {
		fmt.Printf("%s = %s\n", name, util.FormatValueFactor(results[name][0], "A"))
	}
}
