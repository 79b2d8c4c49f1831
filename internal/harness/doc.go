// Package harness runs conversion scenarios described in YAML.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	workspace: ../workspaces/simple.json
//	patch: ../workspaces/patchset.json   # optional
//	patch_name: mass_200                  # or patch_index: 1
//	measurement: meas                     # optional, first by default
//	plain: true                           # omit provenance comments
//	golden: true                          # compare cards with testdata/golden
//	expect:
//	  error: E220                         # conversion must fail with this code
//	  warnings: [W103]
//	  parameters:
//	    sampled: [mu]
//	    fixed: []
//	    "null": []
//	  data_keys: [...]
//	  init_keys: [...]
//	assertions:
//	  - type: program_contains
//	    text: "mu ~ normal(0, 1);"
//
// Paths are relative to the scenario file.
//
// # Assertion Types
//
//   - program_contains: the program text contains text
//   - program_excludes: the program text does not contain text
//   - program_count: text occurs exactly count times
//   - program_order: the lines appear in the given order
//   - data_value: the data card value under key equals value
//   - init_value: the init card value under key equals value
//
// Every successful conversion is also checked for declaration order and
// card agreement.
//
// # Usage
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/simple.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := harness.Run(scenario)
//	if !result.Pass {
//	    for _, err := range result.Errors {
//	        log.Println(err)
//	    }
//	}
package harness
