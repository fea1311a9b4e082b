// Package harness runs UI regression suites against a notebook web app.
//
// A suite uploads fixture files into a working directory through the
// contents API, runs its tests one after another (each in a fresh browser
// session under its own timeout) and deletes the working directory at the
// end, whatever the outcome.
//
// # Suite Format
//
// Suites are YAML files:
//
//	name: notebook-run
//	tmp_path: notebook-run-test
//	fixtures:
//	  - source: notebooks/simple_notebook.ipynb
//	before_each:
//	  - open_directory: "{tmp}"
//	tests:
//	  - name: Check cell output
//	    timeout: 2m
//	    steps:
//	      - open: "{tmp}/simple_notebook.ipynb"
//	      - run_all: {}
//	      - expect_output: { cell: 5, int_equals: 4 }
//	      - capture: { name: "panel-{n}.png", soft: true }
//
// Fixture sources resolve relative to the suite file; "{tmp}" expands to
// tmp_path. Files are checked against an embedded CUE schema before they
// are decoded, so typos in action names fail at load time.
//
// # Failures
//
// Hard failures (missing element, rejected action, timeout, hard snapshot
// mismatch, hard output check) abort the test. Soft failures are collected
// on T and reported when the test ends. Setup and teardown failures are
// suite-level and returned from Runner.Run. Nothing is retried.
//
// # Usage
//
//	suite, err := harness.LoadSuite("suites/notebook-run.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := runner.Run(ctx, suite)
package harness
