// Package validate compares a generated program against an independent
// evaluator of the same workspace.
//
// Two checks are made. The parameter check compares the names the built
// program samples with those the IR classifies as sampled, and the
// evaluator's parameter sizes with the IR's. The target check perturbs the
// init card twice and requires the change in log density between the two
// points to agree between program and evaluator within a tolerance.
package validate
