// Package preflight provides readiness checks for the collaborators and
// filesystem paths the pipeline depends on.
//
// These checks run in two contexts:
//   - "vigil run" calls RunAll before entering the frame loop and aborts with
//     the per-check report when any check fails.
//   - "vigil validate" renders the same results as a table without starting
//     the pipeline.
//
// Optional collaborators (the describer) report a passing "disabled" result
// when switched off.
package preflight
