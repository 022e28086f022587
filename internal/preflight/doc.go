// Package preflight provides readiness checks for the filesystem paths,
// media binaries and inference endpoints clipforge depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failure so an
//     operator sees a broken install before the first job fails.
//   - The CLI "clipforge health" command renders the same results.
//
// Checks never return errors; a failed check is a Result with Passed=false
// and a Detail that names the problem.
package preflight
