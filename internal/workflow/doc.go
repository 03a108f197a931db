// Package workflow orchestrates the spreadsheet-to-SQL import: two input
// files, an optional pre-validation, SQL generation, and the artifact
// download.
//
// # State
//
// All entities live in one [State] aggregate and change only through the
// reducer in state.go, so the clearing rules are enforced in one place:
//
//   - selecting a valid file clears the error, the validation report and
//     the generation result
//   - starting any operation clears the error
//   - starting a generation clears the previous result
//   - a validation result clears the generation result
//   - a generation result carrying an embedded validation report replaces
//     the current report
//
// The visible mode is never stored. [Interpret] derives it from State.
//
// # Operations
//
// [Workflow.StartValidate], [Workflow.StartGenerate] and
// [Workflow.StartDownload] each dispatch one request and return a [Task].
// A kind already in flight rejects a new call with [ErrBusy]; different
// kinds may overlap. Every task carries a token taken at dispatch. When it
// resolves, its response is applied only if the token is still the latest
// for its kind and no file was replaced in between; otherwise the task
// resolves as [OutcomeSuperseded] and the state is left alone.
//
// # Errors
//
// Local problems are [InputError]s and never reach the network. Network
// and non-2xx failures become [TransportError]s whose message is the
// server's detail verbatim, or a fixed fallback. Validation findings in a
// 2xx response are data, carried in [ValidationReport]. [MapError] turns
// any of these into a [UserMessage] with a support code.
package workflow
