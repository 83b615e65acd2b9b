// Package agents is the root of the payroll-agents module, a multi-agent
// orchestrator that answers payroll questions.
//
// A query is scored against a catalog of agents (tax, compliance, research,
// data and general reasoning). The relevant agents answer in parallel and
// their answers are merged into one response with per-agent provenance.
//
// The work happens in subpackages:
//
//	agent/catalog     agent types, prompts and model settings
//	agent/core        one agent unit with its conversation history
//	agent/relevance   query analysis and agent selection
//	agent/aggregate   merging agent answers
//	agent/supervisor  the orchestrator tying the above together
//	server/http       the JSON API
//	memory/...        conversation stores (memory, sqlite, badger, redis)
//	cmd/payrollctl    the command-line entry point
package agents
