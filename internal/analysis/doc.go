// Package analysis implements the inference-backed stages: analyze describes
// one item's proxy with a vision model, aggregate merges the surviving
// analyses into the planning digest, and plan-generate asks the planning
// model for a decision document.
package analysis
