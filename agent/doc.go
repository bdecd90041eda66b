// Package agent implements the turn engine: the loop that takes user
// input, queries the model through the provider gateway, dispatches
// the tool calls it issues, and resubmits their results until the
// model produces a final answer.
//
// A turn is observable through the engine's event channel and durable
// through a session Store, which persists history after every tool
// round so an interrupted turn can be resumed.
package agent
