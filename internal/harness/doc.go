// Package harness runs BRP conformance scenarios.
//
// A scenario drives a real engine: requests are queued on sessions, the
// engine ticks, and responses are matched against expectations. Every
// exchange is journaled to an in-memory store, which the assertions and
// golden transcripts read back.
//
// # Scenario Format
//
//	name: insert_then_query
//	description: "Inserted components are visible to queries"
//	world: demo          # demo (default) or empty
//	schema: arena.cue    # optional, relative to the scenario file
//	sessions:
//	  - label: client
//	    format: json
//	steps:
//	  - request: InsertComponent
//	    params: {entity: 1, components: {Name: {JSON: '"hero"'}}}
//	    expect: {response: OK}
//	  - request: PollEntities
//	    params: {data: {components: [Name]}, watermark: 42}
//	    ticks: 2
//	    expect: {pending: true}
//	  - open: {label: second, format: ron}
//	  - close: second
//	assertions:
//	  - type: trace_count
//	    request: InsertComponent
//	    count: 1
//
// Steps without an id use their 1-based index. Each step runs one engine
// tick unless ticks says otherwise.
//
// # Assertion Types
//
//   - trace_contains: a journaled request of the kind, with matching params
//   - trace_order: request kinds answered in the given order
//   - trace_count: a request kind answered exactly N times
//   - final_state: a journal table row matching where has the expected columns
//   - entity_count: the world holds exactly N entities at the end
//
// # Deterministic Testing
//
// Sequence numbers come from the dispatcher, ticks from the engine clock,
// and durations are pinned to zero, so transcripts are identical across
// runs and can be compared with golden files.
package harness
