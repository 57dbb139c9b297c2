// Package harness runs migration scenarios end to end.
//
// A scenario is a YAML file naming CUE process definitions, running
// instances as runtime fixtures, a migration plan and the expected outcome:
//
//	name: rename_task
//	description: a user task moves to its renamed successor
//	definitions: [claims]
//	instances:
//	  - process_instance: pi-1
//	    definition: claim:1
//	    executions:
//	      - {id: pi-1, activity: claim, activity_instance: pi-1, scope: true}
//	      - {id: e-1, parent: pi-1, activity: review, activity_instance: ai-1, active: true}
//	plan:
//	  source: claim:1
//	  target: claim:2
//	  instructions:
//	    - {source: review, target: check}
//	migrate:
//	  expect: {outcome: migrated}
//	assertions:
//	  - type: activity_tree
//	    instance: pi-1
//	    tree: |
//	      claim (pi-1)
//	        check (ai-1)
//
// Run deploys everything into a fresh in-memory store and migrates through
// the batch driver, exactly as the CLI does. Generated ids and timestamps
// are deterministic, so Render output can be compared against golden files
// with RunWithGolden.
package harness
