// Package plan models migration plans between two process-definition
// versions and everything that produces or checks them at design time.
//
// A Plan is an ordered list of Instructions, each mapping one source activity
// id to one target activity id. Plans are built with a Builder, which can
// generate instructions automatically (identity or exhaustive matching) and
// validates the result exhaustively before returning it:
//
//	p, err := plan.NewBuilder(source, target).
//		MapEqualActivities().
//		MapActivities("A", "B").UpdateEventTrigger().
//		Build()
//
// Validation never fails fast. Every instruction is checked by every
// InstructionValidator and the findings are collected into one Report, which
// is surfaced as a single *ValidationError.
package plan
