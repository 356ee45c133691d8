// Package job defines the Job record, its lifecycle state machine, and the
// persistence contract stores must satisfy.
//
// The state machine is pure logic. Stores call [Plan] inside their atomic
// Complete update so the retry/dead-letter decision and the attempt
// increment happen exactly once, under the same atomicity guarantee as the
// state write:
//
//	Pending -> Running                 (ClaimNext)
//	Running -> Succeeded               (exit 0)
//	Running -> Pending                 (failure with budget left; backoff applied)
//	Running -> DeadLetter              (failure with budget exhausted)
//	DeadLetter -> Pending              (administrative requeue only)
//
// Any other transition is rejected with forq.ErrInvalidTransition.
package job
