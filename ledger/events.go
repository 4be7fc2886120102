package ledger

// EventType enumerates the closed set of ledger entry types the runtime may
// append. No other type value may be appended; Ledger.Append panics on an
// unrecognized type to catch programmer error early, the way a closed enum
// would in a statically checked DSL.
type EventType string

const (
	PlanSelected        EventType = "PLAN_SELECTED"
	GuardEval           EventType = "GUARD_EVAL"
	TaskStart           EventType = "TASK_START"
	TaskRetry           EventType = "TASK_RETRY"
	TaskEnd             EventType = "TASK_END"
	PolicyPre           EventType = "POLICY_PRE"
	PolicyPost          EventType = "POLICY_POST"
	Verification        EventType = "VERIFICATION"
	NucleusInference    EventType = "NUCLEUS_INFERENCE"
	ContextInternalized EventType = "CONTEXT_INTERNALIZED"
	ErrorEvent          EventType = "ERROR"
	CheckpointWritten   EventType = "CHECKPOINT_WRITTEN"
	TaskResumed         EventType = "TASK_RESUMED"
)

var knownTypes = map[EventType]bool{
	PlanSelected: true, GuardEval: true, TaskStart: true, TaskRetry: true,
	TaskEnd: true, PolicyPre: true, PolicyPost: true, Verification: true,
	NucleusInference: true, ContextInternalized: true, ErrorEvent: true,
	CheckpointWritten: true, TaskResumed: true,
}

// IsKnown reports whether t belongs to the closed event-type taxonomy.
func IsKnown(t EventType) bool { return knownTypes[t] }
