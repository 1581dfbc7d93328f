package core

// Route maps the current plan state to the next step identifier. It is the
// execution graph's only decision point: the head of PendingTools, or
// qa_agent as a safety default when the plan is empty (the planner's
// guarantee makes the default unreachable in practice, but a plan emptied
// early still terminates at synthesis instead of looping).
func Route(state *AgentState) string {
	if len(state.PendingTools) == 0 {
		return ToolQA
	}
	return state.PendingTools[0]
}
