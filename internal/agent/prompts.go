package agent

import (
	"strings"
)

// TaskContext is the output of an earlier task passed to a later one.
type TaskContext struct {
	TaskName string
	Output   string
}

// SystemPrompt renders an agent's persona plus any trained guidance and
// remembered notes.
func SystemPrompt(a AgentSpec, suggestions, memories []string) string {
	var sb strings.Builder
	sb.WriteString("You are " + strings.TrimSpace(a.Role) + ".\n")
	sb.WriteString(strings.TrimSpace(a.Backstory) + "\n\n")
	sb.WriteString("Your personal goal is: " + strings.TrimSpace(a.Goal) + "\n")

	if len(suggestions) > 0 {
		sb.WriteString("\nGuidance from previous reviews of your work (follow it):\n")
		for _, s := range suggestions {
			sb.WriteString("- " + s + "\n")
		}
	}
	if len(memories) > 0 {
		sb.WriteString("\nNotes from earlier runs that may be relevant:\n")
		for _, m := range memories {
			sb.WriteString("- " + m + "\n")
		}
	}
	return sb.String()
}

// TaskPrompt renders the task with its expected output, the crew plan for
// it and the outputs of its context tasks.
func TaskPrompt(t TaskSpec, prior []TaskContext, plan string) string {
	var sb strings.Builder
	sb.WriteString("Current Task: " + strings.TrimSpace(t.Description) + "\n\n")
	sb.WriteString("This is the expected criteria for your final answer: " + strings.TrimSpace(t.ExpectedOutput) + "\n")
	sb.WriteString("You MUST return the actual complete content as the final answer, not a summary.\n")

	if plan = strings.TrimSpace(plan); plan != "" {
		sb.WriteString("\nPlan for this task:\n" + plan + "\n")
	}

	if len(prior) > 0 {
		sb.WriteString("\nThis is the context you're working with:\n")
		for _, c := range prior {
			sb.WriteString("\n### Output of " + c.TaskName + "\n")
			sb.WriteString(c.Output + "\n")
		}
	}

	sb.WriteString("\nBegin! Use the tools available if you need them and give your best final answer.")
	return sb.String()
}
