package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rohankatakam/reqtaker/internal/agent"
)

const plannerSystemPrompt = "You are the Task Execution Planner. You write concise, " +
	"step-by-step plans that help each member of a crew complete their task. " +
	"Respond with JSON only."

type taskPlan struct {
	Task string `json:"task"`
	Plan string `json:"plan"`
}

type planResponse struct {
	Plans []taskPlan `json:"plans"`
}

// plan asks the planner for a step-by-step plan per task. A planning
// failure is logged and the crew runs without plans.
func (c *Crew) plan(ctx context.Context, tasks []agent.TaskSpec) map[string]string {
	raw, err := c.llm.CompleteJSON(ctx, plannerSystemPrompt, planningPrompt(tasks))
	if err != nil {
		c.logger.Warn("planning failed, continuing without plans", "error", err)
		return nil
	}
	plans, err := parsePlans(raw)
	if err != nil {
		c.logger.Warn("planner returned an unusable plan", "error", err)
		return nil
	}
	c.logger.Info("crew plan ready", "tasks", len(plans))
	return plans
}

func planningPrompt(tasks []agent.TaskSpec) string {
	var sb strings.Builder
	sb.WriteString("Create a plan for each of the following tasks, which the crew runs in order.\n")
	for i, t := range tasks {
		fmt.Fprintf(&sb, "\nTask %d: %s\nAgent: %s\nDescription: %s\nExpected output: %s\n",
			i+1, t.Name, t.Agent, strings.TrimSpace(t.Description), strings.TrimSpace(t.ExpectedOutput))
	}
	sb.WriteString("\nReturn a JSON object of the form " +
		`{"plans": [{"task": "<task name>", "plan": "<numbered steps>"}]}` +
		" with one entry per task, using the task names exactly as given.")
	return sb.String()
}

func parsePlans(raw string) (map[string]string, error) {
	var resp planResponse
	if err := json.Unmarshal([]byte(stripFences(raw)), &resp); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	plans := make(map[string]string, len(resp.Plans))
	for _, p := range resp.Plans {
		if p.Task != "" && strings.TrimSpace(p.Plan) != "" {
			plans[p.Task] = strings.TrimSpace(p.Plan)
		}
	}
	if len(plans) == 0 {
		return nil, fmt.Errorf("plan has no entries")
	}
	return plans, nil
}

// stripFences removes a ```json ... ``` wrapper some models add even in
// JSON mode.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
