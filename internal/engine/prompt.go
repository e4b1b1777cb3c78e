package engine

import (
	"fmt"
	"strings"

	"github.com/novahire/novahire/internal/interview"
	"github.com/novahire/novahire/internal/jobs"
	"github.com/novahire/novahire/internal/progression"
)

const baseInstructions = `You are a senior technical interviewer conducting a live interview.
Ask exactly one question at a time and wait for the candidate's answer.
Keep questions concise and conversational. Probe follow-ups when an answer
is shallow, and move on when a topic is exhausted. Never reveal scoring.`

// roleTemplates are the role-specific interviewer briefs. Keys line up with
// interview.RoleType values; fullstack deliberately reuses the javascript
// template because fullstack interviews lead with the frontend stack.
var roleTemplates = map[interview.RoleType]string{
	interview.RoleGolang: `Focus on golang: goroutines and channels, the scheduler,
interfaces, error handling, the garbage collector and profiling. Work toward
concurrent systems design at higher difficulty.`,
	interview.RoleJavaScript: `Focus on javascript: the event loop, closures, promises
and async/await, prototypes and modern framework patterns. Work toward
application architecture at higher difficulty.`,
	interview.RolePython: `Focus on python: iterators and generators, the GIL, typing,
data structures and common standard library idioms. Work toward system design
with Python services at higher difficulty.`,
}

var difficultyHints = map[progression.Level]string{
	progression.LevelWarmup:   "Current difficulty: warmup. Ask approachable questions that build confidence.",
	progression.LevelStandard: "Current difficulty: standard. Ask questions expected of a working professional.",
	progression.LevelAdvanced: "Current difficulty: advanced. Ask deep questions about internals, tradeoffs and design.",
}

// roleTopics are the skill topics each template surfaces, used to attribute
// skill boundary observations to the questions that probe them.
var roleTopics = map[interview.RoleType][]string{
	interview.RoleGolang:     {"goroutines", "channels", "interfaces", "scheduler", "garbage collector", "error handling", "context"},
	interview.RoleJavaScript: {"event loop", "closures", "promises", "async", "prototypes", "frameworks"},
	interview.RolePython:     {"generators", "gil", "typing", "data structures", "decorators"},
}

// templateRole resolves the template key for a role, applying the fullstack
// fallback.
func templateRole(role interview.RoleType) interview.RoleType {
	if role == interview.RoleFullstack {
		return interview.RoleJavaScript
	}
	if _, ok := roleTemplates[role]; ok {
		return role
	}
	return interview.RoleJavaScript
}

// buildSystemPrompt concatenates the base instructions, the role template,
// the current difficulty hint and, when a posting is attached, a job context
// block instructing the interviewer to tailor questions to it.
func buildSystemPrompt(role interview.RoleType, level progression.Level, posting *jobs.Posting) string {
	var b strings.Builder
	b.WriteString(baseInstructions)
	b.WriteString("\n\n")
	b.WriteString(roleTemplates[templateRole(role)])
	b.WriteString("\n\n")
	b.WriteString(difficultyHints[level])

	if posting != nil {
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "This interview is for the position %q at %s.", posting.Title, posting.Company)
		if len(posting.RequiredSkills) > 0 {
			fmt.Fprintf(&b, " Required skills: %s.", strings.Join(posting.RequiredSkills, ", "))
		}
		b.WriteString(" Tailor your questions to this role and its required skills.")
	}

	return b.String()
}

// topicsInQuestion returns the skill topics a question surfaced: role topics
// plus the posting's required skills, matched case-insensitively against the
// question text.
func topicsInQuestion(question string, role interview.RoleType, posting *jobs.Posting) []string {
	lowered := strings.ToLower(question)

	var topics []string
	seen := make(map[string]bool)
	add := func(topic string) {
		key := strings.ToLower(strings.TrimSpace(topic))
		if key == "" || seen[key] {
			return
		}
		if strings.Contains(lowered, key) {
			seen[key] = true
			topics = append(topics, key)
		}
	}

	for _, t := range roleTopics[templateRole(role)] {
		add(t)
	}
	if posting != nil {
		for _, s := range posting.RequiredSkills {
			add(s)
		}
	}
	return topics
}
