package skills

import (
	"bytes"
	"fmt"
)

// BuildAugmentedPrompt implements step 5 of the agent factory's composition
// algorithm: it describes every selected skill's callable scripts,
// parameters, return value, required environment variables, and a worked
// example, then concatenates that section after basePrompt. A thin
// convenience wrapper over PromptBuilder for callers that only need a
// skills section and nothing else.
func BuildAugmentedPrompt(basePrompt string, selected []*Skill) string {
	return NewPromptBuilder(basePrompt).WithSkills(selected).Build()
}

func buildSkillsSection(selected []*Skill) string {
	if len(selected) == 0 {
		return ""
	}

	var buf bytes.Buffer
	buf.WriteString("You have access to the following skills. Each skill exposes zero or more\n")
	buf.WriteString("callable scripts reachable as tool calls named `skill__<skill_id>__<script_name>`. Read\n")
	buf.WriteString("a skill's parameters and worked example before calling it.\n")
	buf.WriteString("\n<skills>\n")

	for _, s := range selected {
		buf.WriteString("  <skill>\n")
		fmt.Fprintf(&buf, "    <id>%s</id>\n", s.ID())
		fmt.Fprintf(&buf, "    <name>%s</name>\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(&buf, "    <description>%s</description>\n", s.Description)
		}
		if len(s.Scripts) == 0 {
			buf.WriteString("    <note>reference-only: no callable scripts, read the skill file for instructions</note>\n")
		}
		for _, script := range s.Scripts {
			writeScript(&buf, s.ID(), script)
		}
		buf.WriteString("  </skill>\n")
	}

	buf.WriteString("</skills>")
	return buf.String()
}

func writeScript(buf *bytes.Buffer, skillID string, script Script) {
	buf.WriteString("    <script>\n")
	fmt.Fprintf(buf, "      <call_as>skill__%s__%s</call_as>\n", skillID, script.Name)
	if script.Description != "" {
		fmt.Fprintf(buf, "      <description>%s</description>\n", script.Description)
	}
	if len(script.Parameters) > 0 {
		buf.WriteString("      <parameters>\n")
		for _, p := range script.Parameters {
			required := ""
			if p.Required {
				required = " required"
			}
			fmt.Fprintf(buf, "        <param name=%q type=%q%s>%s</param>\n", p.Name, p.Type, required, p.Description)
		}
		buf.WriteString("      </parameters>\n")
	}
	if script.Returns != "" {
		fmt.Fprintf(buf, "      <returns>%s</returns>\n", script.Returns)
	}
	if len(script.EnvVars) > 0 {
		buf.WriteString("      <env_vars>\n")
		for _, v := range script.EnvVars {
			fmt.Fprintf(buf, "        <var>%s</var>\n", v)
		}
		buf.WriteString("      </env_vars>\n")
	}
	if script.Example != "" {
		fmt.Fprintf(buf, "      <example>\n%s\n      </example>\n", script.Example)
	}
	buf.WriteString("    </script>\n")
}
