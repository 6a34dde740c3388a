// Package prompts holds the user-facing text and model prompt templates.
// Templates come from an optional YAML file; keys missing from the file keep
// their built-in defaults.
package prompts

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dwizi/einstein/internal/threadctx"
)

const (
	defaultSystem = "You are Einstein, a friendly and knowledgeable assistant in a Discord server. " +
		"Answer accurately and concisely. Use the earlier conversation when it is relevant to the question."

	defaultQuestion = `{{- if .History -}}
Earlier messages in this reply thread, oldest first:
{{range .History}}{{.Author}}: {{.Text}}
{{end}}
{{end -}}
Question: {{.Prompt}}`

	defaultSummarize = `{{- if .Prompt -}}
Summarize the following text in a few short bullet points.

{{.Prompt}}
{{- else -}}
Summarize these recent channel messages, oldest first, in a few short bullet points:
{{range .History}}{{.Author}}: {{.Text}}
{{end}}
{{- end}}`

	defaultFactCheck = `Fact check the following statement. Say whether it is true, false or misleading and briefly explain why.

Statement: {{.Prompt}}`

	defaultFactCheckHistory = `Fact check the factual claims in these recent channel messages, oldest first.
For each questionable claim name its author, say whether it is true, false or misleading and briefly explain why.
If there are no factual claims, say so.
{{range .History}}{{.Author}}: {{.Text}}
{{end}}`

	defaultEmptyPrompt  = "Please provide a question after mentioning me."
	defaultEmptyCommand = "Please provide some text for the {{.Command}} command."
	defaultCooldown     = `Please wait {{printf "%.1f" .Seconds}} seconds before using this command again.`
	defaultError        = "Error: {{.Error}}"

	defaultHelp = "**Einstein commands**\n" +
		"• Mention me with a question, e.g. `@Einstein what is gravity?`\n" +
		"• Reply to a message and mention me to include the thread as context\n" +
		"• `/einstein question:` asks me directly\n" +
		"• `/summarize` summarizes the given text, or the recent messages in this channel\n" +
		"• `/factcheck statement:` checks one statement\n" +
		"• `/factcheckhistory` checks the claims in the recent messages in this channel\n" +
		"• `/sync` refreshes the slash commands (server managers only)\n" +
		"• `/help` shows this message"

	defaultWelcome = "👋 Hello! I'm Einstein! I'm here to help with various tasks including:\n" +
		"• Answering questions (just mention me)\n" +
		"• Summarizing text\n" +
		"• Fact checking\n" +
		"• And more!\n\n" +
		"Use `/help` to see all available commands!"
)

// Model prompt template names accepted by Render.
const (
	TemplateQuestion         = "question"
	TemplateSummarize        = "summarize"
	TemplateFactCheck        = "factcheck"
	TemplateFactCheckHistory = "factcheck_history"
)

type Set struct {
	System           string `yaml:"system"`
	Question         string `yaml:"question"`
	Summarize        string `yaml:"summarize"`
	FactCheck        string `yaml:"factcheck"`
	FactCheckHistory string `yaml:"factcheck_history"`
	EmptyPrompt      string `yaml:"empty_prompt"`
	EmptyCommand     string `yaml:"empty_command"`
	Cooldown         string `yaml:"cooldown"`
	Error            string `yaml:"error"`
	Help             string `yaml:"help"`
	Welcome          string `yaml:"welcome"`

	models       map[string]*template.Template
	emptyCommand *template.Template
	cooldown     *template.Template
	errorMsg     *template.Template
}

func Defaults() Set {
	set := Set{
		System:           defaultSystem,
		Question:         defaultQuestion,
		Summarize:        defaultSummarize,
		FactCheck:        defaultFactCheck,
		FactCheckHistory: defaultFactCheckHistory,
		EmptyPrompt:      defaultEmptyPrompt,
		EmptyCommand:     defaultEmptyCommand,
		Cooldown:         defaultCooldown,
		Error:            defaultError,
		Help:             defaultHelp,
		Welcome:          defaultWelcome,
	}
	if err := set.compile(); err != nil {
		panic(fmt.Sprintf("compile default prompts: %v", err))
	}
	return set
}

// Load reads path and overlays its values on the defaults. An empty path
// returns the defaults.
func Load(path string) (Set, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Set{}, fmt.Errorf("read prompts file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (Set, error) {
	var overrides Set
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return Set{}, fmt.Errorf("decode prompts yaml: %w", err)
	}
	set := Defaults()
	overlay(&set.System, overrides.System)
	overlay(&set.Question, overrides.Question)
	overlay(&set.Summarize, overrides.Summarize)
	overlay(&set.FactCheck, overrides.FactCheck)
	overlay(&set.FactCheckHistory, overrides.FactCheckHistory)
	overlay(&set.EmptyPrompt, overrides.EmptyPrompt)
	overlay(&set.EmptyCommand, overrides.EmptyCommand)
	overlay(&set.Cooldown, overrides.Cooldown)
	overlay(&set.Error, overrides.Error)
	overlay(&set.Help, overrides.Help)
	overlay(&set.Welcome, overrides.Welcome)
	if err := set.compile(); err != nil {
		return Set{}, err
	}
	return set, nil
}

func overlay(target *string, value string) {
	if strings.TrimSpace(value) != "" {
		*target = value
	}
}

func (s *Set) compile() error {
	s.models = map[string]*template.Template{}
	for name, body := range map[string]string{
		TemplateQuestion:         s.Question,
		TemplateSummarize:        s.Summarize,
		TemplateFactCheck:        s.FactCheck,
		TemplateFactCheckHistory: s.FactCheckHistory,
	} {
		tmpl, err := template.New(name).Parse(body)
		if err != nil {
			return fmt.Errorf("parse %s template: %w", name, err)
		}
		s.models[name] = tmpl
	}
	var err error
	if s.emptyCommand, err = template.New("empty_command").Parse(s.EmptyCommand); err != nil {
		return fmt.Errorf("parse empty_command template: %w", err)
	}
	if s.cooldown, err = template.New("cooldown").Parse(s.Cooldown); err != nil {
		return fmt.Errorf("parse cooldown template: %w", err)
	}
	if s.errorMsg, err = template.New("error").Parse(s.Error); err != nil {
		return fmt.Errorf("parse error template: %w", err)
	}
	return nil
}

// Render fills the named model prompt. An empty name selects the question
// template.
func (s Set) Render(name, prompt string, history []threadctx.Entry) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = TemplateQuestion
	}
	tmpl, ok := s.models[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt template %q", name)
	}
	return execute(tmpl, map[string]any{
		"Prompt":  strings.TrimSpace(prompt),
		"History": history,
	})
}

func (s Set) RenderEmptyCommand(command string) (string, error) {
	return execute(s.emptyCommand, map[string]any{"Command": strings.TrimSpace(command)})
}

func (s Set) RenderCooldown(remaining time.Duration) (string, error) {
	return execute(s.cooldown, map[string]any{"Seconds": remaining.Seconds()})
}

func (s Set) RenderError(err error) (string, error) {
	message := "unknown error"
	if err != nil {
		message = err.Error()
	}
	return execute(s.errorMsg, map[string]any{"Error": message})
}

func execute(tmpl *template.Template, data any) (string, error) {
	if tmpl == nil {
		return "", fmt.Errorf("prompt template not compiled")
	}
	var buffer bytes.Buffer
	if err := tmpl.Execute(&buffer, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buffer.String()), nil
}
