package models

import (
	"net/url"
)

// HandlerType discriminates the handler descriptor variants.
type HandlerType string

const (
	HandlerBash    HandlerType = "bash"
	HandlerWebhook HandlerType = "webhook"
	HandlerAgent   HandlerType = "agent"
)

// IsValid checks if the handler type is recognized.
func (t HandlerType) IsValid() bool {
	return t == HandlerBash || t == HandlerWebhook || t == HandlerAgent
}

// HandlerTypes lists all supported handler variants.
func HandlerTypes() []HandlerType {
	return []HandlerType{HandlerBash, HandlerWebhook, HandlerAgent}
}

// InputMode selects how a bash handler receives the delivery payload.
type InputMode string

const (
	// InputModeStdin pipes the payload as JSON on standard input (default).
	InputModeStdin InputMode = "stdin"
	// InputModeArgv appends the payload as a final JSON argument.
	InputModeArgv InputMode = "argv"
	// InputModeNone runs the command without the payload.
	InputModeNone InputMode = "none"
)

// IsValid checks if the input mode is recognized.
func (m InputMode) IsValid() bool {
	return m == InputModeStdin || m == InputModeArgv || m == InputModeNone
}

// BashHandler runs a local command per delivery.
type BashHandler struct {
	Command        string            `json:"command"`
	Args           []string          `json:"args,omitempty"`
	Cwd            string            `json:"cwd,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	InputMode      InputMode         `json:"input_mode,omitempty"` // default stdin
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// Mode returns the effective input mode.
func (b *BashHandler) Mode() InputMode {
	if b.InputMode == "" {
		return InputModeStdin
	}
	return b.InputMode
}

// WebhookHandler POSTs the delivery payload to a URL.
type WebhookHandler struct {
	URL            string            `json:"url"`
	Headers        map[string]string `json:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
}

// AgentHandler forwards the delivery payload to an LLM agent.
type AgentHandler struct {
	Model        string   `json:"model"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	Tools        []string `json:"tools,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

// HandlerSpec is a tagged union over the three handler variants. The hub
// stores it opaquely and passes it to the configured effect sink on delivery;
// it never executes commands, calls URLs, or talks to models itself.
type HandlerSpec struct {
	Type    HandlerType     `json:"type"`
	Bash    *BashHandler    `json:"bash,omitempty"`
	Webhook *WebhookHandler `json:"webhook,omitempty"`
	Agent   *AgentHandler   `json:"agent,omitempty"`
}

// Validate checks the discriminator and that exactly the matching variant is
// populated.
func (h *HandlerSpec) Validate() error {
	if !h.Type.IsValid() {
		return NewValidationError("handler.type", "unknown handler type: "+string(h.Type))
	}
	set := 0
	if h.Bash != nil {
		set++
	}
	if h.Webhook != nil {
		set++
	}
	if h.Agent != nil {
		set++
	}
	if set != 1 {
		return NewValidationError("handler", "exactly one handler variant must be set")
	}
	switch h.Type {
	case HandlerBash:
		if h.Bash == nil {
			return NewValidationError("handler.bash", "bash config is required for type bash")
		}
		if h.Bash.Command == "" {
			return NewValidationError("handler.bash.command", "command is required")
		}
		if h.Bash.InputMode != "" && !h.Bash.InputMode.IsValid() {
			return NewValidationError("handler.bash.input_mode", "unknown input mode: "+string(h.Bash.InputMode))
		}
		if h.Bash.TimeoutSeconds < 0 {
			return NewValidationError("handler.bash.timeout_seconds", "must be positive")
		}
	case HandlerWebhook:
		if h.Webhook == nil {
			return NewValidationError("handler.webhook", "webhook config is required for type webhook")
		}
		u, err := url.Parse(h.Webhook.URL)
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return NewValidationError("handler.webhook.url", "url must be a valid http(s) URL")
		}
		if h.Webhook.TimeoutSeconds < 0 {
			return NewValidationError("handler.webhook.timeout_seconds", "must be positive")
		}
	case HandlerAgent:
		if h.Agent == nil {
			return NewValidationError("handler.agent", "agent config is required for type agent")
		}
		if h.Agent.Model == "" {
			return NewValidationError("handler.agent.model", "model is required")
		}
		if h.Agent.MaxTokens < 0 {
			return NewValidationError("handler.agent.max_tokens", "must be positive")
		}
	}
	return nil
}

// Clone returns a deep copy.
func (h *HandlerSpec) Clone() *HandlerSpec {
	if h == nil {
		return nil
	}
	out := &HandlerSpec{Type: h.Type}
	if h.Bash != nil {
		b := *h.Bash
		b.Args = append([]string(nil), h.Bash.Args...)
		if h.Bash.Env != nil {
			b.Env = make(map[string]string, len(h.Bash.Env))
			for k, v := range h.Bash.Env {
				b.Env[k] = v
			}
		}
		out.Bash = &b
	}
	if h.Webhook != nil {
		w := *h.Webhook
		if h.Webhook.Headers != nil {
			w.Headers = make(map[string]string, len(h.Webhook.Headers))
			for k, v := range h.Webhook.Headers {
				w.Headers[k] = v
			}
		}
		out.Webhook = &w
	}
	if h.Agent != nil {
		a := *h.Agent
		a.Tools = append([]string(nil), h.Agent.Tools...)
		out.Agent = &a
	}
	return out
}
