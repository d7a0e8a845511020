package service

import (
	"os"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/services/interview/domain"

	"gopkg.in/yaml.v3"
)

// DefaultScript is used when no INTERVIEW_SCRIPT file is configured
func DefaultScript() domain.Script {
	return domain.Script{
		Name:    "default",
		Role:    "general screening",
		Opening: "Hi! Thanks for joining. To start, could you tell me a little about yourself and your recent work?",
		Questions: []string{
			"What is a project you are proud of, and what was your part in it?",
			"Tell me about a time something went wrong at work. How did you handle it?",
			"Why are you interested in this role?",
		},
		Closing:   "Thank you, that is all the questions I have. We will be in touch soon.",
		PassScore: 6,
	}
}

// LoadScript reads an interview script from a YAML file
func LoadScript(path string) (domain.Script, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return domain.Script{}, perr.Wrapf(err, perr.ErrorCodeNotFound, "read interview script %s", path)
	}
	return ParseScript(b)
}

// ParseScript decodes and checks a YAML interview script
func ParseScript(b []byte) (domain.Script, error) {
	var s domain.Script
	if err := yaml.Unmarshal(b, &s); err != nil {
		return s, perr.Wrap(err, perr.ErrorCodeInvalidArgument, "decode interview script")
	}
	if s.Opening == "" {
		return s, perr.InvalidArgf("interview script %q has no opening question", s.Name)
	}
	if s.Closing == "" {
		s.Closing = DefaultScript().Closing
	}
	return s, nil
}

// ScriptFromConfig loads the configured script or falls back to DefaultScript
func ScriptFromConfig(cfg Config) (domain.Script, error) {
	if cfg.ScriptPath == "" {
		return DefaultScript(), nil
	}
	return LoadScript(cfg.ScriptPath)
}
