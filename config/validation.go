package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/moby/patternmatcher"

	"github.com/grovetools/watchd/errors"
)

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	for _, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return errors.ConfigInvalid(fmt.Sprintf("extension %q must start with '.'", ext)).
				WithDetail("field", "extensions")
		}
	}

	if _, err := patternmatcher.New(c.Ignore); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "invalid ignore pattern").
			WithDetail("field", "ignore")
	}

	switch c.Notifier {
	case NotifierAuto, NotifierFSNotify, NotifierPoll:
	default:
		return errors.ConfigInvalid(fmt.Sprintf("unknown notifier %q", c.Notifier)).
			WithDetail("field", "notifier")
	}

	if c.MaxParallel < 0 {
		return errors.ConfigInvalid("max_parallel cannot be negative").
			WithDetail("field", "max_parallel")
	}

	for field, value := range map[string]string{
		"latency":         c.Latency,
		"poll_interval":   c.PollInterval,
		"command_timeout": c.CommandTimeout,
	} {
		if err := validateDuration(field, value); err != nil {
			return err
		}
	}

	for i, rule := range c.FileTypes {
		if err := validateRule(i, rule); err != nil {
			return err
		}
	}
	return nil
}

func validateRule(index int, rule FileTypeRule) error {
	field := fmt.Sprintf("filetype_settings[%d]", index)
	if !strings.HasPrefix(rule.Extension, ".") {
		return errors.ConfigInvalid(fmt.Sprintf("%s: extension %q must start with '.'", field, rule.Extension)).
			WithDetail("field", field)
	}
	if strings.TrimSpace(rule.Command) == "" {
		return errors.ConfigInvalid(fmt.Sprintf("%s: cmd cannot be empty", field)).
			WithDetail("field", field)
	}
	if rule.Timeout != "" {
		return validateDuration(field+".timeout", rule.Timeout)
	}
	return nil
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, fmt.Sprintf("%s: invalid duration %q", field, value)).
			WithDetail("field", field)
	}
	if d < 0 {
		return errors.ConfigInvalid(fmt.Sprintf("%s cannot be negative", field)).
			WithDetail("field", field)
	}
	return nil
}
