package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration against the struct tags plus the
// cross-field rules the tags cannot express. All violations are
// reported at once.
func Validate(cfg *Config) error {
	var problems []string

	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, describeFieldError(fe))
		}
	}

	// Credentials travel together: a URL without both halves fails hard
	// instead of surfacing later as a confusing 401.
	if cfg.Server.URL != "" && (cfg.Server.Username == "" || cfg.Server.Password == "") {
		problems = append(problems,
			"server.url is set but username and password are not both present (BAM_USERNAME / BAM_PASSWORD)")
	}

	if cfg.Execution.MinConcurrency > cfg.Execution.MaxConcurrency {
		problems = append(problems, fmt.Sprintf(
			"execution.min_concurrency (%d) exceeds execution.max_concurrency (%d)",
			cfg.Execution.MinConcurrency, cfg.Execution.MaxConcurrency))
	}
	if cfg.Execution.InitialConcurrency > cfg.Execution.MaxConcurrency {
		problems = append(problems, fmt.Sprintf(
			"execution.initial_concurrency (%d) exceeds execution.max_concurrency (%d)",
			cfg.Execution.InitialConcurrency, cfg.Execution.MaxConcurrency))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}

// describeFieldError renders one validator violation as a readable
// sentence keyed by the config path.
func describeFieldError(fe validator.FieldError) string {
	path := configPath(fe.Namespace())
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", path)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", path, strings.ReplaceAll(fe.Param(), " ", ", "))
	case "url":
		return fmt.Sprintf("%s must be a valid URL", path)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", path, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", path, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", path, fe.Param())
	}
	return fmt.Sprintf("%s failed %s validation", path, fe.Tag())
}

// configPath turns validator's struct namespace (Config.Server.URL)
// into the config file path (server.url).
func configPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = camelToSnake(p)
	}
	return strings.Join(parts, ".")
}

func camelToSnake(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			// Runs of capitals (URL, TTL, SSL) stay one word.
			if i > 0 && !(s[i-1] >= 'A' && s[i-1] <= 'Z') {
				b.WriteByte('_')
			}
			b.WriteRune(r + ('a' - 'A'))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
