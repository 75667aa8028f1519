package validator

import (
	"go.uber.org/zap"

	"github.com/isdmx/execbox/config"
)

// Validator applies the pre-execution checks to submitted code.
type Validator struct {
	language     string
	maxCodeBytes int
	patterns     *PatternSet
}

// Option configures a Validator.
type Option func(*Validator)

// WithPatterns replaces the denied pattern set.
func WithPatterns(patterns *PatternSet) Option {
	return func(v *Validator) {
		v.patterns = patterns
	}
}

// WithMaxCodeBytes sets the maximum accepted source size. Zero disables the check.
func WithMaxCodeBytes(n int) Option {
	return func(v *Validator) {
		v.maxCodeBytes = n
	}
}

// WithLanguage sets the only accepted language tag.
func WithLanguage(language string) Option {
	return func(v *Validator) {
		v.language = language
	}
}

// NewValidator creates a Validator accepting javascript with the default pattern set.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{language: "javascript"}
	for _, opt := range opts {
		opt(v)
	}
	if v.patterns == nil {
		// defaults are validated by config tests
		v.patterns, _ = NewPatternSet(config.DefaultDeniedPatterns)
	}
	return v
}

// New builds the Validator described by the policy section of cfg. Patterns
// from policy.patterns_file are appended after the configured lists.
func New(cfg *config.Config, logger *zap.Logger) (*Validator, error) {
	defs := [][]config.PatternConfig{cfg.Policy.DeniedPatterns, cfg.Policy.ExtraDeniedPatterns}

	if cfg.Policy.PatternsFile != "" {
		extra, err := LoadPatternFile(cfg.Policy.PatternsFile)
		if err != nil {
			return nil, err
		}
		defs = append(defs, extra)
	}

	patterns, err := NewPatternSet(defs...)
	if err != nil {
		return nil, err
	}

	logger.Info("source policy loaded",
		zap.String("language", cfg.Policy.Language),
		zap.Int("denied_patterns", patterns.Len()),
		zap.Int("max_code_bytes", cfg.Sandbox.MaxCodeBytes),
		zap.String("patterns_file", cfg.Policy.PatternsFile),
	)
	logger.Debug("denied patterns", zap.Strings("names", patterns.Names()))

	return NewValidator(
		WithLanguage(cfg.Policy.Language),
		WithMaxCodeBytes(cfg.Sandbox.MaxCodeBytes),
		WithPatterns(patterns),
	), nil
}

// Validate returns nil when code may be executed, or a *Rejection otherwise.
// A nil or empty language means the client did not specify one.
func (v *Validator) Validate(code string, language *string) error {
	if code == "" {
		return &Rejection{Reason: ReasonMissingCode}
	}

	if language != nil && *language != "" && *language != v.language {
		return &Rejection{Reason: ReasonUnsupportedLanguage}
	}

	if v.maxCodeBytes > 0 && len(code) > v.maxCodeBytes {
		return &Rejection{Reason: ReasonCodeTooLarge}
	}

	if rule, matched := v.patterns.Match(code); matched {
		return &Rejection{Reason: ReasonRestrictedOperation, Rule: rule}
	}

	return nil
}
