package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateOllama(); err != nil {
		return err
	}
	if err := c.validateChroma(); err != nil {
		return err
	}
	if err := c.validateSeeding(); err != nil {
		return err
	}
	if err := c.validateJudge(); err != nil {
		return err
	}
	if err := c.validateVerifier(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.Database == "" {
		return errors.New("paths.database must be set")
	}
	if c.Paths.LogDir == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateOllama() error {
	if err := validateBaseURL("ollama.base_url", c.Ollama.BaseURL); err != nil {
		return err
	}
	if c.Ollama.EmbedModel == "" {
		return errors.New("ollama.embed_model must be set")
	}
	if c.Ollama.ReasonerModel == "" {
		return errors.New("ollama.reasoner_model must be set")
	}
	return nil
}

func (c *Config) validateChroma() error {
	if err := validateBaseURL("chroma.base_url", c.Chroma.BaseURL); err != nil {
		return err
	}
	if c.Chroma.ChunkCollection == "" {
		return errors.New("chroma.chunk_collection must be set")
	}
	if c.Chroma.TropeCollection == "" {
		return errors.New("chroma.trope_collection must be set")
	}
	return nil
}

func (c *Config) validateSeeding() error {
	if err := validateUnitInterval("seeding.sem_tau", c.Seeding.SemTau); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateJudge() error {
	if err := validateUnitInterval("judge.threshold", c.Judge.Threshold); err != nil {
		return err
	}
	if err := validateUnitInterval("judge.downweight_no_mention", c.Judge.DownweightNoMention); err != nil {
		return err
	}
	if err := validateUnitInterval("judge.sem_sim_threshold", c.Judge.SemSimThreshold); err != nil {
		return err
	}
	if c.Judge.RerankKeepM > c.Judge.RerankTopK {
		return fmt.Errorf("judge.rerank_keep_m (%d) must not exceed judge.rerank_top_k (%d)", c.Judge.RerankKeepM, c.Judge.RerankTopK)
	}
	return nil
}

func (c *Config) validateVerifier() error {
	if err := validateUnitInterval("verifier.span_threshold", c.Verifier.SpanThreshold); err != nil {
		return err
	}
	if err := validateUnitInterval("verifier.neg_downweight", c.Verifier.NegDownweight); err != nil {
		return err
	}
	if err := validateUnitInterval("verifier.meta_downweight", c.Verifier.MetaDownweight); err != nil {
		return err
	}
	if err := validateUnitInterval("verifier.alias_downweight", c.Verifier.AliasDownweight); err != nil {
		return err
	}
	switch c.Verifier.NegationMode {
	case NegationFlagOnly, NegationDownweight, NegationDelete:
	default:
		return fmt.Errorf("verifier.negation_mode must be one of %q, %q, %q", NegationFlagOnly, NegationDownweight, NegationDelete)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be %q or %q", "console", "json")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("logging.level must be one of debug, info, warn, error")
	}
	return nil
}

func validateBaseURL(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s must be set", field)
	}
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("%s must be a valid http(s) URL, got %q", field, value)
	}
	return nil
}

func validateUnitInterval(field string, value float64) error {
	if value < 0 || value > 1 {
		return fmt.Errorf("%s must be between 0 and 1, got %g", field, value)
	}
	return nil
}
