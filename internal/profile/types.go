package profile

import (
	"errors"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// SiteConfig is everything a batch run needs to know about one WordPress
// site and the generation settings used for it.
type SiteConfig struct {
	SiteURL           string   `json:"site_url" yaml:"site_url"`
	Username          string   `json:"username" yaml:"username"`
	AppPassword       string   `json:"app_password" yaml:"app_password"`
	APIKeys           []string `json:"api_keys" yaml:"api_keys"`
	CurrentKeyIndex   int      `json:"current_key_index" yaml:"current_key_index"`
	CustomInstruction string   `json:"custom_instruction,omitempty" yaml:"custom_instruction,omitempty"`
	AdCode1           string   `json:"ad_code_1,omitempty" yaml:"ad_code_1,omitempty"`
	AdCode2           string   `json:"ad_code_2,omitempty" yaml:"ad_code_2,omitempty"`
	DefaultCategoryID string   `json:"default_category_id,omitempty" yaml:"default_category_id,omitempty"`
	EnableAIImage     bool     `json:"enable_ai_image" yaml:"enable_ai_image"`
	AIImageCount      int      `json:"ai_image_count,omitempty" yaml:"ai_image_count,omitempty"`
	DefaultStatus     string   `json:"default_status,omitempty" yaml:"default_status,omitempty"`
	PublishInterval   int      `json:"publish_interval,omitempty" yaml:"publish_interval,omitempty"`
	StartTime         string   `json:"start_time,omitempty" yaml:"start_time,omitempty"`
}

// Keys returns the non-blank API keys.
func (c SiteConfig) Keys() []string {
	var keys []string
	for _, k := range c.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// Complete reports whether the WordPress connection fields are all set.
func (c SiteConfig) Complete() bool {
	return strings.TrimSpace(c.SiteURL) != "" &&
		strings.TrimSpace(c.Username) != "" &&
		strings.TrimSpace(c.AppPassword) != ""
}

var errNotInteger = errors.New("must be an integer")

func integerString(value any) error {
	s, _ := value.(string)
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := strconv.Atoi(strings.TrimSpace(s)); err != nil {
		return errNotInteger
	}
	return nil
}

// Validate checks field formats. Connection fields may be empty so a
// profile can be saved before it is complete.
func (c SiteConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.CurrentKeyIndex, validation.Min(0)),
		validation.Field(&c.DefaultCategoryID, validation.By(integerString)),
		validation.Field(&c.AIImageCount, validation.Min(0), validation.Max(5)),
		validation.Field(&c.DefaultStatus, validation.In("", "draft", "publish", "future")),
		validation.Field(&c.PublishInterval, validation.Min(0)),
	)
}

// SiteProfile is a named site configuration.
type SiteProfile struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Config     SiteConfig `json:"config" yaml:"config"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" yaml:"last_used_at,omitempty"`
}

// Settings is the full profile collection and the active selection.
type Settings struct {
	Profiles         []SiteProfile `json:"profiles" yaml:"profiles"`
	CurrentProfileID string        `json:"current_profile_id" yaml:"current_profile_id"`
}
