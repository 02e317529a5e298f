package connector

import (
	"fmt"
	"os"
	"regexp"
)

// Permissions is a read/write/remove flag set.
type Permissions struct {
	Read  bool `yaml:"read"`
	Write bool `yaml:"write"`
	Rm    bool `yaml:"rm"`
}

// PermRule overrides the default permissions for paths whose root-relative
// slash form ("/docs/a.txt", "/" for root) matches Pattern. Unset flags fall
// through to the defaults.
type PermRule struct {
	Pattern string `yaml:"pattern"`
	Read    *bool  `yaml:"read,omitempty"`
	Write   *bool  `yaml:"write,omitempty"`
	Rm      *bool  `yaml:"rm,omitempty"`
}

// Options configures a Connector. Build it with DefaultOptions().With(...).
type Options struct {
	Root      string
	URL       string
	RootAlias string
	DotFiles  bool
	DirSize   bool
	FileURL   bool

	FileMode os.FileMode
	DirMode  os.FileMode

	TmbDir    string
	TmbAtOnce int
	TmbSize   int

	Defaults Permissions
	Perms    []PermRule
	Disabled []string

	// MaxDepth bounds every recursive walk below root.
	MaxDepth int
	Debug    bool
}

// DefaultOptions returns the documented defaults. Root is left empty and
// must be supplied.
func DefaultOptions() Options {
	return Options{
		RootAlias: "Home",
		DirSize:   true,
		FileURL:   true,
		FileMode:  0644,
		DirMode:   0755,
		TmbDir:    ".tmb",
		TmbAtOnce: 5,
		TmbSize:   48,
		Defaults:  Permissions{Read: true, Write: true, Rm: true},
		MaxDepth:  64,
	}
}

// Overrides holds optional replacements for Options fields. Nil fields
// leave the current value untouched.
type Overrides struct {
	Root      *string `yaml:"root"`
	URL       *string `yaml:"URL"`
	RootAlias *string `yaml:"rootAlias"`
	DotFiles  *bool   `yaml:"dotFiles"`
	DirSize   *bool   `yaml:"dirSize"`
	FileURL   *bool   `yaml:"fileURL"`
	FileMode  *uint32 `yaml:"fileMode"`
	DirMode   *uint32 `yaml:"dirMode"`
	TmbDir    *string `yaml:"tmbDir"`
	TmbAtOnce *int    `yaml:"tmbAtOnce"`
	TmbSize   *int    `yaml:"tmbSize"`
	MaxDepth  *int    `yaml:"maxDepth"`
	Debug     *bool   `yaml:"debug"`

	Defaults *Permissions `yaml:"defaults"`
	Perms    []PermRule   `yaml:"perms"`
	Disabled []string     `yaml:"disabled"`
}

// With returns a copy of o with every set field of ov applied.
func (o Options) With(ov Overrides) Options {
	setString(&o.Root, ov.Root)
	setString(&o.URL, ov.URL)
	setString(&o.RootAlias, ov.RootAlias)
	setString(&o.TmbDir, ov.TmbDir)
	setBool(&o.DotFiles, ov.DotFiles)
	setBool(&o.DirSize, ov.DirSize)
	setBool(&o.FileURL, ov.FileURL)
	setBool(&o.Debug, ov.Debug)
	setInt(&o.TmbAtOnce, ov.TmbAtOnce)
	setInt(&o.TmbSize, ov.TmbSize)
	setInt(&o.MaxDepth, ov.MaxDepth)
	if ov.FileMode != nil {
		o.FileMode = os.FileMode(*ov.FileMode)
	}
	if ov.DirMode != nil {
		o.DirMode = os.FileMode(*ov.DirMode)
	}
	if ov.Defaults != nil {
		o.Defaults = *ov.Defaults
	}
	if ov.Perms != nil {
		o.Perms = append([]PermRule(nil), ov.Perms...)
	}
	if ov.Disabled != nil {
		o.Disabled = append([]string(nil), ov.Disabled...)
	}
	return o
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

type compiledRule struct {
	re *regexp.Regexp
	PermRule
}

func compileRules(rules []PermRule) ([]compiledRule, error) {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("perms pattern %q: %w", r.Pattern, err)
		}
		out = append(out, compiledRule{re: re, PermRule: r})
	}
	return out, nil
}
