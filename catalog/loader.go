package catalog

import (
	"embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// data embeds the catalog's YAML definition tables into the compiled
// binary, so a ck3ls build carries its vocabulary of scope types,
// effects, triggers, animations, themes, and traits without needing a
// companion data directory on disk.
//
//go:embed data/*.yaml
var data embed.FS

type rawScopeType struct {
	Name     string            `yaml:"name"`
	Links    map[string]string `yaml:"links"`
	Lists    map[string]bool   `yaml:"lists"`
	Triggers map[string]bool   `yaml:"triggers"`
	Effects  map[string]bool   `yaml:"effects"`
}

type rawScopeFile struct {
	ScopeTypes []rawScopeType `yaml:"scope_types"`
}

type rawEffect struct {
	Name       string   `yaml:"name"`
	ValidIn    []string `yaml:"valid_in"`
	TakesBlock bool     `yaml:"takes_block"`
}

type rawEffectFile struct {
	Effects []rawEffect `yaml:"effects"`
}

type rawTrigger struct {
	Name       string   `yaml:"name"`
	ValidIn    []string `yaml:"valid_in"`
	TakesBlock bool     `yaml:"takes_block"`
}

type rawTriggerFile struct {
	Triggers []rawTrigger `yaml:"triggers"`
}

type rawNameListFile struct {
	Names []string `yaml:"names"`
}

// Load parses the embedded catalog data files into a ready-to-use,
// immutable Catalog. Load is intended to run exactly once per process,
// at startup; its result is shared across every subsequent analysis.
func Load() (*Catalog, error) {
	c := &Catalog{
		ScopeTypes: map[string]*ScopeType{},
		Effects:    map[string]*Effect{},
		Triggers:   map[string]*Trigger{},
		Animations: map[string]bool{},
		Themes:     map[string]bool{},
		Traits:     map[string]bool{},
	}

	var scopeFile rawScopeFile
	if err := loadYAML("data/scope_types.yaml", &scopeFile); err != nil {
		return nil, err
	}
	for _, rs := range scopeFile.ScopeTypes {
		st := &ScopeType{
			Name:     rs.Name,
			Links:    rs.Links,
			Lists:    rs.Lists,
			Triggers: rs.Triggers,
			Effects:  rs.Effects,
		}
		if st.Links == nil {
			st.Links = map[string]string{}
		}
		if _, dup := c.ScopeTypes[st.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate scope type %q", st.Name)
		}
		c.ScopeTypes[st.Name] = st
	}

	var effectFile rawEffectFile
	if err := loadYAML("data/effects.yaml", &effectFile); err != nil {
		return nil, err
	}
	for _, re := range effectFile.Effects {
		if _, dup := c.Effects[re.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate effect %q", re.Name)
		}
		c.Effects[re.Name] = &Effect{
			Name:          re.Name,
			ValidInScopes: toSet(re.ValidIn),
			TakesBlock:    re.TakesBlock,
		}
	}

	var triggerFile rawTriggerFile
	if err := loadYAML("data/triggers.yaml", &triggerFile); err != nil {
		return nil, err
	}
	for _, rt := range triggerFile.Triggers {
		if _, dup := c.Triggers[rt.Name]; dup {
			return nil, fmt.Errorf("catalog: duplicate trigger %q", rt.Name)
		}
		c.Triggers[rt.Name] = &Trigger{
			Name:          rt.Name,
			ValidInScopes: toSet(rt.ValidIn),
			TakesBlock:    rt.TakesBlock,
		}
	}

	var animFile, themeFile, traitFile rawNameListFile
	if err := loadYAML("data/animations.yaml", &animFile); err != nil {
		return nil, err
	}
	c.Animations = toSet(animFile.Names)

	if err := loadYAML("data/themes.yaml", &themeFile); err != nil {
		return nil, err
	}
	c.Themes = toSet(themeFile.Names)

	if err := loadYAML("data/traits.yaml", &traitFile); err != nil {
		return nil, err
	}
	c.Traits = toSet(traitFile.Names)

	return c, nil
}

func loadYAML(path string, out interface{}) error {
	b, err := data.ReadFile(path)
	if err != nil {
		return fmt.Errorf("catalog: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, out); err != nil {
		return fmt.Errorf("catalog: parsing %s: %w", path, err)
	}
	return nil
}

func toSet(names []string) map[string]bool {
	s := make(map[string]bool, len(names))
	for _, n := range names {
		s[n] = true
	}
	return s
}
