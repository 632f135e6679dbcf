package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigError is a fatal, startup-time schema configuration error: an
// undefined $extends, an undefined $variable, a pattern that fails to
// compile, or a cyclic $extends chain. The registry refuses to come up
// with a partially-loaded configuration when any of these occur.
type ConfigError struct {
	Source string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("schema config error in %s: %s", e.Source, e.Reason)
}

type rawRequired struct {
	Scalar string // "always" or "never", when the YAML value is a bare string
	If     string `yaml:"if"`
}

func (r *rawRequired) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&r.Scalar)
	}
	type plain struct {
		If string `yaml:"if"`
	}
	var p plain
	if err := value.Decode(&p); err != nil {
		return err
	}
	r.If = p.If
	return nil
}

func (r rawRequired) resolve() Requiredness {
	switch {
	case r.If != "":
		return Requiredness{Kind: "if", Expr: r.If}
	case r.Scalar == "always":
		return Requiredness{Kind: "always"}
	default:
		return Requiredness{Kind: "never"}
	}
}

type rawFieldSpec struct {
	Required        rawRequired `yaml:"required"`
	Type            string      `yaml:"type"`
	Pattern         string      `yaml:"pattern"`
	Enum            []string    `yaml:"enum"`
	NestedSchema    string      `yaml:"nested_schema"`
	DuplicatePolicy string      `yaml:"duplicate_policy"`
	Deprecated      string      `yaml:"deprecated"`
	Docs            struct {
		Description string `yaml:"description"`
		Snippet     string `yaml:"snippet"`
	} `yaml:"docs"`
}

type rawRule struct {
	Require   string   `yaml:"require"`
	Forbid    string   `yaml:"forbid"`
	AtMostOne []string `yaml:"at_most_one_of"`
	If        string   `yaml:"if"`
	Code      string   `yaml:"code"`
	Message   string   `yaml:"message"`
}

type rawSchema struct {
	Name         string                  `yaml:"name"`
	Extends      string                  `yaml:"extends"`
	PathPatterns []string                `yaml:"path_patterns"`
	Context      struct {
		ThisBlockIs string `yaml:"this_block_is"`
		RootScope   string `yaml:"root_scope"`
	} `yaml:"context"`
	Fields     map[string]rawFieldSpec `yaml:"fields"`
	FieldOrder []string                `yaml:"field_order"`
	Rules      []rawRule               `yaml:"rules"`
	Symbols    struct {
		Kind   string `yaml:"kind"`
		IDFrom string `yaml:"id_from"`
	} `yaml:"symbols"`
}

// Load reads every *.yaml file in dir, resolves $extends and $variable
// references, compiles named patterns, and returns a ready-to-use
// Registry. Any configuration error aborts the entire load: a
// partially-loaded registry is never returned.
func Load(dir string, patternDefs map[string]string, variables map[string]string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Source: dir, Reason: err.Error()}
	}

	patterns := make(map[string]*regexp.Regexp, len(patternDefs))
	for name, expr := range patternDefs {
		re, err := regexp.Compile(substituteVariables(expr, variables))
		if err != nil {
			return nil, &ConfigError{Source: "pattern:" + name, Reason: err.Error()}
		}
		patterns[name] = re
	}

	raws := make(map[string]rawSchema)
	var order []string
	for _, ent := range entries {
		if ent.IsDir() || !(strings.HasSuffix(ent.Name(), ".yaml") || strings.HasSuffix(ent.Name(), ".yml")) {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Source: path, Reason: err.Error()}
		}
		data = []byte(substituteVariables(string(data), variables))
		if m := regexp.MustCompile(`\$[A-Za-z_][A-Za-z_0-9]*`).Find(data); m != nil {
			return nil, &ConfigError{Source: path, Reason: fmt.Sprintf("undefined $variable %q", m)}
		}
		var raw rawSchema
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, &ConfigError{Source: path, Reason: err.Error()}
		}
		if raw.Name == "" {
			return nil, &ConfigError{Source: path, Reason: "schema is missing a 'name'"}
		}
		if _, dup := raws[raw.Name]; dup {
			return nil, &ConfigError{Source: path, Reason: fmt.Sprintf("duplicate schema name %q", raw.Name)}
		}
		raws[raw.Name] = raw
		order = append(order, raw.Name)
	}
	sort.Strings(order) // deterministic declaration order when ties occur

	for _, name := range order {
		if ext := raws[name].Extends; ext != "" {
			if _, ok := raws[ext]; !ok {
				return nil, &ConfigError{Source: name, Reason: fmt.Sprintf("$extends refers to undefined schema %q", ext)}
			}
		}
	}
	if cyc := detectExtendsCycle(raws); cyc != "" {
		return nil, &ConfigError{Source: cyc, Reason: "cyclic $extends chain"}
	}

	resolved := make(map[string]*Schema, len(raws))
	var resolveOne func(name string) (*Schema, error)
	resolveOne = func(name string) (*Schema, error) {
		if s, ok := resolved[name]; ok {
			return s, nil
		}
		raw := raws[name]
		s := &Schema{
			Name:         raw.Name,
			Extends:      raw.Extends,
			PathPatterns: raw.PathPatterns,
			Fields:       map[string]*FieldSpec{},
			FieldOrder:   raw.FieldOrder,
		}
		s.Context = BlockContext{ThisBlockIs: raw.Context.ThisBlockIs, RootScope: raw.Context.RootScope}
		if raw.Symbols.Kind != "" {
			s.Symbol = &SymbolDeclaration{Kind: raw.Symbols.Kind, IDFrom: raw.Symbols.IDFrom}
		}

		if raw.Extends != "" {
			parent, err := resolveOne(raw.Extends)
			if err != nil {
				return nil, err
			}
			mergeParent(s, parent)
		}

		for fname, rf := range raw.Fields {
			fs := &FieldSpec{
				Name:            fname,
				Required:        rf.Required.resolve(),
				Type:            TypeSpec{Kind: rf.Type},
				Pattern:         rf.Pattern,
				Enum:            rf.Enum,
				NestedSchema:    rf.NestedSchema,
				DuplicatePolicy: DuplicatePolicy(rf.DuplicatePolicy),
				Deprecated:      rf.Deprecated,
				Docs:            FieldDocs{Description: rf.Docs.Description, Snippet: rf.Docs.Snippet},
			}
			if fs.DuplicatePolicy == "" {
				// The open question in the spec is explicit: there is no
				// sensible default here, a missing duplicate_policy is a
				// configuration error rather than a silently-assumed one.
				return nil, &ConfigError{Source: name, Reason: fmt.Sprintf("field %q is missing an explicit duplicate_policy", fname)}
			}
			if fs.Pattern != "" {
				re, ok := patterns[fs.Pattern]
				if !ok {
					return nil, &ConfigError{Source: name, Reason: fmt.Sprintf("field %q refers to undefined pattern %q", fname, fs.Pattern)}
				}
				fs.patternRe = re
			}
			if fs.Type.Kind == "enum" && len(fs.Enum) == 0 {
				return nil, &ConfigError{Source: name, Reason: fmt.Sprintf("field %q is type enum but has no enum values", fname)}
			}
			s.Fields[fname] = fs
		}

		for i, rr := range raw.Rules {
			r := Rule{
				Require:   rr.Require,
				Forbid:    rr.Forbid,
				AtMostOne: rr.AtMostOne,
				Predicate: rr.If,
				Code:      rr.Code,
				Message:   rr.Message,
			}
			if r.Code == "" {
				r.Code = fmt.Sprintf("SCHEMA-%03d", i+1)
			}
			s.Rules = append(s.Rules, r)
		}

		s.longestLiteralPrefix = longestLiteralPrefixOf(s.PathPatterns)
		resolved[name] = s
		return s, nil
	}

	for _, name := range order {
		if _, err := resolveOne(name); err != nil {
			return nil, err
		}
	}
	for i, name := range order {
		resolved[name].declOrder = i
	}

	list := make([]*Schema, 0, len(resolved))
	for _, name := range order {
		list = append(list, resolved[name])
	}

	return &Registry{schemas: list, byName: resolved, patterns: patterns}, nil
}

// mergeParent shallow-merges parent into the child schema under
// construction: the child's own fields (added later by the caller)
// override parent fields of the same name, and the child's own context and
// field_order, if set, override the parent's.
func mergeParent(child, parent *Schema) {
	for name, fs := range parent.Fields {
		cp := *fs
		child.Fields[name] = &cp
	}
	if child.Context.ThisBlockIs == "" {
		child.Context.ThisBlockIs = parent.Context.ThisBlockIs
	}
	if child.Context.RootScope == "" {
		child.Context.RootScope = parent.Context.RootScope
	}
	if len(child.FieldOrder) == 0 {
		child.FieldOrder = parent.FieldOrder
	}
	if child.Symbol == nil {
		child.Symbol = parent.Symbol
	}
	child.Rules = append(child.Rules, parent.Rules...)
}

func detectExtendsCycle(raws map[string]rawSchema) string {
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(raws))
	var visit func(name string) bool
	visit = func(name string) bool {
		switch color[name] {
		case black:
			return false
		case grey:
			return true
		}
		color[name] = grey
		if ext := raws[name].Extends; ext != "" {
			if visit(ext) {
				return true
			}
		}
		color[name] = black
		return false
	}
	names := make([]string, 0, len(raws))
	for n := range raws {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if visit(n) {
			return n
		}
	}
	return ""
}

func substituteVariables(text string, variables map[string]string) string {
	if len(variables) == 0 {
		return text
	}
	for name, val := range variables {
		text = strings.ReplaceAll(text, "$"+name, val)
	}
	return text
}

// longestLiteralPrefixOf returns the length of the longest run of
// non-wildcard characters across a schema's path patterns, used to break
// matching ties in favor of the most specific pattern.
func longestLiteralPrefixOf(patterns []string) int {
	best := 0
	for _, p := range patterns {
		n := 0
		for _, r := range p {
			if r == '*' || r == '?' || r == '[' {
				break
			}
			n++
		}
		if n > best {
			best = n
		}
	}
	return best
}
