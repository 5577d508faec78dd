// Package env composes the environment handed to the supervised server.
package env

import (
	"os"
	"sort"
	"strings"
)

type Var map[string]string

// Parse turns "K=V" entries into a map. Entries without '=' or with an empty
// key are skipped; later entries win.
func Parse(kvs []string) Var {
	m := make(Var, len(kvs))
	for _, kv := range kvs {
		i := strings.IndexByte(kv, '=')
		if i <= 0 {
			continue
		}
		m[kv[:i]] = kv[i+1:]
	}
	return m
}

// Compose returns the child environment: the host environment overlaid with
// overrides, with ${VAR} references in override values expanded against the
// composed map. The result is sorted by key.
func Compose(overrides []string) []string {
	return compose(os.Environ(), overrides)
}

func compose(base, overrides []string) []string {
	m := Parse(base)
	ov := Parse(overrides)
	for k, v := range ov {
		m[k] = v
	}
	for k, v := range ov {
		m[k] = Expand(v, m)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}

// Expand replaces ${VAR} in s with values from vars, falling back to the host
// environment. Unknown variables expand to the empty string. Bare $VAR is left alone.
func Expand(s string, vars Var) string {
	if !strings.Contains(s, "${") {
		return s
	}
	var b strings.Builder
	for {
		i := strings.Index(s, "${")
		if i < 0 {
			b.WriteString(s)
			break
		}
		j := strings.IndexByte(s[i+2:], '}')
		if j < 0 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:i])
		name := s[i+2 : i+2+j]
		if v, ok := vars[name]; ok {
			b.WriteString(v)
		} else {
			b.WriteString(os.Getenv(name))
		}
		s = s[i+3+j:]
	}
	return b.String()
}
