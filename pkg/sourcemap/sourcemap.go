// Package sourcemap translates source paths between the debuggee's build
// environment and the client's file system.
package sourcemap

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	lru "github.com/hashicorp/golang-lru"
)

// Rule rewrites the path prefix From, as recorded in the debuggee's debug
// information, to the local prefix To. An empty To suppresses sources
// under From.
type Rule struct {
	From string
	To   string
}

// Map is an ordered list of rules. The first matching rule wins.
type Map []Rule

func crossPlatformPath(path string) string {
	if runtime.GOOS == "windows" {
		return strings.ToLower(path)
	}
	return path
}

func separatorOf(path string) string {
	if strings.Contains(path, "\\") {
		return "\\"
	}
	return "/"
}

// substitute applies the first rule whose from-prefix matches path.
func substitute(path string, rules [][2]string) (string, bool) {
	cmp := crossPlatformPath(path)
	sep := separatorOf(path)
	for _, r := range rules {
		from := crossPlatformPath(r[0])
		to := r[1]
		if from == "" {
			continue
		}
		if cmp == strings.TrimSuffix(from, sep) {
			return to, true
		}
		if !strings.HasSuffix(from, sep) {
			from += sep
		}
		if strings.HasPrefix(cmp, from) {
			if to == "" {
				return "", true
			}
			if !strings.HasSuffix(to, separatorOf(to)) {
				to += separatorOf(to)
			}
			return to + path[len(from):], true
		}
	}
	return path, false
}

// ToClient maps an engine path to the client's file system. The second
// result is false when the path is suppressed by a rule with an empty To.
func (m Map) ToClient(remote string) (string, bool) {
	rules := make([][2]string, len(m))
	for i, r := range m {
		rules[i] = [2]string{r.From, r.To}
	}
	p, _ := substitute(remote, rules)
	return p, p != ""
}

// ToEngine maps a client path back to the path the engine knows.
func (m Map) ToEngine(local string) string {
	rules := make([][2]string, 0, len(m))
	for _, r := range m {
		if r.To != "" {
			rules = append(rules, [2]string{r.To, r.From})
		}
	}
	p, _ := substitute(local, rules)
	return p
}

// Normalize cleans path and, on Windows, lower-cases the drive letter so
// that paths reported by different tools compare equal.
func Normalize(path string) string {
	if path == "" {
		return ""
	}
	path = filepath.Clean(path)
	if runtime.GOOS == "windows" && len(path) >= 2 && path[1] == ':' {
		path = strings.ToLower(path[:1]) + path[1:]
	}
	return path
}

const cacheSize = 1024

// Resolver maps engine paths to local files, looking for files that do not
// exist locally under the configured search roots. Answers are cached.
type Resolver struct {
	m        Map
	base     string
	roots    []string
	cache    *lru.Cache
	statFile func(string) bool
}

// NewResolver returns a resolver. Relative engine paths are joined to base;
// roots are searched for files that cannot be found after mapping.
func NewResolver(m Map, base string, roots []string) *Resolver {
	cache, err := lru.New(cacheSize)
	if err != nil {
		panic(err)
	}
	return &Resolver{m: m, base: base, roots: roots, cache: cache, statFile: fileExists}
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

// Map returns the resolver's rules.
func (r *Resolver) Map() Map {
	return r.m
}

// SetMap replaces the rules and drops cached answers.
func (r *Resolver) SetMap(m Map) {
	r.m = m
	r.cache.Purge()
}

// ToClient resolves an engine path to a local path. It returns false for
// paths that are suppressed.
func (r *Resolver) ToClient(remote string) (string, bool) {
	if remote == "" {
		return "", false
	}
	if v, ok := r.cache.Get(remote); ok {
		s := v.(string)
		return s, s != ""
	}
	local, ok := r.m.ToClient(remote)
	if ok {
		if !filepath.IsAbs(local) && r.base != "" {
			local = filepath.Join(r.base, local)
		}
		local = Normalize(local)
		if !r.statFile(local) {
			if found := r.search(local); found != "" {
				local = found
			}
		}
	}
	r.cache.Add(remote, local)
	return local, ok
}

// search looks for the longest suffix of path that exists under one of the
// search roots.
func (r *Resolver) search(path string) string {
	if len(r.roots) == 0 {
		return ""
	}
	parts := strings.FieldsFunc(filepath.ToSlash(path), func(c rune) bool { return c == '/' })
	for i := 0; i < len(parts); i++ {
		suffix := filepath.Join(parts[i:]...)
		for _, root := range r.roots {
			cand := filepath.Join(root, suffix)
			if r.statFile(cand) {
				return Normalize(cand)
			}
		}
	}
	return ""
}

// ToEngine maps a client path to the engine's path.
func (r *Resolver) ToEngine(local string) string {
	p := r.m.ToEngine(local)
	if r.base != "" && !filepath.IsAbs(p) {
		p = filepath.Join(r.base, p)
	}
	return p
}
