package logger

import (
	"strconv"
	"strings"
	"sync"
)

// ratio admits num out of every den events; the zero ratio admits all.
type ratio struct {
	num, den int
}

func (r ratio) all() bool { return r.num <= 0 || r.den <= 0 }

var defaultDebugRatio = ratio{num: 1, den: 50}

// componentSampler thins debug events per component, each with its own
// counter, so a burst of tg updates does not eat the dialog budget.
type componentSampler struct {
	mu       sync.Mutex
	fallback ratio
	rules    map[string]ratio
	seen     map[string]int
}

func newComponentSampler(fallback ratio, rules map[string]ratio) *componentSampler {
	return &componentSampler{fallback: fallback, rules: rules, seen: make(map[string]int)}
}

func (s *componentSampler) ratioFor(component string) ratio {
	if r, ok := s.rules[component]; ok {
		return r
	}
	// "tg.wire" falls back to "tg".
	if i := strings.IndexByte(component, '.'); i > 0 {
		if r, ok := s.rules[component[:i]]; ok {
			return r
		}
	}
	return s.fallback
}

// Allow reports whether the next debug event of component is kept.
func (s *componentSampler) Allow(component string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.ratioFor(component)
	if r.all() {
		return true
	}
	n := s.seen[component]%r.den + 1
	s.seen[component] = n
	return n <= r.num
}

// parseSampleSpec reads "1/50", "50", "off" or a comma separated list of
// component=ratio pairs where "*" names the fallback. Unreadable parts keep
// the default.
func parseSampleSpec(spec string) (ratio, map[string]ratio) {
	fallback := defaultDebugRatio
	rules := make(map[string]ratio)
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, scoped := strings.Cut(part, "=")
		if !scoped {
			value, name = name, "*"
		}
		r, ok := parseRatio(value)
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "*" {
			fallback = r
			continue
		}
		rules[name] = r
	}
	return fallback, rules
}

func parseRatio(value string) (ratio, bool) {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "off", "all", "0":
		return ratio{}, true
	}
	if num, den, ok := strings.Cut(value, "/"); ok {
		n, err1 := strconv.Atoi(strings.TrimSpace(num))
		d, err2 := strconv.Atoi(strings.TrimSpace(den))
		if err1 != nil || err2 != nil || n < 0 || d < 0 {
			return ratio{}, false
		}
		if n > d {
			n = d
		}
		return ratio{num: n, den: d}, true
	}
	d, err := strconv.Atoi(value)
	if err != nil || d < 0 {
		return ratio{}, false
	}
	return ratio{num: 1, den: d}, true
}
