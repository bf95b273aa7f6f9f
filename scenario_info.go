package stepflow

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/cucumber/godog"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// ScenarioInfo describes the scenario a context was created for. Binding
// classes receive it by declaring a *ScenarioInfo constructor parameter.
//
// Besides the raw tags, three parsed views are available:
//
//	@slow                      flag "slow"
//	@retries(3)                option "retries" with value "3"
//	@fixture({user: alice})    attribute "fixture" decoded from YAML or JSON
type ScenarioInfo struct {
	Title      string
	Tags       []string
	FeatureURI string
	PickleID   string

	parseOnce  sync.Once
	flags      map[string]struct{}
	options    map[string][]string
	attributes map[string]string
}

// NewScenarioInfo builds a ScenarioInfo from its parts. Tags are normalized.
func NewScenarioInfo(title string, tags []string, featureURI, pickleID string) *ScenarioInfo {
	normalized := make([]string, 0, len(tags))
	for _, t := range tags {
		normalized = append(normalized, NormalizeTag(t))
	}
	return &ScenarioInfo{
		Title:      title,
		Tags:       uniqueTags(normalized),
		FeatureURI: featureURI,
		PickleID:   pickleID,
	}
}

func scenarioInfoFromPickle(sc *godog.Scenario) *ScenarioInfo {
	if sc == nil {
		return NewScenarioInfo("", nil, "", "")
	}
	tags := make([]string, 0, len(sc.Tags))
	for _, t := range sc.Tags {
		tags = append(tags, t.Name)
	}
	return NewScenarioInfo(sc.Name, tags, sc.Uri, sc.Id)
}

func (s *ScenarioInfo) parse() {
	s.parseOnce.Do(func() {
		s.flags = make(map[string]struct{})
		s.options = make(map[string][]string)
		s.attributes = make(map[string]string)

		for _, tag := range s.Tags {
			body := strings.TrimPrefix(tag, "@")
			open := strings.IndexByte(body, '(')
			if open < 0 || !strings.HasSuffix(body, ")") {
				s.flags[body] = struct{}{}
				continue
			}

			name := body[:open]
			value := body[open+1 : len(body)-1]
			if trimmed := strings.TrimSpace(value); strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
				s.attributes[name] = trimmed
				continue
			}
			s.options[name] = append(s.options[name], value)
		}
	})
}

// HasTag reports whether the scenario carries tag. Bare names are normalized.
func (s *ScenarioInfo) HasTag(tag string) bool {
	tag = NormalizeTag(tag)
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasFlag reports whether a plain @name tag is present.
func (s *ScenarioInfo) HasFlag(name string) bool {
	s.parse()
	_, ok := s.flags[name]
	return ok
}

// Option returns the last value given for @name(value).
func (s *ScenarioInfo) Option(name string) (string, bool) {
	values := s.Options(name)
	if len(values) == 0 {
		return "", false
	}
	return values[len(values)-1], true
}

// Options returns every value given for @name(value), in tag order.
func (s *ScenarioInfo) Options(name string) []string {
	s.parse()
	return append([]string(nil), s.options[name]...)
}

// Attribute decodes the structured payload of @name({...}) into out.
// It reports false when the attribute is absent.
func (s *ScenarioInfo) Attribute(name string, out any) (bool, error) {
	s.parse()
	raw, ok := s.attributes[name]
	if !ok {
		return false, nil
	}
	if err := yaml.Unmarshal([]byte(raw), out); err != nil {
		return true, fmt.Errorf("decoding attribute tag %q: %w", name, err)
	}
	return true, nil
}

// OptionValue converts the last value of option name to T.
func OptionValue[T any](s *ScenarioInfo, name string) (T, bool, error) {
	var zero T
	raw, ok := s.Option(name)
	if !ok {
		return zero, false, nil
	}

	v, err := cast.FromType(raw, reflect.TypeOf(zero))
	if err != nil {
		return zero, true, fmt.Errorf("option tag %q: %w", name, err)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, true, fmt.Errorf("option tag %q: cannot use %T as %T", name, v, zero)
	}
	return typed, true, nil
}

func (s *ScenarioInfo) String() string {
	return fmt.Sprintf("%q %v", s.Title, s.Tags)
}
