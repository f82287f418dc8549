package logging

import (
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SectionSpec selects which debug sections are recorded and where.
//
// The textual form is "<prefixes>:<file>", where prefixes is a comma separated
// list of category prefixes. A bare file name records every category, and "-"
// as the file means stderr. A file starting with a drive letter such as
// C:\logs\boot.log is a path, not a prefix list.
type SectionSpec struct {
	Prefixes []string
	File     string
}

// ParseSectionSpec parses the IMGBOOT_LOG value. An empty string disables sections.
func ParseSectionSpec(s string) (SectionSpec, bool) {
	if s == "" {
		return SectionSpec{}, false
	}
	if hasDrive(s) {
		return SectionSpec{File: s}, true
	}
	cats, file, found := strings.Cut(s, ":")
	if !found {
		return SectionSpec{File: s}, true
	}
	spec := SectionSpec{File: file}
	for _, c := range strings.Split(cats, ",") {
		if c = strings.TrimSpace(c); c != "" {
			spec.Prefixes = append(spec.Prefixes, c)
		}
	}
	if spec.File == "" {
		spec.File = "-"
	}
	return spec, true
}

// hasDrive reports whether s starts with a Windows drive letter.
func hasDrive(s string) bool {
	if len(s) < 3 || s[1] != ':' || (s[2] != '\\' && s[2] != '/') {
		return false
	}
	c := s[0] | 0x20
	return c >= 'a' && c <= 'z'
}

// Matches reports whether category is recorded.
func (s SectionSpec) Matches(category string) bool {
	if len(s.Prefixes) == 0 {
		return true
	}
	for _, p := range s.Prefixes {
		if strings.HasPrefix(category, p) {
			return true
		}
	}
	return false
}

type openSection struct {
	category string
	start    time.Time
}

// Sections records timed, nested debug sections.
// The zero value and a nil *Sections record nothing.
type Sections struct {
	log   *zap.Logger
	spec  SectionSpec
	now   func() time.Time
	stack []openSection
}

// NewSections returns a recorder writing matching sections to log.
func NewSections(log *zap.Logger, spec SectionSpec) *Sections {
	return &Sections{log: log, spec: spec, now: time.Now}
}

// OpenSections builds a recorder from the IMGBOOT_LOG value.
// It returns nil when s disables sections.
func OpenSections(s string) (*Sections, error) {
	spec, ok := ParseSectionSpec(s)
	if !ok {
		return nil, nil
	}
	log, err := New(Options{Level: zapcore.DebugLevel.String(), File: spec.File})
	if err != nil {
		return nil, err
	}
	return NewSections(log, spec), nil
}

// Start opens a section.
func (s *Sections) Start(category string) {
	if s == nil || s.log == nil {
		return
	}
	s.stack = append(s.stack, openSection{category: category, start: s.now()})
	if s.spec.Matches(category) {
		s.log.Debug("debug_start", zap.String("category", category))
	}
}

// Stop closes the innermost section, which must be category.
func (s *Sections) Stop(category string) {
	if s == nil || s.log == nil {
		return
	}
	n := len(s.stack)
	if n == 0 || s.stack[n-1].category != category {
		var open string
		if n > 0 {
			open = s.stack[n-1].category
		}
		s.log.Error("debug section nesting error",
			zap.String("stop", category),
			zap.String("open", open))
		return
	}
	top := s.stack[n-1]
	s.stack = s.stack[:n-1]
	if s.spec.Matches(category) {
		s.log.Debug("debug_stop",
			zap.String("category", category),
			zap.Duration("elapsed", s.now().Sub(top.start)))
	}
}

// Depth returns the number of open sections.
func (s *Sections) Depth() int {
	if s == nil {
		return 0
	}
	return len(s.stack)
}

// Sync flushes the underlying logger.
func (s *Sections) Sync() {
	if s != nil && s.log != nil {
		_ = s.log.Sync()
	}
}
