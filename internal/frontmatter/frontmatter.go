// Package frontmatter decodes the YAML or TOML metadata block at the top of a
// post file into the blog's typed schema.
package frontmatter

import (
	"fmt"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Format identifies the frontmatter encoding found in a file.
type Format string

const (
	FormatNone Format = "none"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

const (
	yamlDelim = "---"
	tomlDelim = "+++"
)

// Meta is the typed frontmatter schema. Zero values mean the field was absent
// or unreadable; Fields on Doc keeps the raw decoded map for that distinction.
type Meta struct {
	Title      string
	Date       time.Time
	Slug       string
	Categories []string
	Series     []string
	Draft      bool
	Updated    time.Time

	// Legacy per-post toggles carried over from the old blog engine.
	// They default to true and are preserved verbatim, never interpreted.
	Comments bool
	Sharing  bool
	Footer   bool
}

// Doc is one parsed content file: typed metadata plus the Markdown body.
type Doc struct {
	Meta   Meta
	Fields map[string]any
	Body   string
	Format Format
}

// Has reports whether the frontmatter block declared the given field,
// regardless of whether its value was usable.
func (d *Doc) Has(key string) bool {
	_, ok := d.Fields[strings.ToLower(key)]
	return ok
}

// Groups returns the union of series and categories, first occurrence wins.
func (d *Doc) Groups() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, g := range append(append([]string{}, d.Meta.Series...), d.Meta.Categories...) {
		if _, dup := seen[g]; dup {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// DisplayTitle returns the frontmatter title if present, otherwise the first
// H1 heading, otherwise empty string. Used for indexing, not validation.
func (d *Doc) DisplayTitle() string {
	if d.Meta.Title != "" {
		return d.Meta.Title
	}
	for _, line := range strings.Split(d.Body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Parse splits data into a frontmatter block and body and decodes the block.
// A file that opens with neither delimiter comes back as FormatNone with the
// full content as body. An opening delimiter that is never closed, or a block
// that fails to decode, is an error: silently swallowing a half-written block
// would hide exactly the mistakes this tool exists to catch.
func Parse(data []byte) (*Doc, error) {
	s := strings.TrimPrefix(string(data), "\uFEFF")

	for _, probe := range []struct {
		delim  string
		format Format
	}{
		{yamlDelim, FormatYAML},
		{tomlDelim, FormatTOML},
	} {
		block, body, found, err := splitBlock(s, probe.delim)
		if err != nil {
			return nil, fmt.Errorf("frontmatter: %s block: %w", probe.format, err)
		}
		if !found {
			continue
		}
		fields, err := decode(block, probe.format)
		if err != nil {
			return nil, fmt.Errorf("frontmatter: decode %s block: %w", probe.format, err)
		}
		return &Doc{
			Meta:   metaFromFields(fields),
			Fields: fields,
			Body:   strings.TrimLeft(body, "\n\r"),
			Format: probe.format,
		}, nil
	}

	return &Doc{Body: s, Format: FormatNone, Meta: defaultMeta()}, nil
}

// splitBlock returns the text between an opening delimiter on the first line
// and a closing delimiter line. found is false when the first line is not the
// delimiter; an opening delimiter without a closing one is an error.
func splitBlock(s, delim string) (block, body string, found bool, err error) {
	first, rest, hasMore := strings.Cut(s, "\n")
	if strings.TrimRight(first, "\r") != delim {
		return "", "", false, nil
	}
	if !hasMore {
		return "", "", true, fmt.Errorf("opening %q is never closed", delim)
	}
	var b strings.Builder
	for {
		line, next, more := strings.Cut(rest, "\n")
		if strings.TrimRight(line, "\r") == delim {
			return b.String(), next, true, nil
		}
		b.WriteString(line)
		b.WriteByte('\n')
		if !more {
			return "", "", true, fmt.Errorf("opening %q is never closed", delim)
		}
		rest = next
	}
}

func decode(block string, f Format) (map[string]any, error) {
	raw := make(map[string]any)
	var err error
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal([]byte(block), &raw)
	case FormatTOML:
		err = toml.Unmarshal([]byte(block), &raw)
	}
	if err != nil {
		return nil, err
	}
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		fields[strings.ToLower(k)] = v
	}
	return fields, nil
}

func defaultMeta() Meta {
	return Meta{Comments: true, Sharing: true, Footer: true}
}

func metaFromFields(fields map[string]any) Meta {
	m := defaultMeta()
	if s, ok := asString(fields["title"]); ok {
		m.Title = s
	}
	if t, ok := asTime(fields["date"]); ok {
		m.Date = t
	}
	if s, ok := asString(fields["slug"]); ok {
		m.Slug = s
	}
	m.Categories = asStringList(fields["categories"])
	m.Series = asStringList(fields["series"])
	if t, ok := asTime(fields["updated"]); ok {
		m.Updated = t
	}
	if b, ok := asBool(fields["published"]); ok && !b {
		m.Draft = true
	}
	if b, ok := asBool(fields["draft"]); ok && b {
		m.Draft = true
	}
	if b, ok := asBool(fields["comments"]); ok {
		m.Comments = b
	}
	if b, ok := asBool(fields["sharing"]); ok {
		m.Sharing = b
	}
	if b, ok := asBool(fields["footer"]); ok {
		m.Footer = b
	}
	return m
}

func asString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

func asBool(v any) (bool, bool) {
	b, ok := v.(bool)
	return b, ok
}

// asStringList accepts both a bare scalar and a sequence, the two shapes the
// old posts use interchangeably for categories.
func asStringList(v any) []string {
	var out []string
	add := func(item any) {
		if s, ok := asString(item); ok && s != "" {
			out = append(out, s)
		}
	}
	switch list := v.(type) {
	case nil:
	case []any:
		for _, item := range list {
			add(item)
		}
	case []string:
		for _, item := range list {
			add(item)
		}
	default:
		add(v)
	}
	return out
}

// dateLayouts covers the spellings accumulated across a decade of posts.
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// asTime accepts the native date types the YAML and TOML decoders produce as
// well as the string layouts found in older posts.
func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t, true
	case toml.LocalDate:
		return t.AsTime(time.UTC), true
	case toml.LocalDateTime:
		return t.AsTime(time.UTC), true
	case string:
		for _, layout := range dateLayouts {
			if parsed, err := time.ParseInLocation(layout, strings.TrimSpace(t), time.UTC); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
