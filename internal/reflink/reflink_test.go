package reflink

import (
	"testing"
)

func TestExtract_UsesAndDefs(t *testing.T) {
	body := `I wrote about this [before][prior-post] and [elsewhere][].

[prior-post]: {{< baseurl >}}/blog/2020/12/30/the-more-things-change/
[elsewhere]: https://example.org/essay/
`
	links := Extract(body)
	if len(links.Uses) != 2 {
		t.Fatalf("len(uses) = %d, want 2", len(links.Uses))
	}
	if links.Uses[0].Ref != "prior-post" || links.Uses[0].Line != 1 {
		t.Errorf("use[0] = %+v", links.Uses[0])
	}
	if links.Uses[1].Ref != "elsewhere" {
		t.Errorf("collapsed use ref = %q, want elsewhere", links.Uses[1].Ref)
	}
	if len(links.Defs) != 2 {
		t.Fatalf("len(defs) = %d, want 2", len(links.Defs))
	}
	if links.Defs[0].Target != "{{< baseurl >}}/blog/2020/12/30/the-more-things-change/" {
		t.Errorf("def[0].target = %q", links.Defs[0].Target)
	}
	if links.Defs[0].Line != 3 {
		t.Errorf("def[0].line = %d, want 3", links.Defs[0].Line)
	}
}

func TestExtract_RefNormalization(t *testing.T) {
	body := "See [the post][Some  Ref].\n\n[some ref]: /blog/2020/01/02/x/\n"
	links := Extract(body)
	if len(links.Uses) != 1 || links.Uses[0].Ref != "some ref" {
		t.Fatalf("uses = %+v", links.Uses)
	}
	if len(links.Defs) != 1 || links.Defs[0].Ref != "some ref" {
		t.Fatalf("defs = %+v", links.Defs)
	}
}

func TestExtract_SkipsFencedCode(t *testing.T) {
	body := "```markdown\n[not a use][ref]\n[ref]: /blog/2020/01/02/x/\n```\nreal [use][r2]\n\n[r2]: /blog/2020/01/02/y/\n"
	links := Extract(body)
	if len(links.Uses) != 1 || links.Uses[0].Ref != "r2" {
		t.Errorf("uses = %+v", links.Uses)
	}
	if len(links.Defs) != 1 || links.Defs[0].Ref != "r2" {
		t.Errorf("defs = %+v", links.Defs)
	}
}

func TestExtract_FootnotesIgnored(t *testing.T) {
	body := "A claim.[^1]\n\n[^1]: The footnote text.\n"
	links := Extract(body)
	if len(links.Defs) != 0 {
		t.Errorf("footnote counted as def: %+v", links.Defs)
	}
	if len(links.Uses) != 0 {
		t.Errorf("footnote counted as use: %+v", links.Uses)
	}
}

func TestExtract_InlineLinks(t *testing.T) {
	body := `See [the docs](https://go.dev/doc/ "Go docs") and [local](/blog/2020/12/30/post/).`
	links := Extract(body)
	if len(links.Inline) != 2 {
		t.Fatalf("len(inline) = %d, want 2", len(links.Inline))
	}
	if links.Inline[0].Target != "https://go.dev/doc/" {
		t.Errorf("inline[0].target = %q", links.Inline[0].Target)
	}
	if links.Inline[1].Target != "/blog/2020/12/30/post/" {
		t.Errorf("inline[1].target = %q", links.Inline[1].Target)
	}
}

func TestExtract_DefTitleAndAngleBrackets(t *testing.T) {
	body := "[a]: <https://example.org/x> \"Title here\"\n[b]: /blog/2019/07/01/proxies/ 'single'\n"
	links := Extract(body)
	if len(links.Defs) != 2 {
		t.Fatalf("defs = %+v", links.Defs)
	}
	if links.Defs[0].Target != "https://example.org/x" {
		t.Errorf("def[0].target = %q", links.Defs[0].Target)
	}
	if links.Defs[1].Target != "/blog/2019/07/01/proxies/" {
		t.Errorf("def[1].target = %q", links.Defs[1].Target)
	}
}

func TestClassify(t *testing.T) {
	base := "https://blog.example.com"
	cases := []struct {
		target string
		kind   Kind
		path   string
	}{
		{"{{< baseurl >}}/blog/2020/12/30/post/", KindPlaceholder, "/blog/2020/12/30/post/"},
		{"{{<baseurl>}}/blog/2020/12/30/post/#heading", KindPlaceholder, "/blog/2020/12/30/post/"},
		{"/blog/2020/12/30/post/", KindSiteRelative, "/blog/2020/12/30/post/"},
		{"/about/?ref=x", KindSiteRelative, "/about/"},
		{"https://blog.example.com/blog/2020/12/30/post/", KindHardcodedBase, "/blog/2020/12/30/post/"},
		{"https://blog.example.com", KindHardcodedBase, "/"},
		{"https://other.example.org/", KindExternal, ""},
		{"mailto:someone@example.org", KindExternal, ""},
		{"#fragment-only", KindOther, ""},
		{"relative/path.png", KindOther, ""},
	}
	for _, tc := range cases {
		kind, path := Classify(tc.target, base)
		if kind != tc.kind || path != tc.path {
			t.Errorf("Classify(%q) = (%v, %q), want (%v, %q)", tc.target, kind, path, tc.kind, tc.path)
		}
	}
}

func TestClassify_BaseURLPrefixIsPathAware(t *testing.T) {
	// A different host sharing the prefix string must stay external.
	kind, _ := Classify("https://blog.example.community/post/", "https://blog.example.com")
	if kind != KindExternal {
		t.Errorf("kind = %v, want KindExternal", kind)
	}
}

func TestTargets_Order(t *testing.T) {
	links := &Links{
		Defs:   []Def{{Target: "/a/"}},
		Inline: []Inline{{Target: "/b/"}},
	}
	got := links.Targets()
	if len(got) != 2 || got[0] != "/a/" || got[1] != "/b/" {
		t.Errorf("targets = %v", got)
	}
}
