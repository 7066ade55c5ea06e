package extract

import (
	"net/url"
	"strings"
	"testing"

	"golang.org/x/net/html"
)

func mustDoc(t *testing.T, markup, pageURL string) *Document {
	t.Helper()
	doc, err := NewDocument([]byte(markup), "text/html; charset=utf-8", pageURL)
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	return doc
}

func mustFragment(t *testing.T, markup string) *html.Node {
	t.Helper()
	n, err := parseFragment(markup)
	if err != nil {
		t.Fatalf("parseFragment: %v", err)
	}
	return n
}

const articlePage = `<!DOCTYPE html><html><head><title>Rivers of the North</title></head><body>
<nav class="site-nav"><a href="/">Home</a> <a href="/about">About</a></nav>
<div class="article" id="story">
<p>The northern rivers freeze for almost half of the year, and the communities along their banks have learned to read the ice the way sailors read the sky.</p>
<p>Every spring the break-up arrives with a roar that can be heard for miles, and for a few days the water carries whole slabs of ice downstream toward the sea.</p>
<p>Fishermen wait for the channels to clear before they set their nets, and the first catch of the season is still shared among neighbours as it was generations ago.</p>
<p>Read the <a href="/rivers/history">full history</a> or see the <img src="images/map.png"> map.</p>
</div>
<div class="sidebar"><a href="/x">Related</a></div>
<footer>Copyright</footer>
<script>track()</script>
</body></html>`

func TestDocument_Title(t *testing.T) {
	doc := mustDoc(t, articlePage, "http://example.com/news/rivers")
	if got := doc.Title(); got != "Rivers of the North" {
		t.Fatalf("Title: got %q", got)
	}
}

func TestExtractor_Identify(t *testing.T) {
	// WHAT: Heuristic identification finds the story and leaves page chrome out.
	doc := mustDoc(t, articlePage, "http://example.com/news/rivers")
	var e Extractor
	art, ok := e.Identify(doc)
	if !ok || art.Node == nil {
		t.Fatal("expected content")
	}
	text := collectText(art.Node)
	if !strings.Contains(text, "northern rivers freeze") {
		t.Errorf("content missing story text: %q", text)
	}
	if strings.Contains(text, "track()") {
		t.Error("script leaked into content")
	}
}

func TestExtractor_Identify_LeavesDocument(t *testing.T) {
	doc := mustDoc(t, articlePage, "http://example.com/news/rivers")
	before := OuterHTML(doc.Root)
	var e Extractor
	e.Identify(doc)
	if OuterHTML(doc.Root) != before {
		t.Fatal("Identify mutated the page tree")
	}
}

func TestFindDensestNode(t *testing.T) {
	doc := mustDoc(t, articlePage, "http://example.com/")
	n := findDensestNode(doc.Body(), 100)
	if n == nil {
		t.Fatal("expected a node")
	}
	if getAttr(n, "id") != "story" {
		t.Fatalf("densest node: got <%s id=%q>", n.Data, getAttr(n, "id"))
	}
}

func TestIsBoilerplate(t *testing.T) {
	frag := mustFragment(t, `<div class="main-navigation"></div><div class="content"></div><nav></nav><p id="comments"></p>`)
	var got []bool
	for c := frag.FirstChild; c != nil; c = c.NextSibling {
		got = append(got, isBoilerplate(c))
	}
	want := []bool{true, false, true, true}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("child %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		in       string
		auto     bool
		scoped   bool
		wantExpr string
	}{
		{"", true, false, ""},
		{"auto", true, false, ""},
		{"article", false, false, "//article"},
		{"div#main", false, false, "//div[@id='main']"},
		{"#main", false, false, "//*[@id='main']"},
		{"div.article", false, false, "//div[contains(concat(' ', normalize-space(@class), ' '), ' article ')]"},
		{"auto p.lead", true, true, "//p[contains(concat(' ', normalize-space(@class), ' '), ' lead ')]"},
		{"div.story > p", false, false, "div.story > p"},
	}
	for _, tt := range tests {
		p, err := CompilePattern(tt.in, nil)
		if err != nil {
			t.Errorf("CompilePattern(%q): %v", tt.in, err)
			continue
		}
		if p.Auto != tt.auto || p.Scoped != tt.scoped {
			t.Errorf("CompilePattern(%q): auto=%v scoped=%v", tt.in, p.Auto, p.Scoped)
		}
		got := ""
		if p.Query != nil {
			got = p.Query.String()
		}
		if got != tt.wantExpr {
			t.Errorf("CompilePattern(%q): query %q, want %q", tt.in, got, tt.wantExpr)
		}
	}
}

func TestCompilePattern_Invalid(t *testing.T) {
	if _, err := CompilePattern("div[", nil); err == nil {
		t.Fatal("expected error for broken selector")
	}
}

func TestPatternQuery_Matches(t *testing.T) {
	doc := mustDoc(t, articlePage, "http://example.com/")
	for _, pat := range []string{"div.article", "div#story", "#story", "body > div.article"} {
		p, err := CompilePattern(pat, nil)
		if err != nil {
			t.Fatalf("%s: %v", pat, err)
		}
		nodes, err := p.Query.QueryAll(doc.Root)
		if err != nil {
			t.Fatalf("%s: %v", pat, err)
		}
		if len(nodes) != 1 || getAttr(nodes[0], "id") != "story" {
			t.Errorf("%s: got %d nodes", pat, len(nodes))
		}
	}
}

func TestPatternQuery_NoMatch(t *testing.T) {
	doc := mustDoc(t, `<html><body><div class="articles">x</div></body></html>`, "http://example.com/")
	p, _ := CompilePattern("div.article", nil)
	nodes, err := p.Query.QueryAll(doc.Root)
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 0 {
		t.Fatalf("class match must be whole-word: got %d nodes", len(nodes))
	}
}

func TestPrepare_StripsScripts(t *testing.T) {
	frag := mustFragment(t, `<div class="c"><p onclick="x()">Hi</p><script>bad()</script><img src="a.png" onerror="y()"></div>`)
	n, err := Prepare(frag.FirstChild)
	if err != nil {
		t.Fatal(err)
	}
	out := OuterHTML(n)
	for _, bad := range []string{"onclick", "script", "onerror", "bad()"} {
		if strings.Contains(out, bad) {
			t.Errorf("Prepare left %q in %s", bad, out)
		}
	}
	if !strings.HasPrefix(out, `<div class="c">`) {
		t.Errorf("root element lost: %s", out)
	}
}

func TestClean(t *testing.T) {
	frag := mustFragment(t, `<p>Keep</p><div class="share-buttons">Share</div><script>x()</script><aside>Ad</aside><p>Also</p>`)
	Clean(frag)
	out := InnerHTML(frag)
	if out != "<p>Keep</p><p>Also</p>" {
		t.Fatalf("Clean: got %s", out)
	}
}

func TestClean_KeepsArticleHeaderAndLookalikeClasses(t *testing.T) {
	// WHAT: Hints match whole class words and headers inside the root survive.
	// WHY: "commentary" is article text, not a comment thread, and a story's
	// <header> carries its title.
	frag := mustFragment(t, `<header><h1>Title</h1></header><div class="commentary">Analysis</div><div class="post_comments">Thread</div><div class="share-buttons">Share</div><p>Body</p>`)
	Clean(frag)
	want := `<header><h1>Title</h1></header><div class="commentary">Analysis</div><p>Body</p>`
	if got := InnerHTML(frag); got != want {
		t.Fatalf("Clean:\n got %s\nwant %s", got, want)
	}
}

func TestFootnotes(t *testing.T) {
	frag := mustFragment(t, `<p>See <a href="http://a.example/x">this</a> and <a href="#top">top</a>.</p>`)
	if n := Footnotes(frag); n != 1 {
		t.Fatalf("footnotes: got %d", n)
	}
	out := InnerHTML(frag)
	want := `<p>See this<sup>[1]</sup> and top.</p><ol class="footnotes"><li><a href="http://a.example/x">http://a.example/x</a></li></ol>`
	if out != want {
		t.Fatalf("Footnotes:\n got %s\nwant %s", out, want)
	}
}

func TestMakeAbsolute(t *testing.T) {
	base, _ := url.Parse("http://example.com/news/story.html")
	frag := mustFragment(t, `<p><a href="other.html">a</a><a href=" /root path ">b</a><img src="../img/x.png"><a href="https://cdn.example/y">c</a></p>`)
	n := MakeAbsolute(base, frag)
	if n != 3 {
		t.Errorf("rewritten: got %d, want 3", n)
	}
	want := `<p><a href="http://example.com/news/other.html">a</a><a href="http://example.com/root%20path">b</a><img src="http://example.com/img/x.png"/><a href="https://cdn.example/y">c</a></p>`
	if got := InnerHTML(frag); got != want {
		t.Fatalf("MakeAbsolute:\n got %s\nwant %s", got, want)
	}
}

func TestMakeAbsolute_Root(t *testing.T) {
	base, _ := url.Parse("http://example.com/a/")
	frag := mustFragment(t, `<img src="b.png">`)
	img := frag.FirstChild
	MakeAbsolute(base, img)
	if got := getAttr(img, "src"); got != "http://example.com/a/b.png" {
		t.Fatalf("root img: got %q", got)
	}
}

func TestMakeAbsolute_Idempotent(t *testing.T) {
	// WHAT: A second pass over an absolutised fragment changes nothing.
	base, _ := url.Parse("http://example.com/news/")
	frag := mustFragment(t, `<a href="x">x</a><a href="mailto:me@example.com">m</a><img src="/i.png">`)
	MakeAbsolute(base, frag)
	first := InnerHTML(frag)
	if n := MakeAbsolute(base, frag); n != 0 {
		t.Errorf("second pass rewrote %d attributes", n)
	}
	if InnerHTML(frag) != first {
		t.Fatalf("second pass changed output")
	}
}

func TestMakeAbsolute_AbsoluteUnchanged(t *testing.T) {
	base, _ := url.Parse("http://example.com/")
	in := `<a href="http://other.example/a">a</a><img src="HTTPS://cdn.example/b.png"/>`
	frag := mustFragment(t, in)
	MakeAbsolute(base, frag)
	if got := InnerHTML(frag); got != in {
		t.Fatalf("absolute links changed:\n got %s\nwant %s", got, in)
	}
}

func TestMakeAbsolute_Unresolvable(t *testing.T) {
	base, _ := url.Parse("http://example.com/")
	frag := mustFragment(t, `<a href="%zz">bad</a>`)
	MakeAbsolute(base, frag)
	if got := getAttr(frag.FirstChild, "href"); got != "%zz" {
		t.Fatalf("unresolvable value must be kept: got %q", got)
	}
}

func TestToUTF8(t *testing.T) {
	latin1 := []byte("<p>caf\xe9 \x93quoted\x94</p>")
	got := string(ToUTF8(latin1, "text/html; charset=ISO-8859-1"))
	if got != "<p>café “quoted”</p>" {
		t.Fatalf("iso-8859-1: got %q", got)
	}

	xml := []byte(`<?xml version="1.0" encoding="iso-8859-1"?><p>caf` + "\xe9" + `</p>`)
	if got := string(ToUTF8(xml, "")); !strings.Contains(got, "café") {
		t.Fatalf("xml declaration: got %q", got)
	}

	meta := []byte(`<html><head><meta charset="windows-1252"></head><body>caf` + "\xe9" + `</body></html>`)
	if got := string(ToUTF8(meta, "text/html")); !strings.Contains(got, "café") {
		t.Fatalf("meta: got %q", got)
	}

	plain := []byte("<p>déjà vu</p>")
	if got := string(ToUTF8(plain, "")); got != "<p>déjà vu</p>" {
		t.Fatalf("utf-8 passthrough: got %q", got)
	}
}

func TestPlaceholder(t *testing.T) {
	if got := OuterHTML(Placeholder("Sorry, could not extract content")); got != "<p>Sorry, could not extract content</p>" {
		t.Fatalf("Placeholder: got %s", got)
	}
}
