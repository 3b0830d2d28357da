// Package catalog maintains PLUGIN_SUMMARY.html, the human-readable list
// of plugins with their descriptions and commands.
//
// The file is edited textually so hand-written markup around the plugin
// sections survives every write.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
)

// FileName is the catalog file inside the plugins directory.
const FileName = "PLUGIN_SUMMARY.html"

var (
	ErrNotFound = errors.New("plugin not in catalog")
	ErrExists   = errors.New("plugin already in catalog")
)

const cmdMarker = "<br><br>命令："

var (
	reHeading = regexp.MustCompile(`<h3 id="([^"]+)">`)
	reCount   = regexp.MustCompile(`共 \d+ 个`)
	reTOC     = regexp.MustCompile(`<div class="toc-list">([\s\S]*?)</div>\s*</div>`)
	reTOCLink = regexp.MustCompile(`<a href="#([^"]+)">`)
	reTail    = regexp.MustCompile(`<hr>\s*\n\s*</article>`)
)

const skeleton = `<!DOCTYPE html>
<html lang="zh-CN">
<head>
    <meta charset="utf-8">
    <title>TeleBox 插件列表</title>
</head>
<body>
    <article>
        <h1>TeleBox 插件</h1>
        <p>共 0 个插件</p>
        <div class="toc">
            <div class="toc-list">
            </div>
        </div>
        <hr>
    </article>
</body>
</html>
`

// Entry is one plugin section. Each command line has the form
// ".cmd description".
type Entry struct {
	Name        string
	Description string
	Commands    []string
}

// Catalog edits one PLUGIN_SUMMARY.html file.
type Catalog struct {
	path string
}

func Open(path string) *Catalog {
	return &Catalog{path: path}
}

func (c *Catalog) Path() string { return c.path }

func (c *Catalog) read() (string, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return skeleton, nil
	}
	if err != nil {
		return "", fmt.Errorf("read catalog: %w", err)
	}
	return string(data), nil
}

func (c *Catalog) write(html string) error {
	html = updateCount(html)
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.path, []byte(html), 0o644)
}

// updateCount rewrites every "共 N 个" with the number of plugin sections.
func updateCount(html string) string {
	n := len(reHeading.FindAllStringIndex(html, -1))
	return reCount.ReplaceAllLiteralString(html, "共 "+strconv.Itoa(n)+" 个")
}

// Names returns the plugins present in the file, sorted.
func (c *Catalog) Names() ([]string, error) {
	html, err := c.read()
	if err != nil {
		return nil, err
	}
	return namesIn(html), nil
}

func namesIn(html string) []string {
	var names []string
	for _, m := range reHeading.FindAllStringSubmatch(html, -1) {
		names = append(names, m[1])
	}
	sort.Strings(names)
	return names
}

func sectionPattern(name string) *regexp.Regexp {
	q := regexp.QuoteMeta(name)
	return regexp.MustCompile(`<h3 id="` + q + `">` + q + `</h3>\s*<p>([\s\S]*?)</p>\s*<hr>`)
}

// Get parses one plugin section.
func (c *Catalog) Get(name string) (Entry, error) {
	html, err := c.read()
	if err != nil {
		return Entry{}, err
	}
	m := sectionPattern(name).FindStringSubmatch(html)
	if m == nil {
		return Entry{}, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	desc, cmds := parseContent(m[1])
	return Entry{Name: name, Description: desc, Commands: cmds}, nil
}

// Add inserts a new section in name order and rebuilds the table of
// contents.
func (c *Catalog) Add(e Entry) error {
	if e.Name == "" || strings.ContainsAny(e.Name, `"<>`) {
		return fmt.Errorf("invalid plugin name %q", e.Name)
	}
	html, err := c.read()
	if err != nil {
		return err
	}
	names := namesIn(html)
	if slices.Contains(names, e.Name) {
		return fmt.Errorf("%s: %w", e.Name, ErrExists)
	}

	html = rebuildTOC(html, e.Name)

	block := "\n<h3 id=\"" + e.Name + "\">" + e.Name + "</h3>\n<p>" + toHTML(e.Description, e.Commands) + "</p>\n<hr>\n"
	names = append(names, e.Name)
	sort.Strings(names)
	idx := slices.Index(names, e.Name)

	if idx == len(names)-1 {
		loc := reTail.FindStringIndex(html)
		if loc == nil {
			return fmt.Errorf("catalog %s has no closing <hr></article>", c.path)
		}
		html = html[:loc[0]] + "<hr>\n" + block + "\n    </article>" + html[loc[1]:]
	} else {
		next := `<h3 id="` + names[idx+1] + `">`
		i := strings.Index(html, next)
		html = html[:i] + block + html[i:]
	}
	return c.write(html)
}

func rebuildTOC(html, add string) string {
	m := reTOC.FindStringSubmatchIndex(html)
	if m == nil {
		return html
	}
	var links []string
	for _, l := range reTOCLink.FindAllStringSubmatch(html[m[2]:m[3]], -1) {
		links = append(links, l[1])
	}
	if add != "" && !slices.Contains(links, add) {
		links = append(links, add)
	}
	sort.Strings(links)
	links = slices.Compact(links)

	var b strings.Builder
	b.WriteString("<div class=\"toc-list\">\n")
	for _, n := range links {
		b.WriteString(`                <a href="#` + n + `">` + n + "</a>\n")
	}
	b.WriteString("            </div>\n        </div>")
	return html[:m[0]] + b.String() + html[m[1]:]
}

// Update replaces the description and commands of an existing section.
func (c *Catalog) Update(e Entry) error {
	html, err := c.read()
	if err != nil {
		return err
	}
	re := sectionPattern(e.Name)
	loc := re.FindStringIndex(html)
	if loc == nil {
		return fmt.Errorf("%s: %w", e.Name, ErrNotFound)
	}
	section := "<h3 id=\"" + e.Name + "\">" + e.Name + "</h3>\n<p>" + toHTML(e.Description, e.Commands) + "</p>\n<hr>"
	return c.write(html[:loc[0]] + section + html[loc[1]:])
}

// Delete removes the section and its table-of-contents link.
func (c *Catalog) Delete(name string) error {
	html, err := c.read()
	if err != nil {
		return err
	}
	if !slices.Contains(namesIn(html), name) {
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	q := regexp.QuoteMeta(name)
	html = regexp.MustCompile(`\s*<a href="#`+q+`">`+q+`</a>`).ReplaceAllLiteralString(html, "")
	html = regexp.MustCompile(`\s*<h3 id="`+q+`">`+q+`</h3>\s*<p>[\s\S]*?</p>\s*<hr>`).ReplaceAllLiteralString(html, "")
	return c.write(html)
}

// Stats compares registered plugins with the file.
type Stats struct {
	Registered int
	InFile     int
	Missing    []string // registered but not in the file
	Extra      []string // in the file but not registered
}

func (c *Catalog) Stats(registered []string) (Stats, error) {
	inFile, err := c.Names()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Registered: len(registered), InFile: len(inFile)}
	for _, n := range registered {
		if !slices.Contains(inFile, n) {
			st.Missing = append(st.Missing, n)
		}
	}
	for _, n := range inFile {
		if !slices.Contains(registered, n) {
			st.Extra = append(st.Extra, n)
		}
	}
	sort.Strings(st.Missing)
	return st, nil
}

// Sync adds every entry missing from the file and returns the names added.
// Sections for unknown plugins are left alone.
func (c *Catalog) Sync(entries []Entry) ([]string, error) {
	have, err := c.Names()
	if err != nil {
		return nil, err
	}
	var added []string
	for _, e := range entries {
		if slices.Contains(have, e.Name) {
			continue
		}
		if err := c.Add(e); err != nil {
			return added, fmt.Errorf("add %s: %w", e.Name, err)
		}
		added = append(added, e.Name)
	}
	return added, nil
}

var (
	htmlEscaper   = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	htmlUnescaper = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")
)

// toHTML renders a description and ".cmd description" lines.
func toHTML(desc string, commands []string) string {
	out := htmlEscaper.Replace(desc)
	var parts []string
	for _, cmd := range commands {
		cmd = strings.TrimSpace(cmd)
		if cmd == "" {
			continue
		}
		name, rest, _ := strings.Cut(cmd, " ")
		parts = append(parts, "<code>"+htmlEscaper.Replace(name)+"</code> "+htmlEscaper.Replace(rest))
	}
	if len(parts) == 0 {
		return out
	}
	return out + cmdMarker + strings.Join(parts, "<br>")
}

// parseContent is the inverse of toHTML.
func parseContent(content string) (string, []string) {
	desc, cmdHTML, found := strings.Cut(content, cmdMarker)
	var cmds []string
	if found {
		cmdHTML = strings.NewReplacer("<code>", "", "</code>", "").Replace(cmdHTML)
		for _, c := range strings.Split(cmdHTML, "<br>") {
			cmds = append(cmds, strings.TrimSpace(htmlUnescaper.Replace(c)))
		}
	}
	return htmlUnescaper.Replace(desc), cmds
}
