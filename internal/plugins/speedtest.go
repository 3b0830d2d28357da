package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/coopco/telebox/internal/jsonfile"
	"github.com/coopco/telebox/internal/telegram"
)

const speedtestTimeout = 3 * time.Minute

type speedtestConfig struct {
	DefaultServer int `json:"defaultServer,omitempty"`
}

// speedtestCache holds the plugin config in memory after the first read.
type speedtestCache struct {
	path string

	mu     sync.Mutex
	loaded bool
	cfg    speedtestConfig
}

func (c *speedtestCache) get() (speedtestConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		if _, err := jsonfile.Load(c.path, &c.cfg); err != nil {
			return speedtestConfig{}, err
		}
		c.loaded = true
	}
	return c.cfg, nil
}

func (c *speedtestCache) set(cfg speedtestConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := jsonfile.Save(c.path, cfg); err != nil {
		return err
	}
	c.cfg, c.loaded = cfg, true
	return nil
}

// Speedtest runs the Ookla speedtest CLI.
type Speedtest struct {
	deps  *Deps
	cache *speedtestCache
}

func NewSpeedtest(d *Deps) *Speedtest {
	return &Speedtest{
		deps:  d,
		cache: &speedtestCache{path: filepath.Join(d.PluginDir("speedtest"), "config.json")},
	}
}

func (s *Speedtest) Name() string        { return "speedtest" }
func (s *Speedtest) Description() string { return "使用 Ookla speedtest 测试服务器网速" }

func (s *Speedtest) Commands() []Command {
	return []Command{{
		Name:    "speedtest",
		Summary: "网速测试",
		Usage: []string{
			"speedtest [服务器ID]",
			"speedtest list",
			"speedtest set <服务器ID>",
			"speedtest clear",
		},
		Handler: s.handle,
	}}
}

func (s *Speedtest) handle(ctx context.Context, c *Context) error {
	switch sub := strings.ToLower(c.Arg(0)); sub {
	case "list", "ls":
		return s.list(ctx, c)
	case "set":
		id, err := strconv.Atoi(c.Arg(1))
		if err != nil || id <= 0 {
			return usagef("无效的服务器 ID")
		}
		if err := s.cache.set(speedtestConfig{DefaultServer: id}); err != nil {
			return err
		}
		return c.Editf(ctx, "✅ 默认服务器: %d", id)
	case "clear":
		if err := s.cache.set(speedtestConfig{}); err != nil {
			return err
		}
		return c.Edit(ctx, "✅ 已清除默认服务器")
	case "help":
		return errUsage
	}

	server := 0
	if a := c.Arg(0); a != "" {
		id, err := strconv.Atoi(a)
		if err != nil || id <= 0 {
			return usagef("无效的服务器 ID: %s", a)
		}
		server = id
	} else {
		cfg, err := s.cache.get()
		if err != nil {
			return err
		}
		server = cfg.DefaultServer
	}
	if err := c.Edit(ctx, "⏳ 正在测速…"); err != nil {
		return err
	}
	out, err := s.exec(ctx, server)
	if err != nil {
		return err
	}
	return c.Edit(ctx, out)
}

func (s *Speedtest) exec(ctx context.Context, server int) (string, error) {
	args := []string{"--format=json", "--accept-license", "--accept-gdpr"}
	if server > 0 {
		args = append(args, "-s", strconv.Itoa(server))
	}
	ctx, cancel := context.WithTimeout(ctx, speedtestTimeout)
	defer cancel()
	raw, err := s.deps.Exec.Run(ctx, "speedtest", args...)
	if err != nil {
		return "", fmt.Errorf("speedtest 执行失败: %w", err)
	}
	return renderSpeedtest(raw)
}

// lastJSONLine picks the result object out of output that may carry log
// lines before it.
func lastJSONLine(raw []byte) string {
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); gjson.Valid(l) && strings.HasPrefix(l, "{") {
			return l
		}
	}
	return ""
}

func mbps(bandwidth float64) float64 {
	return bandwidth * 8 / 1e6
}

func renderSpeedtest(raw []byte) (string, error) {
	doc := lastJSONLine(raw)
	if doc == "" {
		return "", fmt.Errorf("speedtest 输出无法解析")
	}
	if msg := gjson.Get(doc, "error").String(); msg != "" {
		return "", fmt.Errorf("speedtest: %s", msg)
	}
	r := gjson.Parse(doc)
	if r.Get("type").String() != "result" {
		return "", fmt.Errorf("speedtest 输出缺少测速结果")
	}
	var b strings.Builder
	b.WriteString("<b>⚡ 测速结果</b>\n")
	b.WriteString(fmt.Sprintf("\n下载: <b>%.2f Mbps</b>", mbps(r.Get("download.bandwidth").Float())))
	b.WriteString(fmt.Sprintf("\n上传: <b>%.2f Mbps</b>", mbps(r.Get("upload.bandwidth").Float())))
	b.WriteString(fmt.Sprintf("\n延迟: %.2f ms (抖动 %.2f ms)", r.Get("ping.latency").Float(), r.Get("ping.jitter").Float()))
	if loss := r.Get("packetLoss"); loss.Exists() {
		b.WriteString(fmt.Sprintf("\n丢包: %.1f%%", loss.Float()))
	}
	b.WriteString("\nISP: " + telegram.EscapeHTML(r.Get("isp").String()))
	b.WriteString(fmt.Sprintf("\n服务器: %s - %s, %s (%d)",
		telegram.EscapeHTML(r.Get("server.name").String()),
		telegram.EscapeHTML(r.Get("server.location").String()),
		telegram.EscapeHTML(r.Get("server.country").String()),
		r.Get("server.id").Int()))
	if u := r.Get("result.url").String(); u != "" {
		b.WriteString("\n" + `<a href="` + telegram.EscapeHTML(u) + `">查看结果</a>`)
	}
	return b.String(), nil
}

func (s *Speedtest) list(ctx context.Context, c *Context) error {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	raw, err := s.deps.Exec.Run(ctx, "speedtest", "-L", "--format=json", "--accept-license", "--accept-gdpr")
	if err != nil {
		return fmt.Errorf("speedtest 执行失败: %w", err)
	}
	doc := lastJSONLine(raw)
	servers := gjson.Get(doc, "servers").Array()
	if len(servers) == 0 {
		return c.Edit(ctx, "没有可用的测速服务器")
	}
	cfg, err := s.cache.get()
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("<b>🌐 附近的测速服务器</b>\n")
	for _, sv := range servers {
		id := sv.Get("id").Int()
		mark := ""
		if int(id) == cfg.DefaultServer {
			mark = " ⭐"
		}
		b.WriteString(fmt.Sprintf("\n%s %s - %s, %s%s",
			telegram.Code(strconv.FormatInt(id, 10)),
			telegram.EscapeHTML(sv.Get("name").String()),
			telegram.EscapeHTML(sv.Get("location").String()),
			telegram.EscapeHTML(sv.Get("country").String()),
			mark))
	}
	return c.Edit(ctx, b.String())
}
