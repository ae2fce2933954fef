package main

import (
	"bytes"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/manga-hub/manga-hub/internal/config"
	"github.com/manga-hub/manga-hub/internal/logging"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("MANGA_HUB_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsRejectsUnknown(t *testing.T) {
	if _, err := parseCLIFlags([]string{"--bogus"}); err == nil {
		t.Fatalf("未知参数应返回错误")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
}

func TestRunVersionOutput(t *testing.T) {
	useBufferWriters(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(stdOutBuffer().String(), "manga-hub") {
		t.Fatalf("version 输出应包含 manga-hub 标识")
	}
}

func TestRunFailsWhenContentRootMissing(t *testing.T) {
	useBufferWriters(t)
	missing := filepath.Join(t.TempDir(), "absent")
	configPath := writeConfigFile(t, `ContentRoot = "`+missing+`"`)

	if code := run(cliOptions{configPath: configPath}); code == 0 {
		t.Fatalf("内容目录不存在时应返回非零退出码")
	}
	if !strings.Contains(stdErrBuffer().String(), "初始化内容服务失败") {
		t.Fatalf("应输出内容目录错误，得到 %s", stdErrBuffer().String())
	}
}

func TestBuildServiceWiresPipeline(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>manga</h1>"), 0o644); err != nil {
		t.Fatalf("写入文件失败: %v", err)
	}
	configPath := writeConfigFile(t, `ContentRoot = "`+root+`"`)
	cfg, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	svc, err := buildService(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("buildService 失败: %v", err)
	}

	resp, err := svc.app.Test(httptest.NewRequest("GET", "/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != 200 || !bytes.Equal(body, []byte("<h1>manga</h1>")) {
		t.Fatalf("首页响应异常: %d %s", resp.StatusCode, body)
	}
	if resp.Header.Get("X-Request-ID") == "" || resp.Header.Get("X-Frame-Options") != "DENY" {
		t.Fatalf("中间件未生效")
	}
	if svc.cache.Stats().Entries != 1 {
		t.Fatalf("首页应写入内存缓存")
	}

	resp, err = svc.app.Test(httptest.NewRequest("GET", "/-/metrics", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ = io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `manga_hub_delivery_requests_total{outcome="buffered",status="200"} 1`) {
		t.Fatalf("指标未记录分发结果:\n%s", body)
	}
}
