package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rotisserie/eris"
)

// Config 浏览器启动参数
type Config struct {
	Headless bool
	ProxyURL string // 代理URL
	Width    int    // 视口宽度（CSS 像素）
	Height   int    // 视口高度（CSS 像素）
}

// DefaultConfig 返回 headless、1024x600 视口的默认配置
func DefaultConfig() Config {
	return Config{
		Headless: true,
		Width:    1024,
		Height:   600,
	}
}

// Browser 封装 rod.Browser 实例及其启动器
type Browser struct {
	cfg      Config
	browser  *rod.Browser
	launcher *launcher.Launcher
}

// New 启动 Chromium 并建立连接
func New(cfg Config) (*Browser, error) {
	l := launcher.New().Headless(cfg.Headless)
	if cfg.ProxyURL != "" {
		l = l.Proxy(cfg.ProxyURL)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, eris.Wrap(err, "browser: launch")
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, eris.Wrap(err, "browser: connect")
	}

	return &Browser{
		cfg:      cfg,
		browser:  b,
		launcher: l,
	}, nil
}

// NewPage 创建新的浏览器页面，并设置视口大小
func (b *Browser) NewPage() (*rod.Page, error) {
	page, err := b.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, eris.Wrap(err, "browser: create page")
	}

	if b.cfg.Width > 0 && b.cfg.Height > 0 {
		err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
			Width:  b.cfg.Width,
			Height: b.cfg.Height,
		})
		if err != nil {
			_ = page.Close()
			return nil, eris.Wrap(err, "browser: set viewport")
		}
	}
	return page, nil
}

// Close 关闭浏览器并清理资源
func (b *Browser) Close() error {
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			return eris.Wrap(err, "browser: close")
		}
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return nil
}
