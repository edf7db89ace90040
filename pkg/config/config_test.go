package config

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigDecodes(t *testing.T) {
	var buf bytes.Buffer
	if err := writeDefaultConfig(&buf); err != nil {
		t.Fatal(err)
	}
	c, err := Read(&buf)
	if err != nil {
		t.Fatalf("default configuration does not decode: %v", err)
	}
	if c.LibLLDB != "" || len(c.SourceMap) != 0 || c.EvaluateTimeout != 0 {
		t.Errorf("default configuration should leave everything unset: %#v", c)
	}
}

func TestReadConfig(t *testing.T) {
	const in = `
liblldb: /opt/llvm/lib/liblldb.so
preload: ["settings set auto-confirm true"]
source-map:
  - {from: /build, to: /home/me/src}
  - {from: /usr/src, to: /tmp/src}
evaluate-timeout: 2s
max-children: 50
expression-language: simple
`
	c, err := Read(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if c.LibLLDB != "/opt/llvm/lib/liblldb.so" {
		t.Errorf("liblldb = %q", c.LibLLDB)
	}
	if len(c.Preload) != 1 || c.Preload[0] != "settings set auto-confirm true" {
		t.Errorf("preload = %q", c.Preload)
	}
	if len(c.SourceMap) != 2 || c.SourceMap[1].From != "/usr/src" || c.SourceMap[1].To != "/tmp/src" {
		t.Errorf("source-map = %#v", c.SourceMap)
	}
	if c.EvaluateTimeout != 2*time.Second {
		t.Errorf("evaluate-timeout = %v", c.EvaluateTimeout)
	}
	if c.MaxChildren == nil || *c.MaxChildren != 50 {
		t.Errorf("max-children = %v", c.MaxChildren)
	}
	if c.ExpressionLanguage != "simple" {
		t.Errorf("expression-language = %q", c.ExpressionLanguage)
	}
}
