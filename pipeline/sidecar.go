package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"srs_generator/document"
	"srs_generator/logger"
	"srs_generator/srs"
)

var ErrInvalidSidecar = errors.New("invalid sections file")

// SidecarPath "out/app.docx" -> "out/app.sections.json"
func SidecarPath(docPath string) string {
	return strings.TrimSuffix(docPath, filepath.Ext(docPath)) + ".sections.json"
}

// WriteSidecar 原子写入章节上下文。
func WriteSidecar(path string, sc srs.SectionContext) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".sections-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// LoadSidecar 读取章节文件。这里是外部边界：非字符串的值会尝试恢复其中的
// 第一个字符串，恢复不了就跳过该章节并记录错误，不会中断。
func LoadSidecar(path string, log *slog.Logger) (srs.SectionContext, error) {
	log = logger.OrDiscard(log).With("component", "sidecar", "path", path)
	data, err := os.ReadFile(path)
	if err != nil {
		return srs.SectionContext{}, err
	}
	if !gjson.ValidBytes(data) {
		return srs.SectionContext{}, fmt.Errorf("%w: %s is not valid JSON", ErrInvalidSidecar, path)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return srs.SectionContext{}, fmt.Errorf("%w: %s is not a JSON object", ErrInvalidSidecar, path)
	}

	root.ForEach(func(k, _ gjson.Result) bool {
		if _, ok := srs.ParseSectionKey(k.String()); !ok && k.String() != srs.DiagramsKey {
			log.Warn("ignoring unknown key", "key", k.String())
		}
		return true
	})

	sc := srs.NewSectionContext()
	for _, key := range srs.CanonicalOrder {
		v := root.Get(string(key))
		if !v.Exists() {
			continue
		}
		text, recovered, err := document.CoerceText(v.Value())
		if err != nil {
			log.Error("section value is not text, skipping", "section", key, "error", err)
			continue
		}
		if recovered {
			log.Warn("section value was not a string, recovered nested text", "section", key)
		}
		if sc, err = sc.With(key, text); err != nil {
			return srs.SectionContext{}, err
		}
	}

	root.Get(srs.DiagramsKey).ForEach(func(k, v gjson.Result) bool {
		kind, err := srs.ParseDiagramKind(k.String())
		if err != nil {
			log.Warn("ignoring unknown diagram", "kind", k.String())
			return true
		}
		if v.Type == gjson.String && strings.TrimSpace(v.Str) != "" {
			sc = sc.WithDiagram(kind, v.Str)
		}
		return true
	})
	return sc, nil
}
