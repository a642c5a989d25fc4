package agent

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/rahul/whatsmap/internal/tools"
)

// PromptManager loads prompt overrides from a directory. Missing files fall
// back to the built-in prompts.
type PromptManager struct {
	Directory string
	logger    *zap.Logger
}

func NewPromptManager(dir string, logger *zap.Logger) *PromptManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromptManager{Directory: dir, logger: logger}
}

// GetClassifierPrompt joins the context files and classifier.md into one
// system prompt. Block templates (*.tmpl) are not part of it.
func (pm *PromptManager) GetClassifierPrompt() (string, error) {
	files, err := os.ReadDir(pm.Directory)
	if err != nil {
		return "", fmt.Errorf("failed to read prompts directory: %v", err)
	}

	// identity and market context first, the classification directive last
	order := map[string]int{
		"identity.md":   1,
		"market.md":     2,
		"personas.md":   3,
		"classifier.md": 4,
	}

	sort.Slice(files, func(i, j int) bool {
		oi, okI := order[files[i].Name()]
		oj, okJ := order[files[j].Name()]
		if okI && okJ {
			return oi < oj
		}
		if okI {
			return true
		}
		if okJ {
			return false
		}
		return files[i].Name() < files[j].Name()
	})

	var contents []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".md") {
			continue
		}
		path := filepath.Join(pm.Directory, f.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			pm.logger.Warn("failed to read prompt file", zap.String("path", path), zap.Error(err))
			continue
		}
		contents = append(contents, strings.TrimSpace(string(data)))
	}

	if len(contents) == 0 {
		return "", fmt.Errorf("no prompt files found in %s", pm.Directory)
	}

	return strings.Join(contents, "\n\n---\n\n"), nil
}

// BlockSpecs returns the generated block specs with any <tool>.tmpl file in
// the directory replacing the built-in template.
func (pm *PromptManager) BlockSpecs() []tools.BlockSpec {
	specs := make([]tools.BlockSpec, len(tools.DefaultBlocks))
	copy(specs, tools.DefaultBlocks)

	for i, spec := range specs {
		path := filepath.Join(pm.Directory, string(spec.Name)+".tmpl")
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if tmpl := strings.TrimSpace(string(data)); tmpl != "" {
			specs[i].Template = tmpl
			pm.logger.Info("using block template override", zap.String("tool", string(spec.Name)), zap.String("path", path))
		}
	}
	return specs
}
