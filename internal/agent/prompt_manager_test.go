package agent

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rahul/whatsmap/internal/tools"
)

func TestPromptManager_GetClassifierPrompt(t *testing.T) {
	tempDir := t.TempDir()

	files := map[string]string{
		"identity.md":            "Identity Content",
		"market.md":              "Market Content",
		"personas.md":            "Personas Content",
		"classifier.md":          "Classifier Content",
		"extra.md":               "Extra Content",
		"financial_summary.tmpl": "Template Content",
	}

	for name, content := range files {
		err := os.WriteFile(filepath.Join(tempDir, name), []byte(content), 0644)
		if err != nil {
			t.Fatal(err)
		}
	}

	pm := NewPromptManager(tempDir, nil)
	prompt, err := pm.GetClassifierPrompt()
	if err != nil {
		t.Fatal(err)
	}

	expectedParts := []string{
		"Identity Content",
		"Market Content",
		"Personas Content",
		"Classifier Content",
		"Extra Content",
	}

	for _, part := range expectedParts {
		if !strings.Contains(prompt, part) {
			t.Errorf("Prompt missing expected part: %s", part)
		}
	}
	if strings.Contains(prompt, "Template Content") {
		t.Error("Block templates should not be part of the classifier prompt")
	}

	// Verify order
	if strings.Index(prompt, "Identity Content") >= strings.Index(prompt, "Market Content") {
		t.Error("Identity should be before Market")
	}
	if strings.Index(prompt, "Personas Content") >= strings.Index(prompt, "Classifier Content") {
		t.Error("Personas should be before Classifier")
	}
	if strings.Index(prompt, "Classifier Content") >= strings.Index(prompt, "Extra Content") {
		t.Error("Classifier should be before unordered files")
	}
}

func TestPromptManager_MissingDirectory(t *testing.T) {
	pm := NewPromptManager(filepath.Join(t.TempDir(), "nope"), nil)
	if _, err := pm.GetClassifierPrompt(); err == nil {
		t.Error("Expected error for missing directory")
	}

	specs := pm.BlockSpecs()
	if len(specs) != len(tools.DefaultBlocks) {
		t.Fatalf("Expected %d specs, got %d", len(tools.DefaultBlocks), len(specs))
	}
}

func TestPromptManager_BlockSpecsOverride(t *testing.T) {
	tempDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tempDir, "broker_tools.tmpl"), []byte("Pitch {{.input}}"), 0644); err != nil {
		t.Fatal(err)
	}

	for _, spec := range NewPromptManager(tempDir, nil).BlockSpecs() {
		if spec.Name == tools.ToolBrokerTools && spec.Template != "Pitch {{.input}}" {
			t.Errorf("Expected override, got %q", spec.Template)
		}
		if spec.Name == tools.ToolSummary && !strings.Contains(spec.Template, "{{.input}}") {
			t.Errorf("Expected built-in summary template, got %q", spec.Template)
		}
	}

	// The package-level defaults are untouched.
	for _, spec := range tools.DefaultBlocks {
		if spec.Template == "Pitch {{.input}}" {
			t.Error("Override leaked into DefaultBlocks")
		}
	}
}
