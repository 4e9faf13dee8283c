package translate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const macEnv = "macOS; arm64; Browser: Firefox; Screen: 1920x1080 (width x height in pixels)"
const winEnv = "Windows; amd64; Browser: Edge"

func newTranslator(t *testing.T, rulesJSON string) *Translator {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.json")
	if rulesJSON != "" {
		require.NoError(t, os.WriteFile(path, []byte(rulesJSON), 0o644))
	}
	return New(path, zaptest.NewLogger(t))
}

func TestBuiltinCalculatorLaunch(t *testing.T) {
	tr := newTranslator(t, "")

	t.Run("macOS uses spotlight", func(t *testing.T) {
		script := tr.Translate("Open the Calculator app", macEnv)
		assert.Equal(t, `hotkey command space; wait 600ms; type "Calculator"; press enter`, script)
	})

	t.Run("other platforms use the run dialog", func(t *testing.T) {
		script := tr.Translate("please launch calculator", winEnv)
		assert.Equal(t, `hotkey win r; wait 600ms; type "calc"; press enter`, script)
	})

	t.Run("calculator without an open verb does not match", func(t *testing.T) {
		assert.Empty(t, tr.Translate("the calculator is nice", macEnv))
	})
}

func TestBuiltinTypeAndEnter(t *testing.T) {
	tr := newTranslator(t, "")

	t.Run("quoted payload", func(t *testing.T) {
		script := tr.Translate(`type "hello there" and press enter`, macEnv)
		assert.Equal(t, `type "hello there"; press enter`, script)
	})

	t.Run("bare arithmetic payload", func(t *testing.T) {
		script := tr.Translate("type 3+3 and press enter", macEnv)
		assert.Equal(t, `type "3+3"; press enter`, script)
	})

	t.Run("arithmetic with spaces is compacted", func(t *testing.T) {
		script := tr.Translate("type 12 * 4 then press enter", winEnv)
		assert.Equal(t, `type "12*4"; press enter`, script)
	})
}

func TestBuiltinHelloWorld(t *testing.T) {
	tr := newTranslator(t, "")
	assert.Equal(t, `type "Hello World"`, tr.Translate("now type Hello World", macEnv))
}

func TestNoMatchReturnsEmpty(t *testing.T) {
	tr := newTranslator(t, "")
	assert.Empty(t, tr.Translate("rearrange the desktop icons artistically", macEnv))
	assert.Empty(t, tr.Translate("", macEnv))
}

func TestFileRulesTakePrecedence(t *testing.T) {
	tr := newTranslator(t, `[
		{"patterns": ["calculator"], "script": "press f1"}
	]`)

	// The file rule matches before the calculator builtin.
	assert.Equal(t, "press f1", tr.Translate("open the calculator", macEnv))
}

func TestFileRuleMacOSVariantAndModifier(t *testing.T) {
	tr := newTranslator(t, `[
		{"patterns": ["new tab"], "script": "hotkey {modifier} t", "script_macos": "hotkey command t"}
	]`)

	assert.Equal(t, "hotkey command t", tr.Translate("open a new tab", macEnv))
	assert.Equal(t, "hotkey win t", tr.Translate("open a new tab", winEnv))
}

func TestFileRuleOrderFirstMatchWins(t *testing.T) {
	tr := newTranslator(t, `[
		{"patterns": ["tab"], "script": "press tab"},
		{"patterns": ["new tab"], "script": "hotkey command t"}
	]`)

	assert.Equal(t, "press tab", tr.Translate("open a new tab", macEnv))
}

func TestWrappedRuleFileFormat(t *testing.T) {
	tr := newTranslator(t, `{"rules": [{"patterns": ["escape"], "script": "press escape"}]}`)
	assert.Equal(t, "press escape", tr.Translate("hit escape now", macEnv))
}

func TestRuleFileReloadedPerCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.json")
	tr := New(path, zaptest.NewLogger(t))

	assert.Empty(t, tr.Translate("do the custom thing", macEnv))

	require.NoError(t, os.WriteFile(path, []byte(`[{"patterns": ["custom thing"], "script": "press f5"}]`), 0o644))
	assert.Equal(t, "press f5", tr.Translate("do the custom thing", macEnv))
}

func TestMalformedRuleFileFallsBackToBuiltins(t *testing.T) {
	tr := newTranslator(t, `{not json`)
	assert.Equal(t, `type "Hello World"`, tr.Translate("type hello world please", macEnv))
}

func TestLoadRulesMissingFileIsEmpty(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Empty(t, rules)
}
