// Package integration provides embedded shell integration snippets.
package integration

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"
)

// ZshFzf contains the zsh shell integration script with fzf support.
//
//go:embed zsh-fzf.sh
var ZshFzf string

// Render renders the integration script for the running binary. It fails if
// zsh is not installed.
func Render() (string, error) {
	zsh, err := exec.LookPath("zsh")
	if err != nil {
		return "", err
	}

	binary, err := os.Executable()
	if err != nil {
		binary = "dirsize"
	}

	return render(filepath.ToSlash(zsh), filepath.ToSlash(binary))
}

// render substitutes the zsh interpreter and the dirsize binary into the script.
func render(zsh, binary string) (string, error) {
	tmpl, err := template.New("zsh-fzf").Option("missingkey=error").Parse(ZshFzf)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, map[string]any{
		"ZSH":    zsh,
		"Binary": binary,
	}); err != nil {
		return "", fmt.Errorf("executing template: %w", err)
	}

	return buf.String(), nil
}
