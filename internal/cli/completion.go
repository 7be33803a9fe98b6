package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var completionInstall bool

var completionCmd = &cobra.Command{
	Use:   "completion <shell>",
	Short: "Set up shell completions for tb",
	Long: `Set up shell tab-completions for tb commands, task ids and stage names.

Supported shells: bash, zsh, fish, powershell

  eval "$(tb completion bash)"     load into the current bash session
  tb completion zsh --install      install for zsh
  tb completion fish | source      load into the current fish session`,
	ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
	Args:      cobra.MaximumNArgs(1),
	RunE:      runCompletion,
}

// completionScript writes the script for shell to w.
func completionScript(shell string, w io.Writer) error {
	switch shell {
	case "bash":
		return rootCmd.GenBashCompletionV2(w, true)
	case "zsh":
		return rootCmd.GenZshCompletion(w)
	case "fish":
		return rootCmd.GenFishCompletion(w, true)
	case "powershell":
		return rootCmd.GenPowerShellCompletionWithDesc(w)
	default:
		return fmt.Errorf("unsupported shell %q (supported: bash, zsh, fish, powershell)", shell)
	}
}

// completionTarget is where --install writes the script for shell.
func completionTarget(shell, home string) (string, error) {
	switch shell {
	case "bash":
		return filepath.Join(home, ".local", "share", "bash-completion", "completions", "tb"), nil
	case "zsh":
		return filepath.Join(home, ".local", "share", "zsh", "site-functions", "_tb"), nil
	case "fish":
		return filepath.Join(home, ".config", "fish", "completions", "tb.fish"), nil
	case "powershell":
		return "", fmt.Errorf("automatic install is not supported for PowerShell; run 'tb completion powershell' and add the output to your profile")
	default:
		return "", fmt.Errorf("unsupported shell %q", shell)
	}
}

func runCompletion(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	shell := args[0]

	if !completionInstall {
		return completionScript(shell, cmd.OutOrStdout())
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("detecting home directory: %w", err)
	}
	target, err := completionTarget(shell, home)
	if err != nil {
		return err
	}
	if err := installCompletion(shell, target); err != nil {
		return err
	}

	fmt.Printf("%s completions installed to %s\n", shell, target)
	if shell == "zsh" {
		fmt.Printf("Ensure %s is in your fpath, then run: autoload -Uz compinit && compinit\n", filepath.Dir(target))
	}
	return nil
}

// installCompletion writes the script for shell to target, propagating
// close errors.
func installCompletion(shell, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("creating completion directory: %w", err)
	}
	f, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("creating completion file %s: %w", target, err)
	}

	writeErr := completionScript(shell, f)
	closeErr := f.Close()

	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing completion file %s: %w", target, closeErr)
	}
	return nil
}

func init() {
	completionCmd.Flags().BoolVar(&completionInstall, "install", false,
		"Install completions into your shell's completion directory")

	// Remove Cobra's default completion command and add ours.
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(completionCmd)
}
