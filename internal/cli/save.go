package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
)

var (
	saveInput string
	saveForce bool
)

var saveCmd = &cobra.Command{
	Use:   "save <path>",
	Short: "Save a task document, moving it if its stage changed",
	Long: `Save new content for a task document. The content comes from --input (a
file, or - for stdin); without --input the file's current content is used,
which is useful together with the metadata flags.

If the saved frontmatter names a different stage than the folder the file is
in, the file is moved to that stage's folder. The save is refused when the
file changed on disk since it was last loaded by this process; --force
overwrites anyway.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if Engine == nil {
			return fmt.Errorf("transition engine not initialized")
		}

		path := args[0]
		loaded, err := Engine.Load(path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}

		content := loaded.Content
		if saveInput != "" {
			content, err = readInput(cmd, saveInput)
			if err != nil {
				return err
			}
		}

		req := core.SaveRequest{
			Path:           loaded.Path,
			Content:        content,
			CloseAfterSave: true,
			Patch:          patchFromFlags(cmd),
		}
		save := Engine.Save
		if saveForce {
			save = Engine.ForceSave
		}

		res, err := save(commandContext(cmd), req)
		if err != nil {
			var mf *core.MoveFailedError
			if errors.As(err, &mf) && !mf.Reverted {
				fmt.Fprintf(os.Stderr, "Warning: %s frontmatter still says %s but the file is in %s; fix it by hand.\n",
					mf.TaskID, mf.Attempted, mf.Retained)
			}
			return fmt.Errorf("saving %s: %w", path, err)
		}

		// The written file may not read back as a task.
		name := res.Path
		if res.Task != nil {
			name = res.Task.ID
		}
		if res.Moved {
			fmt.Printf("Saved and moved %s: %s -> %s\n", name, res.From, res.To)
		} else {
			fmt.Printf("Saved %s\n", name)
		}
		fmt.Printf("  File: %s\n", res.Path)
		return nil
	},
}

// readInput reads from the file at name, or stdin for "-".
func readInput(cmd *cobra.Command, name string) (string, error) {
	if name == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", name, err)
	}
	return string(data), nil
}

// patchFromFlags builds a metadata patch from the flags that were passed.
// An empty value clears the field.
func patchFromFlags(cmd *cobra.Command) core.Patch {
	flags := cmd.Flags()
	var p core.Patch
	if flags.Changed("title") {
		v, _ := flags.GetString("title")
		p.Title = core.Set(v)
	}
	if flags.Changed("stage") {
		v, _ := flags.GetString("stage")
		p.Stage = core.Set(v)
	}
	if flags.Changed("phase") {
		v, _ := flags.GetString("phase")
		p.Phase = core.Set(v)
	}
	if flags.Changed("agent") {
		v, _ := flags.GetString("agent")
		p.Agent = core.Set(v)
	}
	if flags.Changed("context") {
		v, _ := flags.GetStringSlice("context")
		p.Contexts = core.Set(v)
	}
	if flags.Changed("tag") {
		v, _ := flags.GetStringSlice("tag")
		p.Tags = core.Set(v)
	}
	return p
}

func init() {
	saveCmd.Flags().StringVar(&saveInput, "input", "", "Read new content from this file, or - for stdin")
	saveCmd.Flags().BoolVar(&saveForce, "force", false, "Save even if the file changed on disk")
	saveCmd.Flags().String("title", "", "Set the title")
	saveCmd.Flags().String("stage", "", "Set the stage (moves the file)")
	saveCmd.Flags().String("phase", "", "Set the phase; empty clears it")
	saveCmd.Flags().String("agent", "", "Set the agent; empty clears it")
	saveCmd.Flags().StringSlice("context", nil, "Set the contexts; empty clears them")
	saveCmd.Flags().StringSlice("tag", nil, "Set the tags; empty clears them")
	registerStageFlagCompletion(saveCmd)
	rootCmd.AddCommand(saveCmd)
}
