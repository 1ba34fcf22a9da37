package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
)

// NewProjectCommand creates the project command.
func NewProjectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "project <user|tag> [id]",
		Short: "Print nested user or tag views as JSON",
		Long: `Print the nested view of one user or tag, or of all of them when no id is
given. Users embed their role and tags; tags embed their issues in link order.`,
		Args:      cobra.RangeArgs(1, 2),
		ValidArgs: []string{"user", "tag"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 2 {
				v, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil || v <= 0 {
					return fmt.Errorf("invalid id %q", args[1])
				}
				id = v
			}
			if args[0] != "user" && args[0] != "tag" {
				return fmt.Errorf("unknown kind %q: must be user or tag", args[0])
			}

			rt, err := openRuntime(cmd.Context(), rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			ctx := cmd.Context()
			var out any
			switch {
			case args[0] == "user" && id != 0:
				out, err = rt.svc.ProjectUser(ctx, id)
			case args[0] == "user":
				out, err = rt.svc.ProjectUsers(ctx)
			case id != 0:
				out, err = rt.svc.ProjectTag(ctx, id)
			default:
				out, err = rt.svc.ProjectTags(ctx)
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
