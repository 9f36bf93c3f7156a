package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/miniapp-host/internal/domain/assets"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/server"
	"github.com/GriffinCanCode/miniapp-host/internal/shared/types"
)

var errNoPlatform = errors.New("no platform configured: set MINIAPP_BASE_URL and MINIAPP_PROJECT_ID")

func newInstallCmd(open opener) *cobra.Command {
	var versionID string
	cmd := &cobra.Command{
		Use:   "install <appId>",
		Short: "Download a mini-app version and make it current",
		Long: `Install fetches the version's manifest and files from the platform and
promotes it. Without --version the latest published version is used. An
install of the version already current is a no-op.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(open, cmd, func(ctx context.Context, rt *server.Runtime) error {
				if rt.Installer == nil {
					return errNoPlatform
				}
				res, err := rt.Installer.Install(ctx, args[0], versionID)
				if err != nil {
					return err
				}
				return printJSON(cmd, res)
			})
		},
	}
	cmd.Flags().StringVar(&versionID, "version", "", "version id to install (default: latest)")
	return cmd
}

func newUninstallCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <appId>",
		Short: "Remove a mini-app's files and cached manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(open, cmd, func(ctx context.Context, rt *server.Runtime) error {
				if rt.Installer != nil {
					return rt.Installer.Uninstall(ctx, args[0])
				}
				return errors.Join(rt.Assets.Remove(args[0]), rt.Manifests.Remove(ctx, args[0]))
			})
		},
	}
}

type appEntry struct {
	AppID     string `json:"appId"`
	VersionID string `json:"versionId,omitempty"`
	Scheme    string `json:"scheme"`
}

func newAppsCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "apps",
		Short: "List installed mini-apps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(open, cmd, func(ctx context.Context, rt *server.Runtime) error {
				ids, err := rt.Assets.Apps()
				if err != nil {
					return err
				}
				out := make([]appEntry, 0, len(ids))
				for _, id := range ids {
					current, err := rt.Assets.Current(id)
					if errors.Is(err, assets.ErrNotInstalled) {
						continue
					}
					if err != nil {
						return err
					}
					out = append(out, appEntry{AppID: id, VersionID: current, Scheme: rt.Router.SchemeFor(id)})
				}
				return printJSON(cmd, out)
			})
		},
	}
}

func newManifestCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Inspect cached manifests",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show <appId>",
		Short: "Print the cached manifest of a mini-app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(open, cmd, func(ctx context.Context, rt *server.Runtime) error {
				m, err := rt.Manifests.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, m)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "stale <appId> <versionId>",
		Short: "Report whether the cached manifest differs from a version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(open, cmd, func(ctx context.Context, rt *server.Runtime) error {
				return printJSON(cmd, map[string]bool{"stale": rt.Manifests.IsStale(ctx, args[0], args[1])})
			})
		},
	})
	return cmd
}

func newPermissionsCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "Read and change stored grants",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get <appId>",
		Short: "Print every grant of a mini-app",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(open, cmd, func(ctx context.Context, rt *server.Runtime) error {
				records, err := rt.Permissions.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd, records)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set <appId> <name>=<STATUS>...",
		Short: "Update grants, e.g. rakuten.miniapp.user.USER_NAME=ALLOWED",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			updates, err := parseGrants(args[1:])
			if err != nil {
				return err
			}
			return withRuntime(open, cmd, func(ctx context.Context, rt *server.Runtime) error {
				records, err := rt.Permissions.Set(ctx, args[0], updates)
				if err != nil {
					return err
				}
				return printJSON(cmd, records)
			})
		},
	})
	return cmd
}

// parseGrants parses name=STATUS pairs.
func parseGrants(args []string) ([]types.PermissionRecord, error) {
	out := make([]types.PermissionRecord, 0, len(args))
	for _, arg := range args {
		name, status, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid grant %q: want name=STATUS", arg)
		}
		t, ok := types.ParsePermissionType(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("unknown permission %q", name)
		}
		s := types.GrantStatus(strings.ToUpper(strings.TrimSpace(status)))
		if !s.Valid() {
			return nil, fmt.Errorf("invalid status %q for %s", status, name)
		}
		out = append(out, types.PermissionRecord{Type: t, Status: s})
	}
	return out, nil
}
