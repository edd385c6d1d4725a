// Package cli wires the two provisioning workflows into a command tree.
package cli

import (
	"context"
	"os"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/eniac111/hostprep/internal/deps"
	"github.com/eniac111/hostprep/internal/executor"
	"github.com/eniac111/hostprep/internal/inventory"
	"github.com/eniac111/hostprep/internal/metadata"
	"github.com/eniac111/hostprep/internal/remote"
	"github.com/eniac111/hostprep/internal/steps"
)

type options struct {
	inventoryPath string
	hosts         string
	connection    string
	ciUser        string
	metadataURL   string
	packages      []string
	become        bool
	becomeUser    string
	forks         int
	verbose       bool

	fs afero.Fs
}

// NewRootCmd builds the hostprep command tree.
func NewRootCmd() *cobra.Command {
	o := &options{fs: afero.NewOsFs()}

	root := &cobra.Command{
		Use:           "hostprep",
		Short:         "Bootstrap remote hosts for the CI system",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if o.verbose {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&o.inventoryPath, "inventory", "i", "", "path to a YAML inventory file")
	pf.StringVar(&o.hosts, "hosts", "", "host group or literal host to provision")
	pf.StringVarP(&o.connection, "connection", "c", "", "connection method (ssh or local)")
	pf.StringVar(&o.metadataURL, "metadata-url", "", "override for the instance metadata endpoint")
	pf.BoolVar(&o.become, "become", true, "escalate to administrative privilege on the target")
	pf.StringVar(&o.becomeUser, "become-user", "root", "user to assume when escalating privileges")
	pf.IntVar(&o.forks, "forks", 1, "number of hosts to provision in parallel")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newDepsCmd(o), newUserCmd(o))
	return root
}

func newDepsCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deps",
		Short: "Install the CI system's OS dependencies on the target hosts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			hosts, scope, err := o.resolve("hosts", "connection")
			if err != nil {
				return err
			}
			dial, err := dialFor(scope["connection"], o.become, o.becomeUser)
			if err != nil {
				return err
			}
			ex := &executor.Executor{
				Dial:  dial,
				Steps: []steps.Step{deps.InstallerStep{Installer: deps.PackageInstaller{Packages: o.packages}}},
				Forks: o.forks,
				Log:   log.WithField("workflow", "deps"),
			}
			_, err = ex.Run(cmd.Context(), hosts)
			return err
		},
	}
	cmd.Flags().StringSliceVar(&o.packages, "packages", nil, "OS packages to install")
	return cmd
}

func newUserCmd(o *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Provision the CI user on the target hosts",
		Long: `Create the CI user with passwordless sudo, its home and .ssh
directories, and install its authorized SSH key fetched from the instance
metadata service.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			hosts, scope, err := o.resolve("hosts", "connection", "ci_user_name")
			if err != nil {
				return err
			}
			dial, err := dialFor(scope["connection"], o.become, o.becomeUser)
			if err != nil {
				return err
			}
			ex := &executor.Executor{
				Dial:  dial,
				Steps: steps.UserProvision(scope["ci_user_name"], metadata.NewClient(o.metadataURL)),
				Forks: o.forks,
				Log:   log.WithField("workflow", "user"),
			}
			_, err = ex.Run(cmd.Context(), hosts)
			return err
		},
	}
	cmd.Flags().StringVarP(&o.ciUser, "user", "u", "", "name of the CI user to provision")
	return cmd
}

// resolve merges the variable scope, validates the required parameters and
// resolves the target hosts. It runs before any connection is opened; a
// missing parameter aborts the run with zero remote actions.
func (o *options) resolve(required ...string) ([]inventory.Host, inventory.Scope, error) {
	var inv *inventory.Inventory
	if o.inventoryPath != "" {
		loaded, err := inventory.Load(o.fs, o.inventoryPath)
		if err != nil {
			return nil, nil, err
		}
		inv = loaded
	}

	explicit := map[string]string{
		"hosts":        o.hosts,
		"connection":   o.connection,
		"ci_user_name": o.ciUser,
	}
	env := inventory.FromEnv(os.Environ())

	selector := inventory.MergeScope(env, explicit)["hosts"]
	hosts, groupVars := inv.Select(selector)
	scope := inventory.MergeScope(env, groupVars, explicit)
	if err := scope.Require(required...); err != nil {
		return nil, nil, err
	}
	return hosts, scope, nil
}

func dialFor(connection string, become bool, becomeUser string) (executor.DialFunc, error) {
	escalate := func(r remote.Runner, host string) remote.Runner {
		if !become {
			return r
		}
		return remote.Become(r, host, becomeUser)
	}

	switch connection {
	case "ssh":
		return func(_ context.Context, h inventory.Host) (remote.Runner, error) {
			r, err := remote.DialSSH(h)
			if err != nil {
				return nil, err
			}
			return escalate(r, h.Name), nil
		}, nil
	case "local":
		return func(_ context.Context, h inventory.Host) (remote.Runner, error) {
			return escalate(remote.NewLocalRunner(), h.Name), nil
		}, nil
	default:
		return nil, errors.Errorf("unsupported connection method %q", connection)
	}
}
