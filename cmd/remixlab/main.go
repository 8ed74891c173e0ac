package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmichett/Fedora-Remix-Lab/internal/config"
	"github.com/tmichett/Fedora-Remix-Lab/internal/confirm"
	"github.com/tmichett/Fedora-Remix-Lab/internal/customize"
	"github.com/tmichett/Fedora-Remix-Lab/internal/image"
	"github.com/tmichett/Fedora-Remix-Lab/internal/libvirt"
	"github.com/tmichett/Fedora-Remix-Lab/internal/network"
	"github.com/tmichett/Fedora-Remix-Lab/internal/reconcile"
	"github.com/tmichett/Fedora-Remix-Lab/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

const dialTimeout = 5 * time.Second

var (
	configPath string
	assumeYes  bool
	hostsFile  string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "remixlab",
	Short: "Remixlab - declarative libvirt lab fleets",
	Long: `Remixlab manages a fleet of libvirt VMs from a single YAML lab
definition: a shared immutable base image, one copy-on-write overlay
per VM, and an isolated NAT network with a static DHCP reservation
for every VM.

All commands converge toward the declared state and are safe to
re-run; nothing that already matches the definition is touched.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "lab.yaml", "path to the lab definition")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "assume yes for all confirmation prompts")
	rootCmd.PersistentFlags().StringVar(&hostsFile, "hosts-file", "", "host-table file to keep in sync with lab reservations")

	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(testConnCmd)
}

// newReconciler loads the lab definition, connects to libvirt and wires
// the managers together. The caller must Close the returned client.
func newReconciler(configPath string) (*reconcile.Reconciler, *libvirt.Client, error) {
	lab, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load lab definition: %w", err)
	}

	client, err := libvirt.Connect("", dialTimeout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to libvirt: %w", err)
	}

	confirmer := newConfirmer()
	images := image.NewManager(lab.ManagedRoot, image.NewQemuImg(), confirmer)
	networks := network.NewManager(client, confirmer)
	vms := vm.NewController(client)
	tool := customize.ForMethod(lab.Customize.Method)

	var opts []reconcile.Option
	if hostsFile != "" {
		opts = append(opts, reconcile.WithHostsFile(hostsFile))
	}

	return reconcile.New(lab, images, networks, vms, tool, confirmer, opts...), client, nil
}

func newConfirmer() confirm.Confirmer {
	if assumeYes {
		return confirm.Accept()
	}
	return confirm.Terminal(os.Stdin, os.Stderr)
}

func closeClient(client *libvirt.Client) {
	if err := client.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close libvirt connection: %v\n", err)
	}
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create the lab from its definition",
	Long: `Create everything the lab definition declares: the managed storage
root, the base image copy, one customized overlay disk per VM, the
lab network with its DHCP reservations, and the VM definitions.

Re-running create on an existing lab changes nothing; existing
overlays are only rebuilt when explicitly confirmed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, client, err := newReconciler(configPath)
		if err != nil {
			return err
		}
		defer closeClient(client)

		if err := r.Create(context.Background()); err != nil {
			return fmt.Errorf("failed to create lab: %w", err)
		}
		return nil
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start every VM in the lab",
	Long: `Start the lab network (if inactive) and every declared VM.

VMs already running are left alone; paused VMs are resumed. The lab
must have been created first: a missing network or VM definition
descriptor is an error, not something start silently creates.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, client, err := newReconciler(configPath)
		if err != nil {
			return err
		}
		defer closeClient(client)

		if err := r.Start(context.Background()); err != nil {
			return fmt.Errorf("failed to start lab: %w", err)
		}
		return nil
	},
}

var (
	resetScope  string
	destroyOnly bool
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Tear the lab down and rebuild it",
	Long: `Tear the lab down and rebuild it from its definition.

This stops and undefines every VM, deletes the overlay storage, and
(with --scope full) removes the lab network as well. Unless
--destroy-only is given, the lab is then created and started again
from scratch.

Reset is destructive and asks for confirmation; use --yes to skip
the prompt. The base image is never touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		scope := reconcile.ResetScope(resetScope)
		switch scope {
		case reconcile.ScopeFull, reconcile.ScopeVMs:
		default:
			return fmt.Errorf("invalid scope: %s (valid scopes: full, vms-only)", resetScope)
		}

		r, client, err := newReconciler(configPath)
		if err != nil {
			return err
		}
		defer closeClient(client)

		ctx := context.Background()
		if err := r.Reset(ctx, reconcile.ResetOptions{Scope: scope}); err != nil {
			return fmt.Errorf("failed to reset lab: %w", err)
		}

		if destroyOnly {
			return nil
		}

		if err := r.Create(ctx); err != nil {
			return fmt.Errorf("failed to recreate lab: %w", err)
		}
		if err := r.Start(ctx); err != nil {
			return fmt.Errorf("failed to restart lab: %w", err)
		}
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVar(&resetScope, "scope", string(reconcile.ScopeFull), "reset scope (full or vms-only)")
	resetCmd.Flags().BoolVar(&destroyOnly, "destroy-only", false, "tear down without recreating")
}

var testConnCmd = &cobra.Command{
	Use:   "test-conn",
	Short: "Test libvirt connection",
	Long:  `Test connectivity to the libvirt daemon and display version information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println("Testing libvirt connection...")

		client, err := libvirt.Connect("", dialTimeout)
		if err != nil {
			return fmt.Errorf("failed to connect to libvirt: %w", err)
		}
		defer closeClient(client)

		fmt.Println("✓ Connected to libvirt daemon")

		if err := client.Ping(); err != nil {
			return fmt.Errorf("connection test failed: %w", err)
		}

		version, err := client.Version()
		if err != nil {
			return fmt.Errorf("failed to get libvirt version: %w", err)
		}

		// libvirt reports its version as an integer like 8006000 for 8.6.0
		major := version / 1000000
		minor := (version % 1000000) / 1000
		patch := version % 1000

		fmt.Printf("✓ Libvirt version: %d.%d.%d\n", major, minor, patch)
		fmt.Println("\nConnection test successful!")
		return nil
	},
}
