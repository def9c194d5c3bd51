package cli

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cardhaul/cardhaul/internal/events"
	"github.com/cardhaul/cardhaul/internal/modules/volumemodule"
)

func newVolumesCommand() *cobra.Command {
	var (
		mountRoot string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "volumes",
		Short: "List mounted removable volumes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if mountRoot == "" {
				mountRoot = defaultMountRoot()
			}
			return runVolumes(mountRoot, watch)
		},
	}

	cmd.Flags().StringVarP(&mountRoot, "root", "r", "",
		"mount root to inspect (default: platform mount directory)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false,
		"keep running and report mounts and unmounts")
	return cmd
}

func runVolumes(mountRoot string, watch bool) error {
	bus := events.NewEventBus(64)
	if err := bus.Start(); err != nil {
		return err
	}
	defer bus.Stop()

	if watch {
		bus.Subscribe(events.EventFilter{
			Types: []events.EventType{events.EventVolumeMounted, events.EventVolumeUnmounted},
		}, func(event events.Event) {
			path, _ := event.Data["path"].(string)
			if event.Type == events.EventVolumeMounted {
				fmt.Printf("mounted    %s\n", path)
			} else {
				fmt.Printf("unmounted  %s\n", path)
			}
		})
	}

	monitor, err := volumemodule.NewMonitor(mountRoot, bus)
	if err != nil {
		return err
	}
	if err := monitor.Start(); err != nil {
		return err
	}
	defer monitor.Stop()

	vols := monitor.Volumes()
	if len(vols) == 0 {
		fmt.Printf("No volumes mounted under %s\n", mountRoot)
	}
	for _, v := range vols {
		fmt.Printf("%-20s %s\n", v.Label, v.Path)
	}

	if !watch {
		return nil
	}

	fmt.Println("Watching for changes; press Ctrl-C to stop.")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	return nil
}

// defaultMountRoot picks the conventional automount directory
func defaultMountRoot() string {
	if _, err := os.Stat("/Volumes"); err == nil {
		return "/Volumes"
	}
	user := os.Getenv("USER")
	for _, root := range []string{
		filepath.Join("/run/media", user),
		filepath.Join("/media", user),
		"/media",
	} {
		if _, err := os.Stat(root); err == nil {
			return root
		}
	}
	return "/media"
}
