package simulator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"howett.net/plist"

	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

// appContainerSkeleton is recreated after clearing an app's data container.
var appContainerSkeleton = []string{
	"Documents",
	"Library",
	"Library/Caches",
	"Library/Preferences",
	"SystemData",
	"tmp",
}

// DefaultPermissions is granted when SetPermissions gets an empty map.
var DefaultPermissions = map[string]string{
	"calendar":      "YES",
	"camera":        "YES",
	"contacts":      "YES",
	"faceid":        "YES",
	"health":        "YES",
	"homekit":       "YES",
	"location":      "always",
	"medialibrary":  "YES",
	"microphone":    "YES",
	"motion":        "YES",
	"notifications": "YES",
	"photos":        "YES",
	"reminders":     "YES",
	"siri":          "YES",
	"speech":        "YES",
	"userTracking":  "YES",
}

// Terminate stops a running app. It fails if the app is not running.
func (c *Control) Terminate(ctx context.Context, udid, bundleID string) error {
	_, err := c.simctl(ctx, "terminate", udid, bundleID)
	return err
}

// Launch starts an app.
func (c *Control) Launch(ctx context.Context, udid, bundleID string) error {
	if _, err := c.simctl(ctx, "launch", udid, bundleID); err != nil {
		return fmt.Errorf("failed to launch %s: %w", bundleID, err)
	}
	return nil
}

// Install installs an .app bundle.
func (c *Control) Install(ctx context.Context, udid, appPath string) error {
	if _, err := c.simctl(ctx, "install", udid, appPath); err != nil {
		return fmt.Errorf("failed to install %s: %w", appPath, err)
	}
	return nil
}

// Uninstall removes an app.
func (c *Control) Uninstall(ctx context.Context, udid, bundleID string) error {
	if _, err := c.simctl(ctx, "uninstall", udid, bundleID); err != nil {
		return fmt.Errorf("failed to uninstall %s: %w", bundleID, err)
	}
	return nil
}

// OpenURL opens a URL or deep link.
func (c *Control) OpenURL(ctx context.Context, udid, url string) error {
	if _, err := c.simctl(ctx, "openurl", udid, url); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}
	return nil
}

// SetLocation overrides the simulated location.
func (c *Control) SetLocation(ctx context.Context, udid string, latitude, longitude float64) error {
	coords := strconv.FormatFloat(latitude, 'f', -1, 64) + "," + strconv.FormatFloat(longitude, 'f', -1, 64)
	if _, err := c.simctl(ctx, "location", udid, "set", coords); err != nil {
		return fmt.Errorf("failed to set location: %w", err)
	}
	return nil
}

// AppDataContainer returns the data container path of an installed app.
func (c *Control) AppDataContainer(ctx context.Context, udid, bundleID string) (string, error) {
	out, err := c.simctl(ctx, "get_app_container", udid, bundleID, "data")
	if err != nil {
		return "", fmt.Errorf("failed to get data container of %s: %w", bundleID, err)
	}
	dir := strings.TrimSpace(string(out))
	if dir == "" {
		return "", fmt.Errorf("no data container for %s", bundleID)
	}
	return dir, nil
}

// ClearAppState wipes an app's data container and recreates its skeleton.
// The app is terminated first so it cannot write state back.
func (c *Control) ClearAppState(ctx context.Context, udid, bundleID string) error {
	if err := c.Terminate(ctx, udid, bundleID); err != nil {
		logger.Debug("terminate %s before clearing state: %v", bundleID, err)
	}

	t := time.NewTimer(c.settleDelay)
	select {
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	case <-t.C:
	}

	dir, err := c.AppDataContainer(ctx, udid, bundleID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to remove data container: %w", err)
	}
	for _, p := range appContainerSkeleton {
		if err := os.MkdirAll(filepath.Join(dir, p), 0o755); err != nil {
			return fmt.Errorf("failed to recreate %s: %w", p, err)
		}
	}
	logger.Info("Cleared app state of %s on %s", bundleID, udid)
	return nil
}

// KeychainDir returns the simulator's keychain directory on the host.
func (c *Control) KeychainDir(udid string) string {
	return filepath.Join(c.home, "Library", "Developer", "CoreSimulator", "Devices", udid, "data", "Library", "Keychains")
}

// ClearKeychain deletes the simulator keychain with securityd stopped.
func (c *Control) ClearKeychain(ctx context.Context, udid string) error {
	if _, err := c.simctl(ctx, "spawn", udid, "launchctl", "stop", "com.apple.securityd"); err != nil {
		return fmt.Errorf("failed to stop securityd: %w", err)
	}
	if err := os.RemoveAll(c.KeychainDir(udid)); err != nil {
		return fmt.Errorf("failed to remove keychain: %w", err)
	}
	if _, err := c.simctl(ctx, "spawn", udid, "launchctl", "start", "com.apple.securityd"); err != nil {
		return fmt.Errorf("failed to start securityd: %w", err)
	}
	return nil
}

// GrantPermissions sets app permissions through applesimutils. An empty map
// grants DefaultPermissions.
func (c *Control) GrantPermissions(ctx context.Context, udid, bundleID string, permissions map[string]string) error {
	if len(permissions) == 0 {
		permissions = DefaultPermissions
	}
	keys := make([]string, 0, len(permissions))
	for k := range permissions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = k + "=" + permissions[k]
	}

	_, err := c.run.Run(ctx, c.applesimutils,
		"--byId", udid,
		"--bundle", bundleID,
		"--setPermissions", strings.Join(pairs, ", "),
	)
	if err != nil {
		return fmt.Errorf("failed to grant permissions to %s: %w", bundleID, err)
	}
	return nil
}

// InstalledApps lists bundle ids installed on the simulator, sorted.
func (c *Control) InstalledApps(ctx context.Context, udid string) ([]string, error) {
	out, err := c.simctl(ctx, "listapps", udid)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}

	// listapps prints an OpenStep-style plist keyed by bundle id
	var apps map[string]interface{}
	if _, err := plist.Unmarshal(out, &apps); err != nil {
		return nil, fmt.Errorf("failed to parse listapps output: %w", err)
	}

	ids := make([]string, 0, len(apps))
	for id := range apps {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
