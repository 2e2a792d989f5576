package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/yourusername/aurora-dl/internal/app"
	"github.com/yourusername/aurora-dl/internal/domain"
)

var (
	serverURL   string
	noAutoStart bool
	rootCmd     = &cobra.Command{
		Use:   "aurora-dl",
		Short: "aurora-dl CLI - download and install Android packages",
		Long:  `A command-line interface for queueing APK download groups and installing them on a device.`,
	}
	httpClient = &http.Client{Timeout: 30 * time.Second}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8484", "Server URL")
	rootCmd.PersistentFlags().BoolVar(&noAutoStart, "no-auto-start", false, "Don't auto-start server if not running")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(actionCmd("cancel", "Cancel a queued or running download"))
	rootCmd.AddCommand(actionCmd("pause", "Pause a download, keeping staged files"))
	rootCmd.AddCommand(actionCmd("resume", "Put a paused download back in the queue"))
	rootCmd.AddCommand(actionCmd("retry", "Re-enqueue a failed or cancelled download"))
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
}

// ensureServer checks if server is running and starts it if needed (unless --no-auto-start)
func ensureServer() {
	if noAutoStart {
		return
	}
	if err := ensureServerRunning(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// call sends a JSON request and decodes the JSON response into out
func call(method, path string, payload, out interface{}) (int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, serverURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return resp.StatusCode, fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
		}
		return resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

var addCmd = &cobra.Command{
	Use:   "add [package]",
	Short: "Queue a package's APK files for download and install",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		base, _ := cmd.Flags().GetString("base")
		splits, _ := cmd.Flags().GetStringArray("split")
		obbs, _ := cmd.Flags().GetStringArray("obb")
		versionCode, _ := cmd.Flags().GetInt64("version-code")
		name, _ := cmd.Flags().GetString("name")

		files := []map[string]interface{}{{"url": base, "type": domain.FileBase}}
		for _, u := range splits {
			files = append(files, map[string]interface{}{"url": u, "type": domain.FileSplit})
		}
		for _, u := range obbs {
			files = append(files, map[string]interface{}{"url": u, "type": domain.FileOBB})
		}

		payload := map[string]interface{}{
			"package_name": args[0],
			"display_name": name,
			"version_code": versionCode,
			"files":        files,
		}

		var rec domain.DownloadRecord
		status, err := call(http.MethodPost, "/api/v1/downloads", payload, &rec)
		if err != nil {
			fail(err)
		}

		if status == http.StatusCreated {
			fmt.Printf("Download queued!\n")
		} else {
			fmt.Printf("Already pending, nothing to do.\n")
		}
		fmt.Printf("Package: %s\n", rec.PackageName)
		fmt.Printf("Group:   %d\n", rec.GroupID)
		fmt.Printf("Status:  %s\n", rec.Status)
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all downloads",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		status, _ := cmd.Flags().GetString("status")

		path := "/api/v1/downloads"
		if status != "" {
			path += "?status=" + url.QueryEscape(status)
		}

		var records []domain.DownloadRecord
		if _, err := call(http.MethodGet, path, nil, &records); err != nil {
			fail(err)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PACKAGE\tVERSION\tSTATUS\tINSTALL\tPROGRESS\tUPDATED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				truncate(r.PackageName, 40),
				r.VersionCode,
				r.Status,
				r.InstallStatus,
				progress(&r),
				humanize.Time(r.UpdatedAt))
		}
		w.Flush()
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show download statistics",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var stats domain.DownloadStats
		if _, err := call(http.MethodGet, "/api/v1/downloads/stats", nil, &stats); err != nil {
			fail(err)
		}

		fmt.Println("Download Statistics:")
		fmt.Printf("  Total:       %d\n", stats.Total)
		fmt.Printf("  Queued:      %d\n", stats.Queued)
		fmt.Printf("  Downloading: %d\n", stats.Downloading)
		fmt.Printf("  Paused:      %d\n", stats.Paused)
		fmt.Printf("  Completed:   %d\n", stats.Completed)
		fmt.Printf("  Failed:      %d\n", stats.Failed)
		fmt.Printf("  Cancelled:   %d\n", stats.Cancelled)
	},
}

var getCmd = &cobra.Command{
	Use:   "get [package]",
	Short: "Get download details",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()

		var r domain.DownloadRecord
		if _, err := call(http.MethodGet, "/api/v1/downloads/"+url.PathEscape(args[0]), nil, &r); err != nil {
			fail(err)
		}

		fmt.Printf("Download Details:\n")
		fmt.Printf("  Package:  %s (%s)\n", r.PackageName, r.DisplayName)
		fmt.Printf("  Version:  %d\n", r.VersionCode)
		fmt.Printf("  Group:    %d\n", r.GroupID)
		fmt.Printf("  Status:   %s\n", r.Status)
		fmt.Printf("  Progress: %s\n", progress(&r))
		fmt.Printf("  Install:  %s %s\n", r.InstallStatus, r.InstallStrategy)
		if r.ErrorMessage != "" {
			fmt.Printf("  Error:    [%s] %s\n", r.ErrorKind, r.ErrorMessage)
		}
		fmt.Printf("  Files:\n")
		for _, f := range r.Files {
			fmt.Printf("    %-6s %s\n", f.Type, f.Path)
		}
	},
}

// actionCmd builds the cancel, pause, resume and retry commands
func actionCmd(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " [package]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ensureServer()

			var r domain.DownloadRecord
			path := "/api/v1/downloads/" + url.PathEscape(args[0]) + "/" + action
			if _, err := call(http.MethodPost, path, nil, &r); err != nil {
				fail(err)
			}
			fmt.Printf("%s: %s\n", r.PackageName, r.Status)
		},
	}
}

var removeCmd = &cobra.Command{
	Use:   "remove [package]",
	Short: "Remove a download and its staged files",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		if _, err := call(http.MethodDelete, "/api/v1/downloads/"+url.PathEscape(args[0]), nil, nil); err != nil {
			fail(err)
		}
		fmt.Println("Download removed")
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Stream pipeline events",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		packageName, _ := cmd.Flags().GetString("package")

		wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + "/api/v1/events"
		if packageName != "" {
			wsURL += "?package=" + url.QueryEscape(packageName)
		}

		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			fail(err)
		}
		defer conn.Close()

		for {
			var ev domain.Event
			if err := conn.ReadJSON(&ev); err != nil {
				if websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					return
				}
				fail(err)
			}
			fmt.Println(formatEvent(ev))
		}
	},
}

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Show device capabilities and the installer that would be used",
	Run: func(cmd *cobra.Command, args []string) {
		ensureServer()
		apks, _ := cmd.Flags().GetInt("apks")

		var out struct {
			Device    domain.DeviceInfo       `json:"device"`
			Installer *domain.InstallerChoice `json:"installer"`
			Error     string                  `json:"error"`
		}
		if _, err := call(http.MethodGet, fmt.Sprintf("/api/v1/installs/device?apks=%d", apks), nil, &out); err != nil {
			fail(err)
		}

		fmt.Printf("SDK:       %d\n", out.Device.SDK)
		fmt.Printf("Rooted:    %t\n", out.Device.Rooted)
		if out.Installer != nil {
			fmt.Printf("Installer: %s (silent: %t, splits: %t)\n",
				out.Installer.Kind, out.Installer.CanInstallSilently, out.Installer.SupportsSplits)
		} else {
			fmt.Printf("Installer: none (%s)\n", out.Error)
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a config file with default values",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "configs/config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			fail(fmt.Errorf("%s already exists (use --force to overwrite)", path))
		}
		if err := app.SaveConfig(domain.DefaultConfig(), path); err != nil {
			fail(err)
		}
		fmt.Printf("Config written to %s\n", path)
	},
}

func init() {
	addCmd.Flags().String("base", "", "URL of the base APK")
	addCmd.Flags().StringArray("split", nil, "URL of a split APK (repeatable)")
	addCmd.Flags().StringArray("obb", nil, "URL of an OBB expansion file (repeatable)")
	addCmd.Flags().Int64("version-code", 0, "Version code of the package")
	addCmd.Flags().String("name", "", "Display name")
	addCmd.MarkFlagRequired("base")
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	eventsCmd.Flags().StringP("package", "p", "", "Only show events for this package")
	deviceCmd.Flags().Int("apks", 1, "Number of APKs to select an installer for")
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing file")
}

func progress(r *domain.DownloadRecord) string {
	if p := r.Progress(); p >= 0 {
		return fmt.Sprintf("%d%% of %s", p, humanize.Bytes(uint64(r.TotalSize)))
	}
	if r.DownloadedBytes > 0 {
		return humanize.Bytes(uint64(r.DownloadedBytes))
	}
	return "-"
}

func formatEvent(ev domain.Event) string {
	line := fmt.Sprintf("%s  %-14s %s", ev.At.Format("15:04:05"), ev.Kind, ev.PackageName)
	switch {
	case ev.Error != "":
		line += fmt.Sprintf("  [%s] %s", ev.ErrorKind, ev.Error)
	case ev.File != "":
		line += "  " + ev.File
	case ev.Kind == domain.EventProgress && ev.Record != nil:
		line += "  " + progress(ev.Record)
		if ev.Record.SpeedBps > 0 {
			line += fmt.Sprintf(" at %s/s", humanize.Bytes(uint64(ev.Record.SpeedBps)))
		}
	}
	return line
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
